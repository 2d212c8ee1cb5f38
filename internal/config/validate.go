// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	cicdboterrors "github.com/jtarchie/cicdbot/pkg/errors"
)

// Validate checks that the required sections and fields are present.
// Mirrors the original bot's _validate(): github.repo_url and github.token
// are mandatory, and users.allowed_telegram_ids must be a non-empty list.
func Validate(c *Config) error {
	if c.GitHub.RepoURL == "" {
		return &cicdboterrors.ConfigError{
			Key:    "github.repo_url",
			Reason: "must be set",
		}
	}

	if c.GitHub.Token == "" {
		return &cicdboterrors.ConfigError{
			Key:    "github.token",
			Reason: "must be set (or resolvable from the OS keyring)",
		}
	}

	if len(c.Users.AllowedTelegramIDs) == 0 {
		return &cicdboterrors.ConfigError{
			Key:    "users.allowed_telegram_ids",
			Reason: "must list at least one Telegram user ID",
		}
	}

	return nil
}
