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

// Package config loads and validates the daemon's YAML configuration,
// substituting ${VAR_NAME} environment references before parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// keyringService is the OS-keyring service name used for credential fallback.
const keyringService = "cicdbot"

// Config is the daemon's top-level configuration, loaded from a YAML file
// with ${VAR_NAME} substitution against the process environment.
type Config struct {
	GitHub  GitHubConfig  `yaml:"github"`
	Users   UsersConfig   `yaml:"users"`
	Docker  DockerConfig  `yaml:"docker"`
	Logging LoggingConfig `yaml:"logging"`
	Chat    ChatConfig    `yaml:"chat"`
}

// GitHubConfig describes the manifest source repository.
type GitHubConfig struct {
	RepoURL       string `yaml:"repo_url"`
	Token         string `yaml:"token"`
	PipelinesPath string `yaml:"pipelines_path"`
}

// UsersConfig is the chat-level authorization allow-list.
type UsersConfig struct {
	AllowedTelegramIDs []int64 `yaml:"allowed_telegram_ids"`
}

// DockerConfig configures the container runner's resource limits and
// Engine API connection.
type DockerConfig struct {
	MemoryLimit             string `yaml:"memory_limit"`
	CPULimit                string `yaml:"cpu_limit"`
	SocketPath              string `yaml:"socket_path"`
	MaxConcurrentContainers int    `yaml:"max_concurrent_containers"`
}

// LoggingConfig configures the structured append-only pipeline log.
type LoggingConfig struct {
	LogDir  string `yaml:"log_dir"`
	LogFile string `yaml:"log_file"`
}

// ChatConfig configures the Telegram Notifier adapter.
type ChatConfig struct {
	BotToken string `yaml:"bot_token"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads, substitutes, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	substituted := substituteEnvVars(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.resolveKeyringFallback()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} references with the value of the
// matching environment variable, leaving the reference untouched if the
// variable is unset.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// applyDefaults fills in the defaults the original bot always assumed.
func (c *Config) applyDefaults() {
	if c.GitHub.PipelinesPath == "" {
		c.GitHub.PipelinesPath = ".cicd/pipelines"
	}
	if c.Docker.MemoryLimit == "" {
		c.Docker.MemoryLimit = "512m"
	}
	if c.Docker.CPULimit == "" {
		c.Docker.CPULimit = "0.5"
	}
	if c.Docker.SocketPath == "" {
		c.Docker.SocketPath = "/var/run/docker.sock"
	}
	if c.Docker.MaxConcurrentContainers == 0 {
		c.Docker.MaxConcurrentContainers = 5
	}
	if c.Logging.LogDir == "" {
		c.Logging.LogDir = "./logs"
	}
	if c.Logging.LogFile == "" {
		c.Logging.LogFile = "cicd.log"
	}
}

// resolveKeyringFallback fills in the GitHub token and bot token from the OS
// keyring when the config file and environment left them empty. A keyring
// miss is not fatal here; Validate still rejects an empty github.token
// afterward.
func (c *Config) resolveKeyringFallback() {
	if c.GitHub.Token == "" {
		if token, err := keyring.Get(keyringService, "github_token"); err == nil {
			c.GitHub.Token = token
		}
	}
	if c.Chat.BotToken == "" {
		if token, err := keyring.Get(keyringService, "telegram_bot_token"); err == nil {
			c.Chat.BotToken = token
		}
	}
}

// LogPath returns the full path to the pipeline log file, creating the log
// directory if it does not already exist.
func (c *Config) LogPath() (string, error) {
	if err := os.MkdirAll(c.Logging.LogDir, 0o755); err != nil {
		return "", fmt.Errorf("creating log directory %s: %w", c.Logging.LogDir, err)
	}
	return filepath.Join(c.Logging.LogDir, c.Logging.LogFile), nil
}

// IsAllowedUser reports whether a Telegram user ID is on the allow-list.
func (c *Config) IsAllowedUser(userID int64) bool {
	for _, id := range c.Users.AllowedTelegramIDs {
		if id == userID {
			return true
		}
	}
	return false
}
