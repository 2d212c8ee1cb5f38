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

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/jtarchie/cicdbot/internal/config"
)

// keyringService must match internal/config's keyring service name so that
// a wizard-written secret is the one Config.Load finds on daemon startup.
const keyringService = "cicdbot"

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the daemon's configuration file",
	}

	cmd.AddCommand(newConfigInitCommand())

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively build a config file and store secrets in the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(outPath)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "cicdbot.yaml", "path to write the generated config file")

	return cmd
}

func runConfigInit(outPath string) error {
	var (
		repoURL         string
		pipelinesPath   string
		githubToken     string
		botToken        string
		allowedIDsInput string
		memoryLimit     string
		cpuLimit        string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GitHub repository URL:").
				Description("The repo containing your pipeline manifests, e.g. https://github.com/acme/pipelines").
				Value(&repoURL).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("repository URL is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Pipelines path:").
				Description("Directory within the repo to scan for manifests").
				Value(&pipelinesPath).
				Placeholder(".cicd/pipelines"),
			huh.NewInput().
				Title("GitHub token:").
				Description("Personal access token with read access to the repository").
				EchoMode(huh.EchoModePassword).
				Value(&githubToken).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("GitHub token is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token:").
				Description("From @BotFather").
				EchoMode(huh.EchoModePassword).
				Value(&botToken).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("bot token is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Allowed Telegram user IDs:").
				Description("Comma-separated numeric IDs permitted to run commands").
				Value(&allowedIDsInput).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("at least one allowed user ID is required")
					}
					for _, part := range strings.Split(s, ",") {
						if _, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err != nil {
							return fmt.Errorf("invalid user ID %q", part)
						}
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Container memory limit:").
				Value(&memoryLimit).
				Placeholder("512m"),
			huh.NewInput().
				Title("Container CPU limit:").
				Value(&cpuLimit).
				Placeholder("0.5"),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("running config wizard: %w", err)
	}

	if err := keyring.Set(keyringService, "github_token", githubToken); err != nil {
		return fmt.Errorf("storing GitHub token in keyring: %w", err)
	}
	if err := keyring.Set(keyringService, "telegram_bot_token", botToken); err != nil {
		return fmt.Errorf("storing Telegram bot token in keyring: %w", err)
	}

	allowedIDs := make([]int64, 0)
	for _, part := range strings.Split(allowedIDsInput, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		allowedIDs = append(allowedIDs, id)
	}

	cfg := config.Config{
		GitHub: config.GitHubConfig{
			RepoURL:       repoURL,
			PipelinesPath: pipelinesPath,
		},
		Users: config.UsersConfig{
			AllowedTelegramIDs: allowedIDs,
		},
		Docker: config.DockerConfig{
			MemoryLimit: memoryLimit,
			CPULimit:    cpuLimit,
		},
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(outPath, out, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", outPath, err)
	}

	fmt.Printf("Wrote %s. GitHub and Telegram tokens were stored in the OS keyring.\n", outPath)
	return nil
}
