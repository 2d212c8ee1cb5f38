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
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jtarchie/cicdbot/internal/config"
	"github.com/jtarchie/cicdbot/internal/controlapi"
	"github.com/jtarchie/cicdbot/internal/engine"
	"github.com/jtarchie/cicdbot/internal/lifecycle"
	"github.com/jtarchie/cicdbot/internal/log"
	"github.com/jtarchie/cicdbot/internal/notifier/telegram"
	"github.com/jtarchie/cicdbot/internal/pipelinelog"
	"github.com/jtarchie/cicdbot/internal/registry"
	"github.com/jtarchie/cicdbot/internal/runner"
	"github.com/jtarchie/cicdbot/internal/source"
	"github.com/jtarchie/cicdbot/internal/source/github"
	"github.com/jtarchie/cicdbot/internal/source/localfs"
	"github.com/jtarchie/cicdbot/internal/webhook"
)

func newServeCommand() *cobra.Command {
	var (
		configPath string
		listenAddr string
		pidPath    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: discover pipelines and serve the Telegram webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, listenAddr, pidPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML config file (required)")
	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "address to serve /healthz, /metrics, and /webhook/telegram on")
	cmd.Flags().StringVar(&pidPath, "pidfile", "", "optional path to write a PID file for while the daemon runs")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runServe(configPath, listenAddr, pidPath string) error {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if pidPath != "" {
		pidManager := lifecycle.NewPIDFileManager(pidPath, logger)
		if err := pidManager.Create(os.Getpid()); err != nil {
			return fmt.Errorf("writing pid file: %w", err)
		}
		defer pidManager.Remove()
	}

	src, err := newManifestSource(cfg)
	if err != nil {
		return fmt.Errorf("building manifest source: %w", err)
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		return fmt.Errorf("resolving log path: %w", err)
	}

	pipelineLog, err := pipelinelog.New(logPath)
	if err != nil {
		return fmt.Errorf("opening pipeline log: %w", err)
	}

	sidecar, err := registry.NewSidecar(cfg.Logging.LogDir, logger)
	if err != nil {
		return fmt.Errorf("opening registry sidecar: %w", err)
	}

	containerRunner, err := runner.New(runner.Config{
		SocketPath:              cfg.Docker.SocketPath,
		MemoryLimit:             cfg.Docker.MemoryLimit,
		CPULimit:                cfg.Docker.CPULimit,
		MaxConcurrentContainers: cfg.Docker.MaxConcurrentContainers,
	})
	if err != nil {
		return fmt.Errorf("building container runner: %w", err)
	}

	notif := telegram.New(cfg.Chat.BotToken)

	eng := engine.New(registry.New(), sidecar, src, pipelineLog, containerRunner, notif, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := eng.Discover(ctx); err != nil {
		logger.Warn("serve: initial pipeline discovery failed", "error", err)
	}

	api := controlapi.New(eng, sidecar)
	server := webhook.NewServer(api, notif, cfg, logger)

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serve: listening", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("serve: shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newManifestSource builds the GitHub-backed ManifestSource, unless
// github.repo_url carries a file:// prefix, in which case pipelines are
// read from a local directory instead (dev/test convenience).
func newManifestSource(cfg *config.Config) (source.ManifestSource, error) {
	const localPrefix = "file://"

	if len(cfg.GitHub.RepoURL) > len(localPrefix) && cfg.GitHub.RepoURL[:len(localPrefix)] == localPrefix {
		return localfs.New(cfg.GitHub.RepoURL[len(localPrefix):]), nil
	}

	return github.New(cfg.GitHub.RepoURL, cfg.GitHub.PipelinesPath, "", cfg.GitHub.Token)
}
