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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jtarchie/cicdbot/internal/cli/timeline"
	"github.com/jtarchie/cicdbot/internal/config"
	"github.com/jtarchie/cicdbot/internal/pipelinelog"
)

func newLogsCommand() *cobra.Command {
	var (
		configPath   string
		showTimeline bool
	)

	cmd := &cobra.Command{
		Use:   "logs <runID>",
		Short: "Print a run's log, or render it as a timeline with --timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID %q: %w", args[0], err)
			}
			return runLogs(configPath, runID, showTimeline)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML config file (required)")
	cmd.Flags().BoolVar(&showTimeline, "timeline", false, "render the log as an ASCII timeline instead of raw lines")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runLogs(configPath string, runID int64, showTimeline bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		return fmt.Errorf("resolving log path: %w", err)
	}

	logger, err := pipelinelog.New(logPath)
	if err != nil {
		return fmt.Errorf("opening pipeline log: %w", err)
	}

	lines, err := logger.GetRunLog(runID)
	if err != nil {
		return fmt.Errorf("reading run %d log: %w", runID, err)
	}

	if !showTimeline {
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	}

	renderer, err := timeline.NewRenderer()
	if err != nil {
		return fmt.Errorf("building timeline renderer: %w", err)
	}

	out, err := renderer.Render(runID, lines)
	if err != nil {
		return fmt.Errorf("rendering timeline: %w", err)
	}

	fmt.Println(out)
	return nil
}
