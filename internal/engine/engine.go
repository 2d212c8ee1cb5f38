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

// Package engine drives pipeline runs end to end: discovering manifests,
// starting runs, and dispatching their top-level jobs in manifest order.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jtarchie/cicdbot/internal/executor"
	"github.com/jtarchie/cicdbot/internal/manifest"
	"github.com/jtarchie/cicdbot/internal/notifier"
	"github.com/jtarchie/cicdbot/internal/pipelinelog"
	"github.com/jtarchie/cicdbot/internal/registry"
	"github.com/jtarchie/cicdbot/internal/source"
)

// orchestratorComponent is the pipeline-level log entry's step name,
// mirroring original_source/bot/orchestrator.py logging under the name
// "orchestrator" rather than any individual job's name.
const orchestratorComponent = "orchestrator"

// Engine owns the collaborators every run needs and launches a detached
// driver goroutine per run.
type Engine struct {
	registry *registry.Registry
	sidecar  *registry.Sidecar
	source   source.ManifestSource
	log      *pipelinelog.Logger
	runner   executor.ContainerRunner
	notifier notifier.Notifier
	pending  *executor.PendingTable
	logger   *slog.Logger
}

// New builds an Engine from its collaborators.
func New(
	reg *registry.Registry,
	sidecar *registry.Sidecar,
	src source.ManifestSource,
	log *pipelinelog.Logger,
	runner executor.ContainerRunner,
	notif notifier.Notifier,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: reg,
		sidecar:  sidecar,
		source:   src,
		log:      log,
		runner:   runner,
		notifier: notif,
		pending:  executor.NewPendingTable(),
		logger:   logger,
	}
}

// Discover asks the ManifestSource for every available manifest, parses
// each, and records it in the sidecar's pipelines table, preserving any
// existing auto_run flag. Parse failures are logged and the manifest is
// skipped, not fatal to the overall discovery pass.
func (e *Engine) Discover(ctx context.Context) error {
	names, err := e.source.ListPipelines(ctx)
	if err != nil {
		return fmt.Errorf("engine: listing pipelines: %w", err)
	}

	existing := e.sidecar.LoadPipelines()

	for _, name := range names {
		yaml, err := e.source.GetPipelineYAML(ctx, name)
		if err != nil {
			e.logger.Error("engine: fetching manifest failed", "manifest", name, "error", err)
			continue
		}

		pipeline, err := manifest.Parse([]byte(yaml))
		if err != nil {
			e.logger.Error("engine: parsing manifest failed", "manifest", name, "error", err)
			continue
		}

		autoRun := existing[pipeline.Name].AutoRun
		if err := e.sidecar.SetAutoRun(pipeline.Name, autoRun); err != nil {
			e.logger.Error("engine: persisting pipeline entry failed", "manifest", pipeline.Name, "error", err)
		}
	}

	return nil
}

// Start fetches and parses manifestName, creates a Run, launches its
// driver goroutine detached from ctx (a run must outlive the request
// that started it), and returns the new run's ID immediately.
func (e *Engine) Start(ctx context.Context, manifestName string, requesterID int64, chatID, messageID *int64) (int64, error) {
	yaml, err := e.source.GetPipelineYAML(ctx, manifestName)
	if err != nil {
		return 0, fmt.Errorf("engine: fetching manifest %q: %w", manifestName, err)
	}

	pipeline, err := manifest.Parse([]byte(yaml))
	if err != nil {
		return 0, fmt.Errorf("engine: parsing manifest %q: %w", manifestName, err)
	}

	run := e.registry.Create(manifestName, pipeline, requesterID, chatID, messageID)

	if chatID != nil {
		if err := e.sidecar.UpdateSubscriptionRun(*chatID, manifestName, run.ID); err != nil {
			e.logger.Warn("engine: updating subscription run failed", "chat_id", *chatID, "manifest", manifestName, "error", err)
		}
	}

	go e.drive(run.ID)

	return run.ID, nil
}

// Status returns the registry's live Run (not a copy), or false if runID
// is unknown.
func (e *Engine) Status(runID int64) (*registry.Run, bool) {
	return e.registry.Get(runID)
}

// Logs returns the structured log lines belonging to runID.
func (e *Engine) Logs(runID int64) ([]string, error) {
	return e.log.GetRunLog(runID)
}

// ListPipelines returns the sidecar's discovered pipelines table.
func (e *Engine) ListPipelines() map[string]registry.PipelineInfo {
	return e.sidecar.LoadPipelines()
}

// ResolveConfirmation wakes a pending Confirmation Job for runID/jobName
// with the given decision. It reports false if no job is currently
// waiting on that key, mirroring PendingTable.Resolve.
func (e *Engine) ResolveConfirmation(runID int64, jobName string, decision executor.Decision) bool {
	return e.pending.Resolve(runID, jobName, decision)
}
