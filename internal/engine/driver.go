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

package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jtarchie/cicdbot/internal/executor"
	"github.com/jtarchie/cicdbot/internal/registry"
)

// statusPushInterval matches the Python original's
// _periodic_status_update 5-second cadence.
const statusPushInterval = 5 * time.Second

// statusEmoji mirrors orchestrator.py's status_emoji table.
var statusEmoji = map[registry.RunStatus]string{
	registry.StatusPending:   "⏳",
	registry.StatusRunning:   "🔄",
	registry.StatusSuccess:   "✅",
	registry.StatusFailed:    "❌",
	registry.StatusCancelled: "🚫",
}

func emojiFor(status registry.RunStatus) string {
	if e, ok := statusEmoji[status]; ok {
		return e
	}
	return "❓"
}

// statusLine renders the chat-facing status line: emoji, manifest name,
// upper-cased status, and a completed/total job counter.
func statusLine(run *registry.Run) string {
	total := run.LastResult.StepsCompleted + run.LastResult.StepsFailed + run.LastResult.Completed + run.LastResult.Failed
	return fmt.Sprintf("%s %s\nStatus: %s\nJobs: %d/%d",
		emojiFor(run.Status), run.ManifestName, strings.ToUpper(string(run.Status)), run.LastResult.Completed, total)
}

// drive runs one pipeline end to end. It is launched detached from the
// request that created the run (context.Background()) because the run
// must outlive that request.
func (e *Engine) drive(runID int64) {
	run, ok := e.registry.Get(runID)
	if !ok {
		e.logger.Error("engine: drive called for unknown run", "run_id", runID)
		return
	}

	ctx := context.Background()

	run.Status = registry.StatusRunning
	e.log.LogStatus(run.ID, orchestratorComponent, string(registry.StatusRunning))

	var stopPusher context.CancelFunc
	var pusherDone chan struct{}
	if run.ChatID != nil && run.MessageID != nil {
		var pusherCtx context.Context
		pusherCtx, stopPusher = context.WithCancel(ctx)
		pusherDone = make(chan struct{})
		go e.pushStatus(pusherCtx, run, pusherDone)
	}

	rc := &executor.RunContext{
		RunID:       run.ID,
		Pipeline:    run.Pipeline,
		RequesterID: run.RequesterID,
		ChatID:      run.ChatID,
		MessageID:   run.MessageID,
		Logger:      e.log,
		Runner:      e.runner,
		Notifier:    e.notifier,
		Pending:     e.pending,
		Dispatch:    executor.Dispatch,
	}

	finalStatus := registry.StatusSuccess
	var lastResult registry.JobResult

	for _, jobName := range run.Pipeline.ListJobs() {
		spec, ok := run.Pipeline.GetJob(jobName)
		if !ok {
			continue
		}

		result, err := executor.Dispatch(ctx, rc, jobName, spec)
		if err != nil {
			e.log.LogError(run.ID, orchestratorComponent, fmt.Sprintf("job %q failed: %v", jobName, err))
			run.Err = err.Error()
			finalStatus = registry.StatusFailed
			break
		}

		lastResult = result
		if result.Status != registry.StatusSuccess {
			finalStatus = registry.StatusFailed
			break
		}
	}

	run.FinishedAt = time.Now()
	run.Status = finalStatus
	run.LastResult = lastResult

	e.log.LogStatus(run.ID, orchestratorComponent, string(finalStatus))

	if stopPusher != nil {
		stopPusher()
		<-pusherDone
		e.finalizeStatusMessage(ctx, run)
	}

	if run.ChatID != nil {
		text := fmt.Sprintf("%s %s — completed", emojiFor(finalStatus), run.ManifestName)
		if _, err := e.notifier.Post(ctx, *run.ChatID, text, nil); err != nil {
			e.logger.Warn("engine: posting completion message failed", "run_id", run.ID, "error", err)
		}
	}
}

// pushStatus edits the chat's status message every statusPushInterval
// until ctx is cancelled by the driver (which itself happens as soon as
// the run's status becomes terminal).
func (e *Engine) pushStatus(ctx context.Context, run *registry.Run, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.notifier.Edit(ctx, *run.ChatID, *run.MessageID, statusLine(run)); err != nil {
				e.logger.Debug("engine: status edit failed", "run_id", run.ID, "error", err)
			}
		}
	}
}

// finalizeStatusMessage issues one last edit after the pusher has
// stopped. The pusher's own last tick may have already posted the
// terminal status, so this tolerates being a duplicate edit.
func (e *Engine) finalizeStatusMessage(ctx context.Context, run *registry.Run) {
	if err := e.notifier.Edit(ctx, *run.ChatID, *run.MessageID, statusLine(run)); err != nil {
		e.logger.Debug("engine: final status edit failed", "run_id", run.ID, "error", err)
	}
}
