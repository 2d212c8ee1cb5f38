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

package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jtarchie/cicdbot/internal/manifest"
	"github.com/jtarchie/cicdbot/internal/notifier"
	"github.com/jtarchie/cicdbot/internal/registry"
)

// Decision is the outcome of a confirmation button press.
type Decision int

const (
	DecisionConfirm Decision = iota
	DecisionCancel
)

// PendingTable tracks in-flight confirmations, keyed by
// "<runID>_<jobName>", so the Notifier's callback handler can wake the
// waiting ConfirmationExecutor goroutine exactly once.
type PendingTable struct {
	entries sync.Map // key string -> chan Decision
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{}
}

func pendingKey(runID int64, jobName string) string {
	return fmt.Sprintf("%d_%s", runID, jobName)
}

// register creates (or replaces) the wake channel for a confirmation.
func (t *PendingTable) register(runID int64, jobName string) chan Decision {
	ch := make(chan Decision, 1)
	t.entries.Store(pendingKey(runID, jobName), ch)
	return ch
}

// unregister removes a confirmation's entry, e.g. once it has resolved.
func (t *PendingTable) unregister(runID int64, jobName string) {
	t.entries.Delete(pendingKey(runID, jobName))
}

// Resolve looks up the registration for runID/jobName and, if present,
// delivers decision to its waiting goroutine exactly once. It reports
// whether a registration was found; a callback with no match is a no-op,
// matching §4.5.3's "silently acknowledged" rule.
func (t *PendingTable) Resolve(runID int64, jobName string, decision Decision) bool {
	key := pendingKey(runID, jobName)
	value, ok := t.entries.LoadAndDelete(key)
	if !ok {
		return false
	}

	ch := value.(chan Decision)
	ch <- decision
	return true
}

// ConfirmationExecutor posts a Confirm/Cancel prompt and suspends the job
// until a button press resolves it or the configured timeout elapses.
type ConfirmationExecutor struct{}

func (ConfirmationExecutor) Execute(ctx context.Context, rc *RunContext, jobName string, spec manifest.JobSpec) (registry.JobResult, error) {
	if rc.ChatID == nil || rc.MessageID == nil {
		rc.Logger.LogError(rc.RunID, jobName, "confirmation job requires an active chat context")
		rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusFailed))
		return registry.JobResult{Status: registry.StatusFailed}, nil
	}

	rc.Logger.LogStatus(rc.RunID, jobName, "waiting")

	confirmCallback := fmt.Sprintf("confirm_%d_%s", rc.RunID, jobName)
	cancelCallback := fmt.Sprintf("cancel_%d_%s", rc.RunID, jobName)

	messageID, err := rc.Notifier.Post(ctx, *rc.ChatID, spec.Message, []notifier.Button{
		{Label: "Confirm", Callback: confirmCallback},
		{Label: "Cancel", Callback: cancelCallback},
	})
	if err != nil {
		return registry.JobResult{}, fmt.Errorf("executor: posting confirmation prompt for job %q: %w", jobName, err)
	}

	wake := rc.Pending.register(rc.RunID, jobName)

	timeout := time.Duration(spec.TimeoutSeconds) * time.Second
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case decision := <-wake:
		switch decision {
		case DecisionConfirm:
			_ = rc.Notifier.Edit(ctx, *rc.ChatID, messageID, "Confirmed") // edit errors are swallowed; the message may already be gone
			rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusSuccess))
			return registry.JobResult{Status: registry.StatusSuccess}, nil
		default:
			_ = rc.Notifier.Edit(ctx, *rc.ChatID, messageID, "Cancelled")
			rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusCancelled))
			return registry.JobResult{Status: registry.StatusCancelled}, nil
		}

	case <-timer.C:
		rc.Pending.unregister(rc.RunID, jobName)
		_ = rc.Notifier.Edit(ctx, *rc.ChatID, messageID, "Timeout")
		rc.Logger.LogError(rc.RunID, jobName, "confirmation timed out")
		rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusFailed))
		return registry.JobResult{Status: registry.StatusFailed}, nil

	case <-ctx.Done():
		rc.Pending.unregister(rc.RunID, jobName)
		_ = rc.Notifier.Edit(ctx, *rc.ChatID, messageID, "Cancelled")
		rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusCancelled))
		return registry.JobResult{Status: registry.StatusCancelled}, nil
	}
}
