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

// Package registry owns every in-flight and completed Run for the life of
// the process, plus the sidecar-persisted pipeline/subscription state that
// survives a restart.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jtarchie/cicdbot/internal/manifest"
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSuccess   RunStatus = "success"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// JobResult is a single result shape shared by Container Job and Job Group
// returns; unused fields stay zero for kinds that don't populate them.
type JobResult struct {
	Status         RunStatus
	StepsCompleted int
	StepsFailed    int
	Completed      int
	Failed         int
}

// Run is one pipeline execution. The Engine task that owns RunID is the
// only writer of its mutable fields; the Registry only ever hands out a
// pointer and otherwise leaves mutation to the caller.
type Run struct {
	ID           int64
	ManifestName string
	Pipeline     *manifest.Pipeline
	RequesterID  int64
	ChatID       *int64
	MessageID    *int64
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	LastResult   JobResult
	Err          string
}

// Registry holds every Run for the life of the process. There is no
// eviction in the core contract: runs are retained indefinitely for status
// and log queries.
type Registry struct {
	mu      sync.RWMutex
	runs    map[int64]*Run
	counter atomic.Int64
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		runs: make(map[int64]*Run),
	}
}

// Create allocates a new Run with a monotonically increasing ID and stores
// it in Pending state.
func (r *Registry) Create(manifestName string, pipeline *manifest.Pipeline, requesterID int64, chatID, messageID *int64) *Run {
	run := &Run{
		ID:           r.counter.Add(1),
		ManifestName: manifestName,
		Pipeline:     pipeline,
		RequesterID:  requesterID,
		ChatID:       chatID,
		MessageID:    messageID,
		Status:       StatusPending,
		StartedAt:    time.Now(),
	}

	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()

	return run
}

// Get returns the Run with the given ID, or false if it doesn't exist.
func (r *Registry) Get(runID int64) (*Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	return run, ok
}

// List returns every Run currently known to the registry, in unspecified
// order.
func (r *Registry) List() []*Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	return runs
}
