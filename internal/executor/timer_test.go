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
	"testing"
	"time"

	"github.com/jtarchie/cicdbot/internal/manifest"
	"github.com/jtarchie/cicdbot/internal/registry"
)

func TestTimerExecutor_CompletesAfterDuration(t *testing.T) {
	rc := newTestRunContext(t, &fakeRunner{})
	spec := manifest.JobSpec{Kind: manifest.KindTimer, DurationSeconds: 0}

	result, err := TimerExecutor{}.Execute(context.Background(), rc, "wait", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != registry.StatusSuccess {
		t.Errorf("expected StatusSuccess, got %v", result.Status)
	}
}

func TestTimerExecutor_CancellationStopsWait(t *testing.T) {
	rc := newTestRunContext(t, &fakeRunner{})
	spec := manifest.JobSpec{Kind: manifest.KindTimer, DurationSeconds: 3600}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result, err := TimerExecutor{}.Execute(ctx, rc, "wait", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != registry.StatusCancelled {
		t.Errorf("expected StatusCancelled, got %v", result.Status)
	}
}
