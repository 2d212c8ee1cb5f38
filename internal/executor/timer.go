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
	"time"

	"github.com/jtarchie/cicdbot/internal/manifest"
	"github.com/jtarchie/cicdbot/internal/registry"
)

// TimerExecutor suspends for the job's configured duration, cancellably.
type TimerExecutor struct{}

func (TimerExecutor) Execute(ctx context.Context, rc *RunContext, jobName string, spec manifest.JobSpec) (registry.JobResult, error) {
	rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusRunning))
	rc.Logger.LogOutput(rc.RunID, jobName, fmt.Sprintf("waiting %d seconds…", spec.DurationSeconds))

	timer := time.NewTimer(time.Duration(spec.DurationSeconds) * time.Second)
	defer timer.Stop()

	select {
	case <-timer.C:
		rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusSuccess))
		return registry.JobResult{Status: registry.StatusSuccess}, nil
	case <-ctx.Done():
		rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusCancelled))
		return registry.JobResult{Status: registry.StatusCancelled}, nil
	}
}
