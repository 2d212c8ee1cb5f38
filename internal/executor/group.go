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

	"golang.org/x/sync/errgroup"

	"github.com/jtarchie/cicdbot/internal/manifest"
	"github.com/jtarchie/cicdbot/internal/registry"
)

// GroupExecutor runs every referenced job concurrently. A necessary
// child's failure cancels every still-pending sibling; a non-necessary
// child's failure is only counted. errgroup handles the necessary-failure
// short-circuit (it cancels its context on the first returned error); a
// separate, un-short-circuited tally captures every child's outcome so
// non-necessary failures don't need to propagate through the errgroup's
// error to be counted.
type GroupExecutor struct{}

func (GroupExecutor) Execute(ctx context.Context, rc *RunContext, jobName string, spec manifest.JobSpec) (registry.JobResult, error) {
	rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusRunning))

	g, groupCtx := errgroup.WithContext(ctx)

	var (
		mu              sync.Mutex
		completed       int
		failed          int
		necessaryFailed bool
	)

	for _, ref := range spec.Refs {
		ref := ref

		childSpec, ok := rc.Pipeline.GetJob(ref.Name)
		if !ok {
			return registry.JobResult{}, fmt.Errorf("executor: group %q references undefined job %q", jobName, ref.Name)
		}

		g.Go(func() error {
			result, err := rc.Dispatch(groupCtx, rc, ref.Name, childSpec)
			if err != nil {
				result = registry.JobResult{Status: registry.StatusFailed}
			}

			mu.Lock()
			if result.Status == registry.StatusSuccess {
				completed++
			} else {
				failed++
				if ref.IsNecessary {
					necessaryFailed = true
				}
			}
			mu.Unlock()

			if ref.IsNecessary && result.Status != registry.StatusSuccess {
				return fmt.Errorf("executor: necessary child %q of group %q ended in status %q", ref.Name, jobName, result.Status)
			}
			return nil
		})
	}

	// g.Wait's returned error only ever signals that some necessary child
	// failed (and is itself used solely to trigger groupCtx cancellation
	// for the remaining siblings); the tally above is the source of truth.
	_ = g.Wait()

	status := registry.StatusSuccess
	if necessaryFailed {
		status = registry.StatusFailed
	}

	rc.Logger.LogStatus(rc.RunID, jobName, string(status))

	return registry.JobResult{
		Status:    status,
		Completed: completed,
		Failed:    failed,
	}, nil
}
