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

	"github.com/jtarchie/cicdbot/internal/manifest"
	"github.com/jtarchie/cicdbot/internal/registry"
)

// ContainerExecutor runs a Container Job's steps in order inside the
// shared Runner, stopping at the first step whose command exits non-zero.
type ContainerExecutor struct{}

func (ContainerExecutor) Execute(ctx context.Context, rc *RunContext, jobName string, spec manifest.JobSpec) (registry.JobResult, error) {
	if len(spec.Steps) == 0 {
		rc.Logger.LogError(rc.RunID, jobName, "job has no steps")
		rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusFailed))
		return registry.JobResult{Status: registry.StatusFailed}, nil
	}

	rc.Logger.LogStatus(rc.RunID, jobName, string(registry.StatusRunning))

	result := registry.JobResult{Status: registry.StatusSuccess}

	for _, step := range spec.Steps {
		if ctx.Err() != nil {
			result.Status = registry.StatusCancelled
			break
		}

		rc.Logger.LogStatus(rc.RunID, step.Name, string(registry.StatusRunning))

		exitCode, output, err := rc.Runner.Run(ctx, step.Image, step.Run, step.Env, step.Name)
		if err != nil {
			if ctx.Err() != nil {
				result.Status = registry.StatusCancelled
				break
			}
			return registry.JobResult{}, fmt.Errorf("executor: running step %q of job %q: %w", step.Name, jobName, err)
		}

		if output != "" {
			rc.Logger.LogOutput(rc.RunID, step.Name, output)
		}
		rc.Logger.LogStepCompletion(rc.RunID, step.Name, exitCode)

		if exitCode != 0 {
			rc.Logger.LogError(rc.RunID, step.Name, fmt.Sprintf("step %q exited with code %d", step.Name, exitCode))
			result.StepsFailed++
			result.Status = registry.StatusFailed
			break
		}

		result.StepsCompleted++
	}

	rc.Logger.LogStatus(rc.RunID, jobName, string(result.Status))
	return result, nil
}
