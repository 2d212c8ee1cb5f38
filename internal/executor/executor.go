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

// Package executor runs a single job, of whichever kind, against a
// RunContext shared by the whole pipeline run. Every job kind implements
// the same Executor contract so the Engine and Job Group can dispatch
// without caring which kind they hold.
package executor

import (
	"context"
	"fmt"

	"github.com/jtarchie/cicdbot/internal/manifest"
	"github.com/jtarchie/cicdbot/internal/notifier"
	"github.com/jtarchie/cicdbot/internal/pipelinelog"
	"github.com/jtarchie/cicdbot/internal/registry"
)

// ContainerRunner is the subset of *runner.Runner the ContainerExecutor
// needs. Narrowing it to an interface here (rather than depending on the
// concrete type directly) lets container_test.go exercise step-ordering,
// stop-on-failure, and cancellation behavior without a Docker daemon.
type ContainerRunner interface {
	Run(ctx context.Context, imageRef, command string, env map[string]string, stepName string) (exitCode int, output string, err error)
}

// Executor runs one job and reports its outcome. Implementations must
// treat ctx cancellation as a request to stop promptly and report
// registry.StatusCancelled rather than blocking until natural completion.
type Executor interface {
	Execute(ctx context.Context, rc *RunContext, jobName string, spec manifest.JobSpec) (registry.JobResult, error)
}

// DispatchFunc resolves a job by name within the run's pipeline and
// executes it with the kind-appropriate Executor. Job Group holds one of
// these (rather than importing this package's own Dispatch directly) so
// it can recurse into nested groups without a Go import cycle between
// "the thing that dispatches" and "the thing dispatch calls back into".
type DispatchFunc func(ctx context.Context, rc *RunContext, jobName string, spec manifest.JobSpec) (registry.JobResult, error)

// RunContext is the state one pipeline run's job executions share: the
// run's identity and chat binding, the structured logger and container
// runner backing every job, the notifier used for chat-facing jobs, the
// table of in-flight confirmations, and the dispatcher used to recurse
// into child jobs from a Job Group.
type RunContext struct {
	RunID       int64
	Pipeline    *manifest.Pipeline
	RequesterID int64
	ChatID      *int64
	MessageID   *int64

	Logger   *pipelinelog.Logger
	Runner   ContainerRunner
	Notifier notifier.Notifier
	Pending  *PendingTable

	Dispatch DispatchFunc
}

// Dispatch picks the Executor for spec.Kind and runs it. This is the
// concrete DispatchFunc the Engine installs on every RunContext; Job
// Group is handed the same function value so recursion into nested
// groups goes through this same switch.
func Dispatch(ctx context.Context, rc *RunContext, jobName string, spec manifest.JobSpec) (registry.JobResult, error) {
	var exec Executor
	switch spec.Kind {
	case manifest.KindContainer:
		exec = ContainerExecutor{}
	case manifest.KindTimer:
		exec = TimerExecutor{}
	case manifest.KindConfirmation:
		exec = ConfirmationExecutor{}
	case manifest.KindGroup:
		exec = GroupExecutor{}
	default:
		return registry.JobResult{Status: registry.StatusFailed}, fmt.Errorf("executor: unknown job kind %q for job %q", spec.Kind, jobName)
	}

	return exec.Execute(ctx, rc, jobName, spec)
}
