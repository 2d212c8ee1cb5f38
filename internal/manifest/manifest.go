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

// Package manifest parses pipeline YAML manifests into an immutable
// Pipeline/JobSpec model and validates them against the job-graph rules:
// required fields per job kind, and acyclic group references.
package manifest

// Kind identifies which of the four job variants a JobSpec holds.
type Kind string

const (
	KindContainer    Kind = "default"
	KindTimer        Kind = "timer"
	KindConfirmation Kind = "confirmation"
	KindGroup        Kind = "job_group"

	defaultConfirmTimeout = 300
)

// Pipeline is a parsed, validated manifest. Immutable once returned by Parse.
type Pipeline struct {
	Name     string
	JobOrder []string
	Jobs     map[string]JobSpec
}

// GetJob returns the job spec for name, or false if it isn't defined.
func (p *Pipeline) GetJob(name string) (JobSpec, bool) {
	spec, ok := p.Jobs[name]
	return spec, ok
}

// ListJobs returns the top-level job names in manifest order.
func (p *Pipeline) ListJobs() []string {
	return p.JobOrder
}

// Step is one shell command executed inside a Container job's container.
type Step struct {
	Name  string
	Image string
	Run   string
	Env   map[string]string
}

// JobRef targets a Job or nested Group entry from within a Group.
// IsNecessary=true propagates the target's failure to the enclosing group
// and cancels siblings; IsNecessary=false only accounts for the failure.
type JobRef struct {
	Name        string
	IsNecessary bool
}

// JobSpec is a tagged variant over the four job kinds. Only the fields
// relevant to Kind are populated; the rest stay zero.
type JobSpec struct {
	Kind Kind

	// Container fields.
	Image string
	Steps []Step

	// Timer fields.
	DurationSeconds int

	// Confirmation fields.
	Message        string
	TimeoutSeconds int

	// Group fields.
	Refs []JobRef
}
