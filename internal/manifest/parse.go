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

package manifest

import (
	"fmt"
	"strconv"

	cicdboterrors "github.com/jtarchie/cicdbot/pkg/errors"
	"gopkg.in/yaml.v3"
)

// rawJob mirrors the union of fields any job kind may carry in YAML. Decoded
// once per job, then narrowed into a JobSpec by Kind.
type rawJob struct {
	Type string `yaml:"type"`

	Image string    `yaml:"image"`
	Steps []rawStep `yaml:"steps"`

	Duration *yaml.Node `yaml:"duration"`

	Message        string `yaml:"message"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	Jobs      []rawRef `yaml:"jobs"`
	JobGroups []rawRef `yaml:"job_groups"`
}

type rawStep struct {
	Name  string            `yaml:"name"`
	Image string            `yaml:"image"`
	Run   string            `yaml:"run"`
	Env   map[string]string `yaml:"env"`
}

// rawRef decodes either a bare job-name string or a {name, is_necessary}
// mapping, matching the original manifest grammar's two entry shapes.
type rawRef struct {
	Name        string
	IsNecessary bool
}

func (r *rawRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Name = node.Value
		r.IsNecessary = false
		return nil
	}

	var mapped struct {
		Name        string `yaml:"name"`
		IsNecessary bool   `yaml:"is_necessary"`
	}
	if err := node.Decode(&mapped); err != nil {
		return fmt.Errorf("group entry must be a string or {name, is_necessary} mapping: %w", err)
	}
	r.Name = mapped.Name
	r.IsNecessary = mapped.IsNecessary
	return nil
}

// Parse unmarshals a pipeline manifest, validates it per job kind, and
// checks that every group reference resolves and contains no cycle.
func Parse(text []byte) (*Pipeline, error) {
	var doc struct {
		Name string    `yaml:"name"`
		Jobs yaml.Node `yaml:"jobs"`
	}

	if err := yaml.Unmarshal(text, &doc); err != nil {
		return nil, &cicdboterrors.ValidationError{
			Field:   "manifest",
			Message: fmt.Sprintf("malformed YAML: %v", err),
		}
	}

	if doc.Name == "" {
		return nil, &cicdboterrors.ValidationError{Field: "name", Message: "required"}
	}

	if doc.Jobs.Kind != yaml.MappingNode {
		return nil, &cicdboterrors.ValidationError{Field: "jobs", Message: "required mapping"}
	}

	order, jobs, err := decodeJobs(&doc.Jobs)
	if err != nil {
		return nil, err
	}

	pipeline := &Pipeline{Name: doc.Name, JobOrder: order, Jobs: jobs}

	for name, spec := range jobs {
		if err := validateJob(name, spec); err != nil {
			return nil, err
		}
	}

	if err := checkGroupReferences(pipeline); err != nil {
		return nil, err
	}

	return pipeline, nil
}

// decodeJobs walks the jobs mapping node directly (rather than decoding
// into a Go map) so JobOrder preserves manifest key order the way a Go map
// cannot.
func decodeJobs(node *yaml.Node) ([]string, map[string]JobSpec, error) {
	order := make([]string, 0, len(node.Content)/2)
	jobs := make(map[string]JobSpec, len(node.Content)/2)

	for i := 0; i < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		name := keyNode.Value

		var raw rawJob
		if err := valNode.Decode(&raw); err != nil {
			return nil, nil, &cicdboterrors.ValidationError{
				Field:   fmt.Sprintf("jobs.%s", name),
				Message: fmt.Sprintf("malformed job: %v", err),
			}
		}

		spec, err := toJobSpec(name, raw)
		if err != nil {
			return nil, nil, err
		}

		order = append(order, name)
		jobs[name] = spec
	}

	return order, jobs, nil
}

func toJobSpec(name string, raw rawJob) (JobSpec, error) {
	kind := Kind(raw.Type)
	if kind == "" {
		kind = KindContainer
	}

	switch kind {
	case KindContainer:
		steps := make([]Step, 0, len(raw.Steps))
		for _, s := range raw.Steps {
			stepName := s.Name
			if stepName == "" {
				stepName = "unnamed"
			}
			env := s.Env
			if env == nil {
				env = map[string]string{}
			}
			image := s.Image
			if image == "" {
				image = raw.Image
			}
			steps = append(steps, Step{Name: stepName, Image: image, Run: s.Run, Env: env})
		}
		return JobSpec{Kind: KindContainer, Image: raw.Image, Steps: steps}, nil

	case KindTimer:
		duration := 0
		if raw.Duration != nil {
			d, err := strconv.Atoi(raw.Duration.Value)
			if err != nil {
				return JobSpec{}, &cicdboterrors.ValidationError{
					Field:   fmt.Sprintf("jobs.%s.duration", name),
					Message: "must be a non-negative integer",
				}
			}
			duration = d
		}
		return JobSpec{Kind: KindTimer, DurationSeconds: duration}, nil

	case KindConfirmation:
		timeout := raw.TimeoutSeconds
		if timeout == 0 {
			timeout = defaultConfirmTimeout
		}
		return JobSpec{Kind: KindConfirmation, Message: raw.Message, TimeoutSeconds: timeout}, nil

	case KindGroup:
		refs := make([]JobRef, 0, len(raw.Jobs)+len(raw.JobGroups))
		for _, r := range raw.Jobs {
			refs = append(refs, JobRef{Name: r.Name, IsNecessary: r.IsNecessary})
		}
		for _, r := range raw.JobGroups {
			refs = append(refs, JobRef{Name: r.Name, IsNecessary: r.IsNecessary})
		}
		return JobSpec{Kind: KindGroup, Refs: refs}, nil

	default:
		return JobSpec{}, &cicdboterrors.ValidationError{
			Field:   fmt.Sprintf("jobs.%s.type", name),
			Message: fmt.Sprintf("unknown job type %q", raw.Type),
		}
	}
}

func validateJob(name string, spec JobSpec) error {
	switch spec.Kind {
	case KindContainer:
		if len(spec.Steps) == 0 {
			return &cicdboterrors.ValidationError{Field: fmt.Sprintf("jobs.%s.steps", name), Message: "must be non-empty"}
		}
		for i, step := range spec.Steps {
			if step.Run == "" {
				return &cicdboterrors.ValidationError{
					Field:   fmt.Sprintf("jobs.%s.steps[%d].run", name, i),
					Message: "required",
				}
			}
			if spec.Image == "" && step.Image == "" {
				return &cicdboterrors.ValidationError{
					Field:   fmt.Sprintf("jobs.%s.steps[%d].image", name, i),
					Message: "job and step both lack an image",
				}
			}
		}

	case KindTimer:
		if spec.DurationSeconds < 0 {
			return &cicdboterrors.ValidationError{Field: fmt.Sprintf("jobs.%s.duration", name), Message: "must be non-negative"}
		}

	case KindConfirmation:
		if spec.Message == "" {
			return &cicdboterrors.ValidationError{Field: fmt.Sprintf("jobs.%s.message", name), Message: "required"}
		}

	case KindGroup:
		if len(spec.Refs) == 0 {
			return &cicdboterrors.ValidationError{Field: fmt.Sprintf("jobs.%s", name), Message: "group must reference at least one job"}
		}
	}

	return nil
}

// checkGroupReferences validates that every group entry resolves to a
// defined job and that no cycle exists among group references. A cycle
// would otherwise hang the engine's recursive group dispatch indefinitely —
// the original manifest parser has no such check.
func checkGroupReferences(p *Pipeline) error {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(p.Jobs))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		spec, ok := p.Jobs[name]
		if !ok {
			return &cicdboterrors.ValidationError{
				Field:   fmt.Sprintf("jobs.%s", name),
				Message: "referenced but not defined",
			}
		}
		if spec.Kind != KindGroup {
			return nil
		}

		switch state[name] {
		case visiting:
			return &cicdboterrors.ValidationError{
				Field:   fmt.Sprintf("jobs.%s", name),
				Message: fmt.Sprintf("cyclic group reference: %v", append(path, name)),
			}
		case visited:
			return nil
		}

		state[name] = visiting
		for _, ref := range spec.Refs {
			if err := visit(ref.Name, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited

		return nil
	}

	for _, spec := range p.Jobs {
		if spec.Kind != KindGroup {
			continue
		}
		for _, ref := range spec.Refs {
			if err := visit(ref.Name, nil); err != nil {
				return err
			}
		}
	}

	return nil
}
