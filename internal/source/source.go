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

// Package source defines where pipeline manifests come from, and carries
// two implementations: a remote GitHub repository and a local directory.
package source

import "context"

// ManifestSource lists and fetches pipeline manifest YAML from wherever
// they're stored.
type ManifestSource interface {
	// ListPipelines returns the manifest file names currently available.
	ListPipelines(ctx context.Context) ([]string, error)

	// GetPipelineYAML fetches the raw YAML for a single manifest by name.
	GetPipelineYAML(ctx context.Context, name string) (string, error)
}
