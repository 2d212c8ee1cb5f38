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

// Package github implements source.ManifestSource against a GitHub
// repository's Contents API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	cicdboterrors "github.com/jtarchie/cicdbot/pkg/errors"
)

const defaultAPIBaseURL = "https://api.github.com"

// Source lists and fetches pipeline manifests from the contents/ path of
// a GitHub repository.
type Source struct {
	owner         string
	repo          string
	pipelinesPath string
	branch        string
	apiBaseURL    string
	client        *http.Client
}

// New parses repoURL (either "https://github.com/owner/repo[.git]" or
// "git@github.com:owner/repo[.git]") and builds a Source authenticated
// with token via an oauth2.StaticTokenSource-backed http.Client.
func New(repoURL, pipelinesPath, branch, token string) (*Source, error) {
	owner, repo, err := parseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	if branch == "" {
		branch = "main"
	}

	var client *http.Client
	if token != "" {
		client = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token, TokenType: "token"},
		))
	} else {
		client = http.DefaultClient
	}

	return &Source{
		owner:         owner,
		repo:          repo,
		pipelinesPath: pipelinesPath,
		branch:        branch,
		apiBaseURL:    defaultAPIBaseURL,
		client:        client,
	}, nil
}

func parseRepoURL(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(repoURL), ".git")

	var rest string
	switch {
	case strings.HasPrefix(trimmed, "https://github.com/"):
		rest = strings.TrimPrefix(trimmed, "https://github.com/")
	case strings.HasPrefix(trimmed, "git@github.com:"):
		rest = strings.TrimPrefix(trimmed, "git@github.com:")
	default:
		return "", "", &cicdboterrors.ValidationError{
			Field:      "github.repo_url",
			Message:    fmt.Sprintf("unsupported repository URL format: %s", repoURL),
			Suggestion: "use https://github.com/owner/repo or git@github.com:owner/repo",
		}
	}

	parts := strings.Split(rest, "/")
	if len(parts) < 2 {
		return "", "", &cicdboterrors.ValidationError{
			Field:   "github.repo_url",
			Message: fmt.Sprintf("malformed repository URL: %s", repoURL),
		}
	}

	return parts[0], parts[1], nil
}

type contentsEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type contentsFile struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// ListPipelines lists the *.yaml/*.yml files under the configured
// pipelines path. A 404 (path doesn't exist yet) is treated as an empty
// list rather than an error, matching the Python original.
func (s *Source) ListPipelines(ctx context.Context) ([]string, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		s.apiBaseURL, s.owner, s.repo, s.pipelinesPath, url.QueryEscape(s.branch))

	resp, status, err := s.get(ctx, apiURL)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("source: listing pipelines: unexpected status %d", status)
	}

	var entries []contentsEntry
	if err := json.Unmarshal(resp, &entries); err != nil {
		return nil, fmt.Errorf("source: parsing contents listing: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type != "file" {
			continue
		}
		if strings.HasSuffix(e.Name, ".yaml") || strings.HasSuffix(e.Name, ".yml") {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// GetPipelineYAML fetches and base64-decodes a single manifest file's
// content.
func (s *Source) GetPipelineYAML(ctx context.Context, name string) (string, error) {
	filePath := fmt.Sprintf("%s/%s", s.pipelinesPath, name)
	apiURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		s.apiBaseURL, s.owner, s.repo, filePath, url.QueryEscape(s.branch))

	body, status, err := s.get(ctx, apiURL)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &cicdboterrors.NotFoundError{Resource: "pipeline manifest", ID: name}
	}

	var file contentsFile
	if err := json.Unmarshal(body, &file); err != nil {
		return "", fmt.Errorf("source: parsing file contents: %w", err)
	}

	if file.Encoding != "base64" {
		return file.Content, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("source: decoding base64 content: %w", err)
	}
	return string(decoded), nil
}

func (s *Source) get(ctx context.Context, apiURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("source: building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("source: executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("source: reading response: %w", err)
	}

	return body, resp.StatusCode, nil
}
