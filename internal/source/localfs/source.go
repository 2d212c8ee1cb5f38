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

// Package localfs implements source.ManifestSource against a directory
// of manifest files on disk, with optional fsnotify-driven change
// notification for development and tests.
package localfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	cicdboterrors "github.com/jtarchie/cicdbot/pkg/errors"
)

// Source lists and fetches pipeline manifests from a directory. Unlike
// github.Source it has no network round trip, so ListPipelines is
// effectively free to call on every discover().
type Source struct {
	dir string
}

// New builds a Source rooted at dir.
func New(dir string) *Source {
	return &Source{dir: dir}
}

// ListPipelines globs dir for *.yaml/*.yml files, returning base names.
func (s *Source) ListPipelines(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("localfs: reading directory %s: %w", s.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, err := doublestar.Match("*.{yaml,yml}", entry.Name())
		if err != nil {
			return nil, fmt.Errorf("localfs: matching %s: %w", entry.Name(), err)
		}
		if matched {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// GetPipelineYAML reads a single manifest file's contents.
func (s *Source) GetPipelineYAML(ctx context.Context, name string) (string, error) {
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", &cicdboterrors.ValidationError{Field: "name", Message: fmt.Sprintf("invalid manifest name: %s", name)}
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", &cicdboterrors.NotFoundError{Resource: "pipeline manifest", ID: name}
		}
		return "", fmt.Errorf("localfs: reading %s: %w", name, err)
	}
	return string(data), nil
}

// Watcher notifies a callback whenever a manifest file is created,
// written, or removed within the directory. It exists for development
// convenience (auto re-discover on manifest edit) and tests; discover()
// itself always re-lists the directory fresh, so this is strictly an
// optimization to avoid polling.
type Watcher struct {
	fsw    *fsnotify.Watcher
	logger *slog.Logger
	done   chan struct{}
}

// WatchChanges starts watching dir for manifest file changes, invoking
// onChange (with the changed file's base name) for every create/write/
// remove event. Call Close to stop.
func (s *Source) WatchChanges(logger *slog.Logger, onChange func(name string)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("localfs: creating watcher: %w", err)
	}
	if err := fsw.Add(s.dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("localfs: watching %s: %w", s.dir, err)
	}

	w := &Watcher{fsw: fsw, logger: logger, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0 {
					onChange(name)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("localfs: watcher error", "error", err)
			}
		}
	}()

	return w, nil
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
