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

package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// PipelineInfo is the persisted per-manifest state (currently just the
// auto-run flag).
type PipelineInfo struct {
	AutoRun bool `json:"auto_run"`
}

// SubscriptionEntry binds a subscribed chat to a manifest's live status
// message and the run it currently tracks.
type SubscriptionEntry struct {
	MessageID int64  `json:"message_id"`
	RunID     *int64 `json:"run_id"`
}

// Sidecar persists pipeline and subscription state to two JSON files in a
// log directory, surviving process restarts. Each save writes to a temp
// file and renames over the target, which is atomic on POSIX filesystems.
type Sidecar struct {
	mu                sync.Mutex
	pipelinesPath     string
	subscriptionsPath string
	logger            *slog.Logger
}

// NewSidecar creates dir if necessary and returns a Sidecar whose files
// live under it; the files themselves are written on the first save.
func NewSidecar(dir string, logger *slog.Logger) (*Sidecar, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: creating sidecar directory: %w", err)
	}

	s := &Sidecar{
		pipelinesPath:     filepath.Join(dir, "pipelines.json"),
		subscriptionsPath: filepath.Join(dir, "subscriptions.json"),
		logger:            logger,
	}

	return s, nil
}

// LoadPipelines returns the persisted per-manifest info. Corrupted or
// missing JSON is treated as an empty map, logged at warn rather than
// treated as fatal.
func (s *Sidecar) LoadPipelines() map[string]PipelineInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pipelines map[string]PipelineInfo
	if err := loadJSON(s.pipelinesPath, &pipelines); err != nil {
		s.logger.Warn("sidecar: failed to load pipelines.json, starting empty", "error", err)
		return map[string]PipelineInfo{}
	}
	if pipelines == nil {
		pipelines = map[string]PipelineInfo{}
	}
	return pipelines
}

// SetAutoRun updates a manifest's auto-run flag, creating its entry if
// absent.
func (s *Sidecar) SetAutoRun(manifestName string, autoRun bool) error {
	pipelines := s.LoadPipelines()
	info := pipelines[manifestName]
	info.AutoRun = autoRun
	pipelines[manifestName] = info

	s.mu.Lock()
	defer s.mu.Unlock()
	return saveJSON(s.pipelinesPath, pipelines)
}

// LoadSubscriptions returns every persisted chat subscription, keyed by
// chat ID then manifest name. Corrupted or missing JSON is treated as
// empty.
func (s *Sidecar) LoadSubscriptions() map[int64]map[string]SubscriptionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw map[string]map[string]SubscriptionEntry
	if err := loadJSON(s.subscriptionsPath, &raw); err != nil {
		s.logger.Warn("sidecar: failed to load subscriptions.json, starting empty", "error", err)
		raw = map[string]map[string]SubscriptionEntry{}
	}

	subs := make(map[int64]map[string]SubscriptionEntry, len(raw))
	for chatKey, perManifest := range raw {
		chatID, err := strconv.ParseInt(chatKey, 10, 64)
		if err != nil {
			continue
		}
		subs[chatID] = perManifest
	}
	return subs
}

// SubscribeChat records that chatID is watching manifestName via
// messageID, replacing any prior subscription for that pair.
func (s *Sidecar) SubscribeChat(chatID int64, manifestName string, messageID int64) error {
	subs := s.LoadSubscriptions()
	if subs[chatID] == nil {
		subs[chatID] = map[string]SubscriptionEntry{}
	}
	subs[chatID][manifestName] = SubscriptionEntry{MessageID: messageID}

	return s.saveSubscriptions(subs)
}

// UnsubscribeChat removes chatID's subscription to manifestName, if any.
func (s *Sidecar) UnsubscribeChat(chatID int64, manifestName string) error {
	subs := s.LoadSubscriptions()
	if perManifest, ok := subs[chatID]; ok {
		delete(perManifest, manifestName)
		if len(perManifest) == 0 {
			delete(subs, chatID)
		}
	}

	return s.saveSubscriptions(subs)
}

// UpdateSubscriptionRun records the run currently associated with an
// existing chat subscription.
func (s *Sidecar) UpdateSubscriptionRun(chatID int64, manifestName string, runID int64) error {
	subs := s.LoadSubscriptions()
	perManifest, ok := subs[chatID]
	if !ok {
		return nil
	}
	entry, ok := perManifest[manifestName]
	if !ok {
		return nil
	}
	entry.RunID = &runID
	perManifest[manifestName] = entry

	return s.saveSubscriptions(subs)
}

func (s *Sidecar) saveSubscriptions(subs map[int64]map[string]SubscriptionEntry) error {
	raw := make(map[string]map[string]SubscriptionEntry, len(subs))
	for chatID, perManifest := range subs {
		raw[strconv.FormatInt(chatID, 10)] = perManifest
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return saveJSON(s.subscriptionsPath, raw)
}

func loadJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// saveJSON writes data to path via write-to-temp-then-rename, atomic on
// POSIX filesystems.
func saveJSON(path string, data interface{}) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming temp file into %s: %w", path, err)
	}

	return nil
}
