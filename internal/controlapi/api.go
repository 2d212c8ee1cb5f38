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

// Package controlapi is the thin read-through surface chat and HTTP
// handlers call into. It has no business logic of its own: every method
// delegates straight to the Engine or Sidecar. Authorization is an
// external concern — API assumes every call it receives is authorized.
package controlapi

import (
	"context"

	"github.com/jtarchie/cicdbot/internal/engine"
	"github.com/jtarchie/cicdbot/internal/executor"
	"github.com/jtarchie/cicdbot/internal/registry"
)

// API is the facade handlers use instead of reaching into the engine,
// registry, and sidecar directly.
type API struct {
	engine  *engine.Engine
	sidecar *registry.Sidecar
}

// New builds an API over an already-constructed Engine and Sidecar.
func New(e *engine.Engine, sidecar *registry.Sidecar) *API {
	return &API{engine: e, sidecar: sidecar}
}

// Discover re-lists and re-parses every manifest from the configured
// source, updating the discovered-pipelines table.
func (a *API) Discover(ctx context.Context) error {
	return a.engine.Discover(ctx)
}

// ListPipelines returns every discovered manifest and its auto-run flag.
func (a *API) ListPipelines() map[string]registry.PipelineInfo {
	return a.engine.ListPipelines()
}

// Start launches a new run of manifestName and returns its ID.
func (a *API) Start(ctx context.Context, manifestName string, requesterID int64, chatID, messageID *int64) (int64, error) {
	return a.engine.Start(ctx, manifestName, requesterID, chatID, messageID)
}

// Status returns a snapshot of a run, or false if runID is unknown.
func (a *API) Status(runID int64) (*registry.Run, bool) {
	return a.engine.Status(runID)
}

// Logs returns the structured log lines belonging to a run.
func (a *API) Logs(runID int64) ([]string, error) {
	return a.engine.Logs(runID)
}

// Subscribe binds a chat to a manifest's live status message.
func (a *API) Subscribe(chatID int64, manifestName string, messageID int64) error {
	return a.sidecar.SubscribeChat(chatID, manifestName, messageID)
}

// Unsubscribe removes a chat's subscription to a manifest.
func (a *API) Unsubscribe(chatID int64, manifestName string) error {
	return a.sidecar.UnsubscribeChat(chatID, manifestName)
}

// ResolveConfirmation wakes a pending Confirmation Job, per the callback
// decoded from an inline-button press.
func (a *API) ResolveConfirmation(runID int64, jobName string, decision executor.Decision) bool {
	return a.engine.ResolveConfirmation(runID, jobName, decision)
}
