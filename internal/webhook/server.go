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

// Package webhook is the daemon's HTTP surface: liveness, Prometheus
// metrics, and the inbound Telegram webhook that drives the Control API.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jtarchie/cicdbot/internal/config"
	"github.com/jtarchie/cicdbot/internal/controlapi"
	"github.com/jtarchie/cicdbot/internal/executor"
	"github.com/jtarchie/cicdbot/internal/notifier"
)

// Server is the daemon's http.Handler: /healthz, /metrics, and
// /webhook/telegram.
type Server struct {
	mux       *http.ServeMux
	api       *controlapi.API
	notifier  notifier.Notifier
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
}

// NewServer wires a Server over an already-constructed Control API and
// Notifier.
func NewServer(api *controlapi.API, notif notifier.Notifier, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:       http.NewServeMux(),
		api:       api,
		notifier:  notif,
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("POST /webhook/telegram", s.handleTelegramWebhook)

	return s
}

// ServeHTTP implements http.Handler. Every request is tagged with a
// correlation ID (incoming X-Correlation-ID header, or a generated one)
// before it reaches the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withCorrelationID(s.mux).ServeHTTP(w, r)
}

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Runtime string `json:"runtime"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
		Runtime: runtime.Version(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.logger.Warn("webhook: decoding telegram update failed",
			"error", err, "correlation_id", correlationIDFromContext(r.Context()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	switch {
	case update.CallbackQuery != nil:
		s.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		s.handleMessage(ctx, update.Message)
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCallback(ctx context.Context, cq *telegramCallbackQuery) {
	cb, ok := s.notifier.DecodeCallback(cq.Data, cq.From.ID)
	if !ok {
		s.logger.Warn("webhook: unrecognized callback data", "data", cq.Data)
		return
	}

	decision := executor.DecisionCancel
	if cb.Action == "confirm" {
		decision = executor.DecisionConfirm
	}

	if !s.api.ResolveConfirmation(cb.RunID, cb.JobName, decision) {
		s.logger.Debug("webhook: callback had no matching pending confirmation", "run_id", cb.RunID, "job", cb.JobName)
	}
}

func (s *Server) handleMessage(ctx context.Context, msg *telegramMessage) {
	if !s.cfg.IsAllowedUser(msg.From.ID) {
		s.reply(ctx, msg.Chat.ID, "You are not authorized to use this bot.")
		return
	}

	cmd, arg := splitCommand(msg.Text)

	switch cmd {
	case "/pipelines":
		s.handlePipelines(ctx, msg.Chat.ID)
	case "/run":
		s.handleRun(ctx, msg.Chat.ID, msg.From.ID, arg)
	case "/status":
		s.handleStatus(ctx, msg.Chat.ID, arg)
	case "/logs":
		s.handleLogs(ctx, msg.Chat.ID, arg)
	default:
		s.reply(ctx, msg.Chat.ID, "Unknown command. Try /pipelines, /run <name>, /status <run_id>, or /logs <run_id>.")
	}
}

func (s *Server) handlePipelines(ctx context.Context, chatID int64) {
	pipelines := s.api.ListPipelines()
	if len(pipelines) == 0 {
		s.reply(ctx, chatID, "No pipelines discovered.")
		return
	}

	text := "Pipelines:\n"
	for name, info := range pipelines {
		text += "- " + name
		if info.AutoRun {
			text += " (auto-run)"
		}
		text += "\n"
	}
	s.reply(ctx, chatID, text)
}

func (s *Server) handleRun(ctx context.Context, chatID, requesterID int64, manifestName string) {
	if manifestName == "" {
		s.reply(ctx, chatID, "Usage: /run <manifest>")
		return
	}

	messageID, err := s.notifier.Post(ctx, chatID, "Starting "+manifestName+"...", nil)
	if err != nil {
		s.logger.Error("webhook: posting start message failed", "error", err)
		return
	}

	if _, err := s.api.Start(ctx, manifestName, requesterID, &chatID, &messageID); err != nil {
		_ = s.notifier.Edit(ctx, chatID, messageID, "Failed to start "+manifestName+": "+err.Error())
	}
}

func (s *Server) handleStatus(ctx context.Context, chatID int64, runIDStr string) {
	runID, ok := parseRunID(runIDStr)
	if !ok {
		s.reply(ctx, chatID, "Usage: /status <run_id>")
		return
	}

	run, ok := s.api.Status(runID)
	if !ok {
		s.reply(ctx, chatID, "Unknown run.")
		return
	}

	s.reply(ctx, chatID, run.ManifestName+": "+string(run.Status))
}

func (s *Server) handleLogs(ctx context.Context, chatID int64, runIDStr string) {
	runID, ok := parseRunID(runIDStr)
	if !ok {
		s.reply(ctx, chatID, "Usage: /logs <run_id>")
		return
	}

	lines, err := s.api.Logs(runID)
	if err != nil {
		s.reply(ctx, chatID, "Failed to fetch logs: "+err.Error())
		return
	}
	if len(lines) == 0 {
		s.reply(ctx, chatID, "No logs for that run.")
		return
	}

	text := ""
	for _, line := range lines {
		text += line + "\n"
	}
	s.reply(ctx, chatID, text)
}

func (s *Server) reply(ctx context.Context, chatID int64, text string) {
	if _, err := s.notifier.Post(ctx, chatID, text, nil); err != nil {
		s.logger.Warn("webhook: posting reply failed", "error", err)
	}
}
