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

package log

import (
	"log/slog"
	"net/http"
	"time"
)

// HTTPRequest represents an inbound HTTP request for logging purposes.
// Used by the daemon's /healthz, /metrics, and /webhook/telegram handlers.
type HTTPRequest struct {
	// Method is the HTTP method (GET, POST, ...).
	Method string

	// Path is the request path.
	Path string

	// RemoteAddr is the remote address of the client.
	RemoteAddr string

	// Metadata contains additional request metadata (e.g., webhook event type).
	Metadata map[string]interface{}
}

// HTTPResponse represents the outcome of handling an HTTP request.
type HTTPResponse struct {
	// StatusCode is the HTTP status code returned.
	StatusCode int

	// Error is the error message if handling failed.
	Error string

	// DurationMs is the duration of the request in milliseconds.
	DurationMs int64
}

// LogHTTPRequest logs an incoming HTTP request.
func LogHTTPRequest(logger *slog.Logger, req *HTTPRequest) {
	attrs := []any{
		"event", "http_request",
		"method", req.Method,
		"path", req.Path,
		"remote", req.RemoteAddr,
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("http request received", attrs...)
}

// LogHTTPResponse logs the outcome of an HTTP request.
func LogHTTPResponse(logger *slog.Logger, req *HTTPRequest, resp *HTTPResponse) {
	attrs := []any{
		"event", "http_response",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration_ms", resp.DurationMs,
		"remote", req.RemoteAddr,
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	level := slog.LevelInfo
	message := "http request completed"

	if resp.StatusCode >= 500 {
		level = slog.LevelError
		message = "http request failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// HTTPMiddleware wraps an http.Handler with structured request/response logging.
type HTTPMiddleware struct {
	logger *slog.Logger
}

// NewHTTPMiddleware creates a new HTTP logging middleware.
func NewHTTPMiddleware(logger *slog.Logger) *HTTPMiddleware {
	return &HTTPMiddleware{
		logger: logger,
	}
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Wrap returns an http.Handler that logs the request and response around
// the given handler.
func (m *HTTPMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		req := &HTTPRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			RemoteAddr: r.RemoteAddr,
		}
		LogHTTPRequest(m.logger, req)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		LogHTTPResponse(m.logger, req, &HTTPResponse{
			StatusCode: rec.status,
			DurationMs: time.Since(start).Milliseconds(),
		})
	})
}
