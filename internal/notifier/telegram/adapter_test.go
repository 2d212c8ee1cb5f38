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

package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jtarchie/cicdbot/internal/notifier"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := New("test-token")
	a.baseURL = srv.URL
	return a, srv
}

func TestPost_SendsMessageAndReturnsID(t *testing.T) {
	var capturedPath string
	var capturedBody sendMessageRequest

	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&capturedBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":42}}`))
	})

	id, err := a.Post(context.Background(), 123, "hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Errorf("expected message ID 42, got %d", id)
	}
	if !strings.Contains(capturedPath, "/bottest-token/sendMessage") {
		t.Errorf("unexpected request path: %s", capturedPath)
	}
	if capturedBody.ChatID != 123 || capturedBody.Text != "hello" {
		t.Errorf("unexpected request body: %+v", capturedBody)
	}
}

func TestPost_WithButtonsIncludesInlineKeyboard(t *testing.T) {
	var capturedBody sendMessageRequest

	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&capturedBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	buttons := []notifier.Button{
		{Label: "Confirm", Callback: "confirm_1_deploy"},
		{Label: "Cancel", Callback: "cancel_1_deploy"},
	}
	if _, err := a.Post(context.Background(), 1, "proceed?", buttons); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capturedBody.ReplyMarkup == nil {
		t.Fatal("expected reply markup to be set")
	}
	row := capturedBody.ReplyMarkup.InlineKeyboard[0]
	if len(row) != 2 || row[0].CallbackData != "confirm_1_deploy" {
		t.Errorf("unexpected inline keyboard: %+v", row)
	}
}

func TestPost_APIErrorPropagates(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	})

	_, err := a.Post(context.Background(), 1, "hi", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("expected error to mention reason, got: %v", err)
	}
}

func TestEdit_SendsEditMessageText(t *testing.T) {
	var capturedBody editMessageRequest

	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "editMessageText") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&capturedBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	if err := a.Edit(context.Background(), 1, 42, "updated"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedBody.MessageID != 42 || capturedBody.Text != "updated" {
		t.Errorf("unexpected request body: %+v", capturedBody)
	}
}

func TestDecodeCallback_ConfirmAndCancel(t *testing.T) {
	a := New("test-token")

	cb, ok := a.DecodeCallback("confirm_7_deploy-prod", 99)
	if !ok {
		t.Fatal("expected confirm callback to decode")
	}
	if cb.Action != "confirm" || cb.RunID != 7 || cb.JobName != "deploy-prod" || cb.UserID != 99 {
		t.Errorf("unexpected callback: %+v", cb)
	}

	cb, ok = a.DecodeCallback("cancel_7_deploy-prod", 99)
	if !ok {
		t.Fatal("expected cancel callback to decode")
	}
	if cb.Action != "cancel" {
		t.Errorf("expected cancel action, got %s", cb.Action)
	}
}

func TestDecodeCallback_UnrecognizedDataReturnsFalse(t *testing.T) {
	a := New("test-token")

	if _, ok := a.DecodeCallback("something_else", 1); ok {
		t.Error("expected unrecognized callback data to not decode")
	}
	if _, ok := a.DecodeCallback("confirm_notanumber_job", 1); ok {
		t.Error("expected non-numeric run ID to fail decode")
	}
}
