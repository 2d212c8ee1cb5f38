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

// Package telegram implements notifier.Notifier as a thin REST client
// against the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jtarchie/cicdbot/internal/notifier"
	cicdboterrors "github.com/jtarchie/cicdbot/pkg/errors"
)

const defaultBaseURL = "https://api.telegram.org"

// Adapter is a notifier.Notifier backed by the Telegram Bot API. Unlike a
// full connector framework, it speaks only the handful of methods the core
// needs: sendMessage, editMessageText, and the inline keyboard markup for
// Confirm/Cancel buttons.
type Adapter struct {
	token   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// New builds an Adapter for the given bot token. Outbound calls are
// rate-limited to Telegram's documented ceiling of roughly 30 messages per
// second, with a burst of one to keep the limiter simple to reason about.
func New(token string) *Adapter {
	return &Adapter{
		token:   token,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(30), 1),
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type sendMessageRequest struct {
	ChatID      int64  `json:"chat_id"`
	Text        string `json:"text"`
	ReplyMarkup *struct {
		InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
	} `json:"reply_markup,omitempty"`
}

type editMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type messageResult struct {
	MessageID int64 `json:"message_id"`
}

// Post sends text to chatID, attaching an inline keyboard when buttons are
// given, and returns the Telegram message ID.
func (a *Adapter) Post(ctx context.Context, chatID int64, text string, buttons []notifier.Button) (int64, error) {
	req := sendMessageRequest{ChatID: chatID, Text: text}
	if len(buttons) > 0 {
		row := make([]inlineButton, 0, len(buttons))
		for _, b := range buttons {
			row = append(row, inlineButton{Text: b.Label, CallbackData: b.Callback})
		}
		req.ReplyMarkup = &struct {
			InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
		}{InlineKeyboard: [][]inlineButton{row}}
	}

	var result messageResult
	if err := a.call(ctx, "sendMessage", req, &result); err != nil {
		return 0, fmt.Errorf("telegram: post message: %w", err)
	}
	return result.MessageID, nil
}

// Edit replaces the text of an existing message. Per the Notifier
// contract, the Engine is expected to swallow this error (the message may
// have already been deleted by the user); Edit itself still reports it so
// callers that care can log it.
func (a *Adapter) Edit(ctx context.Context, chatID, messageID int64, text string) error {
	req := editMessageRequest{ChatID: chatID, MessageID: messageID, Text: text}
	if err := a.call(ctx, "editMessageText", req, nil); err != nil {
		return fmt.Errorf("telegram: edit message: %w", err)
	}
	return nil
}

// DecodeCallback parses Telegram inline-button callback data of the form
// "confirm_<runID>_<jobName>" or "cancel_<runID>_<jobName>".
func (a *Adapter) DecodeCallback(data string, userID int64) (notifier.Callback, bool) {
	var action, rest string
	switch {
	case strings.HasPrefix(data, "confirm_"):
		action, rest = "confirm", strings.TrimPrefix(data, "confirm_")
	case strings.HasPrefix(data, "cancel_"):
		action, rest = "cancel", strings.TrimPrefix(data, "cancel_")
	default:
		return notifier.Callback{}, false
	}

	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 {
		return notifier.Callback{}, false
	}

	runID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return notifier.Callback{}, false
	}

	return notifier.Callback{
		Action:  action,
		RunID:   runID,
		JobName: parts[1],
		UserID:  userID,
	}, true
}

// call executes a single Telegram Bot API method, rate-limited, decoding
// the JSON result into out when non-nil.
func (a *Adapter) call(ctx context.Context, method string, body interface{}, out interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", a.baseURL, a.token, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if !decoded.OK {
		return &cicdboterrors.ConfigError{
			Key:    "telegram." + method,
			Reason: decoded.Description,
		}
	}

	if out != nil && len(decoded.Result) > 0 {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("parsing result: %w", err)
		}
	}

	return nil
}
