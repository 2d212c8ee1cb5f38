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

// Package notifier defines the chat-transport contract the core consumes
// for posting run status and routing confirmation button presses back in.
package notifier

import "context"

// Button is one inline keyboard button attached to a posted message.
type Button struct {
	Label    string
	Callback string
}

// Callback is a decoded button press, routed back to the core by the host.
type Callback struct {
	Action  string // "confirm" or "cancel"
	RunID   int64
	JobName string
	UserID  int64
}

// Notifier is the three capabilities the core requires from a chat
// transport. Errors from Edit are swallowed by callers (the message may
// have been deleted); errors from Post propagate.
type Notifier interface {
	// Post sends text to chatID, optionally with inline buttons, and
	// returns the new message's ID.
	Post(ctx context.Context, chatID int64, text string, buttons []Button) (messageID int64, err error)

	// Edit replaces the text of an existing message.
	Edit(ctx context.Context, chatID, messageID int64, text string) error

	// DecodeCallback parses raw callback data from a button press into a
	// Callback, or returns false if the data doesn't match the
	// confirm_/cancel_ grammar.
	DecodeCallback(data string, userID int64) (Callback, bool)
}
