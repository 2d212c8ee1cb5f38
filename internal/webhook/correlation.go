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

package webhook

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// headerCorrelationID is the response header carrying the request's
// correlation ID, so an operator can match a webhook call back to the
// log line it produced.
const headerCorrelationID = "X-Correlation-ID"

type correlationKeyType struct{}

var correlationKey = correlationKeyType{}

// correlationIDFromContext returns the request's correlation ID, or ""
// if none was attached.
func correlationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// withCorrelationID extracts X-Correlation-ID from the incoming request,
// generating a fresh UUID when absent, stores it in the request context,
// and echoes it back on the response.
func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(headerCorrelationID, id)
		ctx := context.WithValue(r.Context(), correlationKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
