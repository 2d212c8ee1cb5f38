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

// Package timeline renders a run's pipelinelog as an ASCII timeline:
// one bar per job/step, proportional to when it ran within the run.
package timeline

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/jtarchie/cicdbot/internal/pipelinelog"
)

const (
	// MinTerminalWidth is the minimum supported terminal width.
	MinTerminalWidth = 80
	// DefaultBarWidth is the default width for duration bars.
	DefaultBarWidth = 40
	// StatusIconOK indicates successful completion.
	StatusIconOK = "✓"
	// StatusIconError indicates failure.
	StatusIconError = "✗"
)

// TimelineSpan is one job/step's observed start, end, and outcome within
// a run, derived from pipelinelog.LogLine entries sharing a Name.
type TimelineSpan struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Failed    bool
}

// Renderer renders ASCII timelines from a run's log lines.
type Renderer struct {
	Width    int
	BarWidth int
}

// NewRenderer creates a timeline renderer sized to the current terminal.
func NewRenderer() (*Renderer, error) {
	width, _, err := term.GetSize(0)
	if err != nil {
		width = 100
	}

	if width < MinTerminalWidth {
		return nil, fmt.Errorf("timeline: terminal width %d is too narrow (minimum %d columns)", width, MinTerminalWidth)
	}

	// Reserve space for the border, name column, and duration/status
	// columns: "│ step_name ██████░░░░  duration  status │".
	barWidth := width - 40
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < DefaultBarWidth {
		barWidth = DefaultBarWidth
	}

	return &Renderer{Width: width, BarWidth: barWidth}, nil
}

// BuildSpans groups a run's raw log lines by job/step name into spans: a
// span's start is its first line's timestamp, its end is its last line's
// timestamp, and it is marked Failed if any STATUS or ERROR line for that
// name reports failure.
func BuildSpans(rawLines []string) []TimelineSpan {
	order := make([]string, 0)
	byName := make(map[string]*TimelineSpan)

	for _, raw := range rawLines {
		line, ok := pipelinelog.ParseLine(raw)
		if !ok {
			continue
		}

		span, seen := byName[line.Name]
		if !seen {
			span = &TimelineSpan{Name: line.Name, StartTime: line.Timestamp, EndTime: line.Timestamp}
			byName[line.Name] = span
			order = append(order, line.Name)
		}

		if line.Timestamp.Before(span.StartTime) {
			span.StartTime = line.Timestamp
		}
		if line.Timestamp.After(span.EndTime) {
			span.EndTime = line.Timestamp
		}

		if line.Kind == pipelinelog.ErrorLine {
			span.Failed = true
		}
		if line.Kind == pipelinelog.StatusLine && (line.Content == "failed" || line.Content == "cancelled") {
			span.Failed = true
		}
	}

	spans := make([]TimelineSpan, 0, len(order))
	for _, name := range order {
		span := byName[name]
		span.Duration = span.EndTime.Sub(span.StartTime)
		spans = append(spans, *span)
	}

	return spans
}

// Render generates an ASCII timeline for runID from its raw log lines.
func (r *Renderer) Render(runID int64, rawLines []string) (string, error) {
	spans := BuildSpans(rawLines)
	if len(spans) == 0 {
		return "", fmt.Errorf("timeline: no spans to render for run %d", runID)
	}

	minTime, maxTime := spans[0].StartTime, spans[0].EndTime
	for _, span := range spans {
		if span.StartTime.Before(minTime) {
			minTime = span.StartTime
		}
		if span.EndTime.After(maxTime) {
			maxTime = span.EndTime
		}
	}
	totalDuration := maxTime.Sub(minTime)

	var sb strings.Builder

	border := strings.Repeat("─", r.Width-2)
	sb.WriteString("┌" + border + "┐\n")

	header := fmt.Sprintf("│ Run: %-*s Total: %s  │\n",
		r.Width-28,
		truncate(fmt.Sprintf("%d", runID), r.Width-28),
		formatDuration(totalDuration))
	sb.WriteString(header)

	sb.WriteString("├" + border + "┤\n")

	for _, span := range spans {
		sb.WriteString(r.renderSpan(span, minTime, totalDuration))
	}

	sb.WriteString("└" + border + "┘\n")

	return sb.String(), nil
}

// renderSpan generates a timeline line for a single span.
func (r *Renderer) renderSpan(span TimelineSpan, minTime time.Time, totalDuration time.Duration) string {
	startPos := 0
	barLength := r.BarWidth

	if totalDuration > 0 {
		startOffset := span.StartTime.Sub(minTime)
		startPos = int(float64(startOffset) / float64(totalDuration) * float64(r.BarWidth))
		barLength = int(float64(span.Duration) / float64(totalDuration) * float64(r.BarWidth))
	}

	if barLength < 1 {
		barLength = 1
	}
	if startPos+barLength > r.BarWidth {
		barLength = r.BarWidth - startPos
	}

	bar := make([]rune, r.BarWidth)
	for i := 0; i < r.BarWidth; i++ {
		if i >= startPos && i < startPos+barLength {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}

	statusIcon := StatusIconOK
	if span.Failed {
		statusIcon = StatusIconError
	}

	nameWidth := 20
	name := truncate(span.Name, nameWidth)

	return fmt.Sprintf("│ %-*s %s  %6s  %s │\n",
		nameWidth, name, string(bar), formatDuration(span.Duration), statusIcon)
}

// truncate shortens a string to maxLen with an ellipsis if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
