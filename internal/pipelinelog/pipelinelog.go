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

// Package pipelinelog is the append-only structured log that feeds status
// and log queries for a run while it is in flight and after it finishes.
package pipelinelog

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LineKind is the category of a single log line.
type LineKind string

const (
	StatusLine LineKind = "STATUS"
	OutputLine LineKind = "LOG"
	ErrorLine  LineKind = "ERROR"
)

// LogLine is one parsed line of the pipeline log.
type LogLine struct {
	Timestamp time.Time
	RunID     int64
	Name      string
	Kind      LineKind
	Content   string
	ExitCode  *int
}

// Logger is an append-only writer over a single shared log file. All writes
// are serialized by a mutex-guarded critical section around the file
// handle, matching the "one writer at a time" invariant of the system this
// replaces.
type Logger struct {
	mu   sync.Mutex
	path string
}

// New opens (creating if necessary) the log file at path for appending.
func New(path string) (*Logger, error) {
	if err := os.MkdirAll(parentDir(path), 0o755); err != nil {
		return nil, fmt.Errorf("pipelinelog: creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pipelinelog: opening log file %s: %w", path, err)
	}
	_ = f.Close()

	return &Logger{path: path}, nil
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

// formatLine renders one line in the fixed grammar:
// [timestamp] JOB:<runID> STEP:<name> <KIND>:<content>[ EXIT:<code>]
func formatLine(runID int64, name string, kind LineKind, content string, exitCode *int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] JOB:%d STEP:%s %s:%s",
		time.Now().Format("2006-01-02 15:04:05"), runID, name, kind, content)
	if exitCode != nil {
		fmt.Fprintf(&b, " EXIT:%d", *exitCode)
	}
	return b.String()
}

// LogStatus records a status transition for a run/step (running, success,
// failed, cancelled).
func (l *Logger) LogStatus(runID int64, name, status string) error {
	return l.writeLine(formatLine(runID, name, StatusLine, status, nil))
}

// LogOutput records a step's command output, one LOG line per non-blank
// input line.
func (l *Logger) LogOutput(runID int64, name, content string) error {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := l.writeLine(formatLine(runID, name, OutputLine, line, nil)); err != nil {
			return err
		}
	}
	return nil
}

// LogError records an error encountered while running a step or job.
func (l *Logger) LogError(runID int64, name, errMsg string) error {
	return l.writeLine(formatLine(runID, name, ErrorLine, errMsg, nil))
}

// LogStepCompletion records a step's terminal exit code as a STATUS line.
func (l *Logger) LogStepCompletion(runID int64, name string, exitCode int) error {
	status := "success"
	if exitCode != 0 {
		status = "failed"
	}
	code := exitCode
	return l.writeLine(formatLine(runID, name, StatusLine, status, &code))
}

func (l *Logger) writeLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("pipelinelog: opening log file for append: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("pipelinelog: writing log line: %w", err)
	}

	return nil
}

// GetRunLog returns every raw line belonging to runID, in file order.
func (l *Logger) GetRunLog(runID int64) ([]string, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pipelinelog: opening log file: %w", err)
	}
	defer f.Close()

	marker := fmt.Sprintf("JOB:%d ", runID)

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, marker) {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pipelinelog: scanning log file: %w", err)
	}

	return lines, nil
}

// lineGrammar matches formatLine's output:
// [timestamp] JOB:<runID> STEP:<name> <KIND>:<content>[ EXIT:<code>]
var lineGrammar = regexp.MustCompile(`^\[(.+?)\] JOB:(\d+) STEP:(\S+) (STATUS|LOG|ERROR):(.*?)(?: EXIT:(-?\d+))?$`)

// ParseLine parses one raw log line written by writeLine back into a
// LogLine. It returns false if the line doesn't match the grammar.
func ParseLine(raw string) (LogLine, bool) {
	m := lineGrammar.FindStringSubmatch(raw)
	if m == nil {
		return LogLine{}, false
	}

	ts, err := time.Parse("2006-01-02 15:04:05", m[1])
	if err != nil {
		return LogLine{}, false
	}

	runID, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return LogLine{}, false
	}

	line := LogLine{
		Timestamp: ts,
		RunID:     runID,
		Name:      m[3],
		Kind:      LineKind(m[4]),
		Content:   m[5],
	}

	if m[6] != "" {
		if code, err := strconv.Atoi(m[6]); err == nil {
			line.ExitCode = &code
		}
	}

	return line, true
}

// GetLastStatus returns the most recently written status token for runID,
// or "" if none has been logged.
func (l *Logger) GetLastStatus(runID int64) (string, error) {
	lines, err := l.GetRunLog(runID)
	if err != nil {
		return "", err
	}

	last := ""
	for _, line := range lines {
		idx := strings.Index(line, "STATUS:")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("STATUS:"):]
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			last = fields[0]
		}
	}

	return last, nil
}
