package testutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// LogCapture collects slog JSON output so tests can assert on log entries.
type LogCapture struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	logger *slog.Logger
}

// LogEntry is one parsed log line.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewLogCapture creates a capture with a debug-level JSON logger attached.
func NewLogCapture() *LogCapture {
	lc := &LogCapture{}
	handler := slog.NewJSONHandler(&syncWriter{lc: lc}, &slog.HandlerOptions{Level: slog.LevelDebug})
	lc.logger = slog.New(handler)
	return lc
}

type syncWriter struct {
	lc *LogCapture
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.lc.mu.Lock()
	defer w.lc.mu.Unlock()
	return w.lc.buffer.Write(p)
}

// Logger returns the slog.Logger that writes into this capture.
func (lc *LogCapture) Logger() *slog.Logger {
	return lc.logger
}

// Entries parses and returns all captured log lines.
func (lc *LogCapture) Entries() []LogEntry {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	var entries []LogEntry
	for _, line := range bytes.Split(lc.buffer.Bytes(), []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		entry := LogEntry{Fields: make(map[string]any)}
		if level, ok := raw["level"].(string); ok {
			entry.Level = level
		}
		if msg, ok := raw["msg"].(string); ok {
			entry.Message = msg
		}
		for k, v := range raw {
			if k != "level" && k != "msg" && k != "time" {
				entry.Fields[k] = v
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// Find returns entries matching a level (case-insensitive, "" for any) and a
// message substring ("" for any).
func (lc *LogCapture) Find(level, msgSubstring string) []LogEntry {
	var results []LogEntry
	for _, entry := range lc.Entries() {
		if (level == "" || strings.EqualFold(entry.Level, level)) &&
			(msgSubstring == "" || strings.Contains(entry.Message, msgSubstring)) {
			results = append(results, entry)
		}
	}
	return results
}

// HasError reports whether any error-level entries were captured.
func (lc *LogCapture) HasError() bool {
	return len(lc.Find("error", "")) > 0
}

// Contains reports whether any captured message includes the substring.
func (lc *LogCapture) Contains(msgSubstring string) bool {
	return len(lc.Find("", msgSubstring)) > 0
}
