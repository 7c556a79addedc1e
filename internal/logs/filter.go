package logs

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"viralforge/internal/logging"
)

// Entry is the structured view of one JSON log line.
type Entry struct {
	Time      string
	Level     string
	Message   string
	Component string
	JobID     string
	TaskID    string
	EventType string
	Fields    map[string]any
}

// Parse decodes a JSON log line. ok is false for console-format or corrupt
// lines.
func Parse(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Entry{}, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Entry{}, false
	}
	text := func(key string) string {
		switch v := fields[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return ""
		}
	}
	return Entry{
		Time:      text("ts"),
		Level:     strings.ToLower(text("level")),
		Message:   text("msg"),
		Component: text(logging.FieldComponent),
		JobID:     text(logging.FieldJobID),
		TaskID:    text(logging.FieldTaskID),
		EventType: text(logging.FieldEventType),
		Fields:    fields,
	}, true
}

// Filter selects log lines. Empty fields match everything.
type Filter struct {
	// MinLevel drops entries below this level name (debug, info, warn, error).
	MinLevel  string
	Component string
	JobID     string
	EventType string
}

// Empty reports whether the filter accepts every line.
func (f Filter) Empty() bool {
	return f.MinLevel == "" && f.Component == "" && f.JobID == "" && f.EventType == ""
}

// Match reports whether line passes the filter.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	entry, ok := Parse(line)
	if !ok {
		return false
	}
	if f.MinLevel != "" && levelOf(entry.Level) < logging.ParseLevel(f.MinLevel) {
		return false
	}
	if f.Component != "" && !strings.EqualFold(entry.Component, f.Component) {
		return false
	}
	if f.JobID != "" && !strings.HasPrefix(entry.JobID, f.JobID) {
		return false
	}
	if f.EventType != "" && entry.EventType != f.EventType {
		return false
	}
	return true
}

func levelOf(name string) slog.Level {
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo
	}
	return logging.ParseLevel(name)
}
