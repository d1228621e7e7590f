package diag

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LogLevel orders diagnostic log entries by importance.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// rank orders levels for filtering; unknown levels sort lowest.
func (l LogLevel) rank() int {
	switch l {
	case LevelDebug:
		return 1
	case LevelInfo:
		return 2
	case LevelWarn:
		return 3
	case LevelError:
		return 4
	default:
		return 0
	}
}

// LogEntry is one stored diagnostic record.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
}

// LogFilter narrows Entries queries. Zero values mean "any".
type LogFilter struct {
	// MinLevel keeps entries at or above this level.
	MinLevel LogLevel
	// Category keeps entries of one category.
	Category string
	// Since keeps entries at or after this time.
	Since time.Time
	// Contains keeps entries whose message contains this substring.
	Contains string
}

// MessageCount is one entry of the recurring-message ranking.
type MessageCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// LogStats are aggregate statistics over the retained entries.
type LogStats struct {
	Total       int              `json:"total"`
	ByLevel     map[LogLevel]int `json:"by_level"`
	ByCategory  map[string]int   `json:"by_category"`
	ErrorRate   float64          `json:"error_rate"`
	TopMessages []MessageCount   `json:"top_messages"`
}

// LoggerOptions bounds the log store.
type LoggerOptions struct {
	// MaxEntries caps retained entries; zero uses 5000.
	MaxEntries int
	// MaxAge drops entries older than this; zero uses 24h.
	MaxAge time.Duration
	// Mirror receives every entry as a structured log line; nil skips
	// mirroring.
	Mirror *zap.Logger
}

// Logger is a bounded, queryable in-memory log store. Every entry is also
// mirrored to the structured logger when one is configured.
type Logger struct {
	mu         sync.Mutex
	entries    []LogEntry
	maxEntries int
	maxAge     time.Duration
	mirror     *zap.Logger
	now        func() time.Time
}

// NewLogger creates a bounded diagnostic logger.
func NewLogger(opts LoggerOptions) *Logger {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 5000
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	mirror := opts.Mirror
	if mirror == nil {
		mirror = zap.NewNop()
	}
	return &Logger{
		maxEntries: opts.MaxEntries,
		maxAge:     opts.MaxAge,
		mirror:     mirror.Named("diag"),
		now:        time.Now,
	}
}

// Debug records a debug entry.
func (l *Logger) Debug(category, message string) { l.record(LevelDebug, category, message) }

// Info records an info entry.
func (l *Logger) Info(category, message string) { l.record(LevelInfo, category, message) }

// Warn records a warning entry.
func (l *Logger) Warn(category, message string) { l.record(LevelWarn, category, message) }

// Error records an error entry.
func (l *Logger) Error(category, message string) { l.record(LevelError, category, message) }

func (l *Logger) record(level LogLevel, category, message string) {
	switch level {
	case LevelDebug:
		l.mirror.Debug(message, zap.String("category", category))
	case LevelInfo:
		l.mirror.Info(message, zap.String("category", category))
	case LevelWarn:
		l.mirror.Warn(message, zap.String("category", category))
	case LevelError:
		l.mirror.Error(message, zap.String("category", category))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{
		Timestamp: l.now(),
		Level:     level,
		Category:  category,
		Message:   message,
	})
	l.pruneLocked()
}

// Entries returns entries matching the filter, oldest first.
func (l *Logger) Entries(f LogFilter) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []LogEntry
	for _, e := range l.entries {
		if f.MinLevel != "" && e.Level.rank() < f.MinLevel.rank() {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if f.Contains != "" && !strings.Contains(e.Message, f.Contains) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Stats computes aggregate statistics over all retained entries.
func (l *Logger) Stats() LogStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := LogStats{
		Total:      len(l.entries),
		ByLevel:    make(map[LogLevel]int),
		ByCategory: make(map[string]int),
	}
	messages := make(map[string]int)
	for _, e := range l.entries {
		stats.ByLevel[e.Level]++
		stats.ByCategory[e.Category]++
		messages[e.Message]++
	}
	if stats.Total > 0 {
		stats.ErrorRate = float64(stats.ByLevel[LevelError]) / float64(stats.Total)
	}

	for msg, n := range messages {
		if n < 2 {
			continue
		}
		stats.TopMessages = append(stats.TopMessages, MessageCount{Message: msg, Count: n})
	}
	sort.Slice(stats.TopMessages, func(i, j int) bool {
		if stats.TopMessages[i].Count != stats.TopMessages[j].Count {
			return stats.TopMessages[i].Count > stats.TopMessages[j].Count
		}
		return stats.TopMessages[i].Message < stats.TopMessages[j].Message
	})
	if len(stats.TopMessages) > 10 {
		stats.TopMessages = stats.TopMessages[:10]
	}
	return stats
}

// pruneLocked enforces the count and age bounds. Caller holds l.mu.
func (l *Logger) pruneLocked() {
	cutoff := l.now().Add(-l.maxAge)
	start := 0
	for start < len(l.entries) && l.entries[start].Timestamp.Before(cutoff) {
		start++
	}
	if over := len(l.entries) - start - l.maxEntries; over > 0 {
		start += over
	}
	if start > 0 {
		l.entries = append([]LogEntry(nil), l.entries[start:]...)
	}
}
