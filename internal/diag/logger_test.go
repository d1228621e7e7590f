package diag

import (
	"testing"
	"time"
)

func TestLoggerFilter(t *testing.T) {
	l := NewLogger(LoggerOptions{})
	l.Debug("rules", "wave scheduled")
	l.Info("engine", "validation started")
	l.Warn("rules", "rule timed out")
	l.Error("metrics", "insert failed")

	if got := l.Entries(LogFilter{MinLevel: LevelWarn}); len(got) != 2 {
		t.Errorf("warn+ entries = %+v", got)
	}
	if got := l.Entries(LogFilter{Category: "rules"}); len(got) != 2 {
		t.Errorf("rules entries = %+v", got)
	}
	if got := l.Entries(LogFilter{Contains: "timed out"}); len(got) != 1 {
		t.Errorf("substring entries = %+v", got)
	}
	if got := l.Entries(LogFilter{MinLevel: LevelError, Category: "rules"}); len(got) != 0 {
		t.Errorf("combined filter = %+v", got)
	}
}

func TestLoggerStats(t *testing.T) {
	l := NewLogger(LoggerOptions{})
	l.Error("metrics", "insert failed")
	l.Error("metrics", "insert failed")
	l.Info("engine", "validation started")
	l.Info("engine", "validation started")
	l.Info("engine", "validation started")
	l.Debug("rules", "one-off")

	stats := l.Stats()
	if stats.Total != 6 {
		t.Errorf("total = %d", stats.Total)
	}
	if stats.ByLevel[LevelError] != 2 || stats.ByCategory["engine"] != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ErrorRate < 0.33 || stats.ErrorRate > 0.34 {
		t.Errorf("errorRate = %v", stats.ErrorRate)
	}
	if len(stats.TopMessages) != 2 || stats.TopMessages[0].Message != "validation started" {
		t.Errorf("topMessages = %+v", stats.TopMessages)
	}
}

func TestLoggerCountBound(t *testing.T) {
	l := NewLogger(LoggerOptions{MaxEntries: 3})
	for i := 0; i < 5; i++ {
		l.Info("engine", "entry")
	}
	if got := len(l.Entries(LogFilter{})); got != 3 {
		t.Errorf("retained %d entries, want 3", got)
	}
}

func TestLoggerAgeBound(t *testing.T) {
	l := NewLogger(LoggerOptions{MaxAge: time.Hour})
	base := time.Now()
	l.now = func() time.Time { return base }
	l.Info("engine", "old")

	l.now = func() time.Time { return base.Add(2 * time.Hour) }
	l.Info("engine", "fresh")

	got := l.Entries(LogFilter{})
	if len(got) != 1 || got[0].Message != "fresh" {
		t.Errorf("entries = %+v", got)
	}
}
