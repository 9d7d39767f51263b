package logbuf

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func fill(buf *Buffer, base time.Time, n int) {
	for i := 0; i < n; i++ {
		buf.Write(Entry{
			Time:    base.Add(time.Duration(i) * time.Second),
			Level:   "INFO",
			Message: "msg",
			Attrs:   map[string]any{"i": i},
		})
	}
}

func TestQueryReturnsOldestFirst(t *testing.T) {
	buf := New(5)
	fill(buf, time.Now(), 3)

	entries := buf.Query(time.Time{}, slog.LevelDebug, 0)
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Attrs["i"] != 0 || entries[2].Attrs["i"] != 2 {
		t.Errorf("order = %v, %v", entries[0].Attrs["i"], entries[2].Attrs["i"])
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	buf := New(3)
	fill(buf, time.Now(), 5)

	entries := buf.Query(time.Time{}, slog.LevelDebug, 0)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, ring holds 3", len(entries))
	}
	if entries[0].Attrs["i"] != 2 || entries[2].Attrs["i"] != 4 {
		t.Errorf("kept %v..%v, want 2..4", entries[0].Attrs["i"], entries[2].Attrs["i"])
	}
}

func TestQuerySince(t *testing.T) {
	buf := New(10)
	base := time.Now()
	fill(buf, base, 5)

	entries := buf.Query(base.Add(3*time.Second), slog.LevelDebug, 0)
	if len(entries) != 2 {
		t.Errorf("got %d entries since t+3s, want 2", len(entries))
	}
}

func TestQueryMinLevel(t *testing.T) {
	buf := New(10)
	now := time.Now()
	for _, lvl := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		buf.Write(Entry{Time: now, Level: lvl, Message: lvl})
	}

	entries := buf.Query(time.Time{}, slog.LevelWarn, 0)
	if len(entries) != 2 {
		t.Fatalf("got %d entries at WARN+", len(entries))
	}
	if entries[0].Message != "WARN" || entries[1].Message != "ERROR" {
		t.Errorf("entries = %v", entries)
	}
}

func TestQueryLimitKeepsNewest(t *testing.T) {
	buf := New(10)
	fill(buf, time.Now(), 8)

	entries := buf.Query(time.Time{}, slog.LevelDebug, 3)
	if len(entries) != 3 {
		t.Fatalf("got %d entries with limit 3", len(entries))
	}
	if entries[2].Attrs["i"] != 7 {
		t.Errorf("last = %v, want the newest entry", entries[2].Attrs["i"])
	}
}

func newTeeLogger(buf *Buffer, innerLevel slog.Level) *slog.Logger {
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: innerLevel})
	return slog.New(NewHandler(inner, buf))
}

func TestHandlerCaptures(t *testing.T) {
	buf := New(10)
	logger := newTeeLogger(buf, slog.LevelDebug)

	logger.Info("hello", "key", "value")
	logger.Warn("warning")

	entries := buf.Query(time.Time{}, slog.LevelDebug, 0)
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Message != "hello" || entries[0].Attrs["key"] != "value" {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[1].Level != "WARN" {
		t.Errorf("level = %q", entries[1].Level)
	}
}

func TestHandlerBoundAttrsAndGroups(t *testing.T) {
	buf := New(10)
	logger := newTeeLogger(buf, slog.LevelDebug).With("component", "store")

	logger.WithGroup("req").Info("msg", "id", 7)

	entries := buf.Query(time.Time{}, slog.LevelDebug, 0)
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Attrs["req.component"] != "store" {
		t.Errorf("attrs = %v", entries[0].Attrs)
	}
	if entries[0].Attrs["req.id"] != int64(7) {
		t.Errorf("attrs = %v", entries[0].Attrs)
	}
}

func TestHandlerCapturesBelowInnerLevel(t *testing.T) {
	buf := New(10)
	logger := newTeeLogger(buf, slog.LevelWarn)

	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("handler should accept all levels")
	}

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")

	entries := buf.Query(time.Time{}, slog.LevelDebug, 0)
	if len(entries) != 3 {
		t.Errorf("got %d entries, buffer should keep levels the inner handler drops", len(entries))
	}
}

func TestHandlerErrorAttr(t *testing.T) {
	buf := New(4)
	logger := newTeeLogger(buf, slog.LevelDebug)

	logger.Error("failed", "error", io.ErrUnexpectedEOF)

	entries := buf.Query(time.Time{}, slog.LevelDebug, 0)
	if got := entries[0].Attrs["error"]; got != io.ErrUnexpectedEOF.Error() {
		t.Errorf("error attr = %v (%T)", got, got)
	}
}
