package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/alex-user-go/travelaz/internal/logger"
)

type fakePoster struct {
	mu    sync.Mutex
	tags  []string
	posts []map[string]any
	err   error
}

func (p *fakePoster) Post(tag string, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tags = append(p.tags, tag)
	p.posts = append(p.posts, message.(map[string]any))
	return p.err
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warn ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logger.ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logger.NewHandler(logger.Options{Writer: &buf, Format: "json"}))

	log.Debug("hidden")
	log.Info("search complete", "component", "aggregator", "deals", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at info level, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if rec["msg"] != "search complete" || rec["component"] != "aggregator" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNewHandler_Tint(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logger.NewHandler(logger.Options{Writer: &buf, Format: "tint", Level: slog.LevelDebug}))

	log.Debug("rates refreshed", "base", "USD")

	if !strings.Contains(buf.String(), "rates refreshed") || !strings.Contains(buf.String(), "USD") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestFluentHandler(t *testing.T) {
	poster := &fakePoster{}
	log := slog.New(logger.NewFluentHandler(poster, slog.LevelInfo)).
		With("component", "cache").
		WithGroup("req")

	log.Debug("dropped")
	log.Warn("backing store failed", "key", "deals:1", "error", errors.New("timeout"))

	if len(poster.posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(poster.posts))
	}
	if poster.tags[0] != "warn" {
		t.Errorf("tag = %q, want warn", poster.tags[0])
	}

	got := poster.posts[0]
	want := map[string]any{
		"component": "cache",
		"req.key":   "deals:1",
		"req.error": "timeout",
		"level":     "WARN",
		"message":   "backing store failed",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["timestamp"]; !ok {
		t.Error("expected a timestamp")
	}
}

func TestFanout(t *testing.T) {
	var buf bytes.Buffer
	poster := &fakePoster{err: errors.New("collector down")}
	stdout := logger.NewHandler(logger.Options{Writer: &buf, Format: "text", Level: slog.LevelDebug})
	h := logger.NewFanout(stdout, logger.NewFluentHandler(poster, slog.LevelWarn))
	log := slog.New(h).With("component", "app")

	log.Debug("only stdout")
	log.Error("both")

	if c := strings.Count(buf.String(), "component=app"); c != 2 {
		t.Errorf("expected 2 stdout lines with attrs, got %d: %q", c, buf.String())
	}
	if len(poster.posts) != 1 || poster.posts[0]["message"] != "both" {
		t.Errorf("expected only the error record shipped, got %v", poster.posts)
	}
}
