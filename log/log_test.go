package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLevels(t *testing.T) {
	var b bytes.Buffer
	Init(&b, LevelInfo, true)
	defer Init(nil, LevelError, true)

	Infof("queue %d bound", 100)
	Debugf("hidden")
	Warnf("persona %q unknown", "bsd")
	err := Errorf("bind failed: %s", "EBUSY")

	out := b.String()
	if !strings.Contains(out, "[INFO] queue 100 bound") {
		t.Fatalf("missing info line: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked: %q", out)
	}
	if !strings.Contains(out, `[WARN] persona "bsd" unknown`) {
		t.Fatalf("missing warn line: %q", out)
	}
	if err == nil || err.Error() != "bind failed: EBUSY" {
		t.Fatalf("Errorf returned %v", err)
	}
}

func TestEvent(t *testing.T) {
	var b bytes.Buffer
	Init(&b, LevelInfo, true)
	defer Init(nil, LevelError, true)
	now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { now = time.Now }()

	Event(LevelInfo, "syn_mutated", "queue", 100, "persona", "linux", "err", errors.New("boom"), "dangling")
	Event(LevelDebug, "suppressed")

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), b.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v: %q", err, lines[0])
	}
	want := map[string]any{
		"ts":      "2026-03-01T12:00:00Z",
		"level":   "info",
		"msg":     "syn_mutated",
		"queue":   float64(100),
		"persona": "linux",
		"err":     "boom",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s=%v want %v", k, rec[k], v)
		}
	}
	if _, ok := rec["dangling"]; ok {
		t.Errorf("dangling key emitted")
	}
}

func TestErrorfWraps(t *testing.T) {
	var b bytes.Buffer
	Init(&b, LevelError, true)
	defer Init(nil, LevelError, true)

	cause := errors.New("EBUSY")
	err := Errorf("open queue %d: %w", 3, cause)
	if !errors.Is(err, cause) {
		t.Fatalf("Errorf did not wrap: %v", err)
	}
	if out := b.String(); !strings.Contains(out, "[ERROR] open queue 3: EBUSY") {
		t.Fatalf("bad error line: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelError, false},
		{"warn", LevelError, false},
		{"INFO", LevelInfo, false},
		{"trace", LevelTrace, false},
		{"debug", LevelDebug, false},
		{"loud", LevelError, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q)=%v,%v want %v,err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
