package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/daniellavrushin/weaver/mutate"
)

func TestRecordPacket(t *testing.T) {
	c := NewCollector([]uint16{100, 101})
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.RecordPacket(100, 60, mutate.Report{
		Mutated: true,
		Reason:  mutate.ReasonMutated,
		Persona: "linux",
		Deltas: map[string]mutate.Delta{
			mutate.FieldWindow:  {Old: uint16(8192), New: uint16(4096)},
			mutate.FieldIPv4TTL: {Old: uint8(128), New: uint8(64)},
		},
	}, "10.0.0.1|93.184.216.34|40000|443|4")
	c.RecordPacket(100, 40, mutate.Skipped(mutate.ReasonNotSYN), "")
	c.RecordPacket(101, 52, mutate.Report{Reason: mutate.ReasonError, Err: "boom"}, "")
	c.RecordPanic(101)

	s := c.Snapshot()
	if s.PacketsTotal != 3 {
		t.Fatalf("packets=%d want 3", s.PacketsTotal)
	}
	if len(s.Queues) != 2 || s.Queues[0].Queue != 100 {
		t.Fatalf("queues=%+v", s.Queues)
	}
	q100, q101 := s.Queues[0], s.Queues[1]
	if q100.Packets != 2 || q100.Bytes != 100 || q100.Mutated != 1 {
		t.Errorf("queue 100 = %+v", q100)
	}
	if q101.Errors != 1 || q101.Panics != 1 {
		t.Errorf("queue 101 = %+v", q101)
	}
	if s.Reasons["not_syn"] != 1 || s.Reasons["mutated"] != 1 || s.Reasons["error"] != 1 {
		t.Errorf("reasons=%v", s.Reasons)
	}
	if s.Personas["linux"] != 1 || s.Fields["tcp_window"] != 1 {
		t.Errorf("personas=%v fields=%v", s.Personas, s.Fields)
	}
	if len(s.RecentMutations) != 1 {
		t.Fatalf("recent mutations=%d", len(s.RecentMutations))
	}
	m := s.RecentMutations[0]
	if m.Persona != "linux" || len(m.Fields) != 2 || m.Fields[0] != "ipv4_ttl" {
		t.Errorf("mutation log=%+v", m)
	}
	if s.LastMutation == nil || !s.LastMutation.Equal(base) {
		t.Errorf("last mutation=%v", s.LastMutation)
	}
	if s.Instance == "" {
		t.Error("empty instance id")
	}
}

func TestRecentEventsBounded(t *testing.T) {
	c := NewCollector(nil)
	for i := 0; i < recentEvents+5; i++ {
		c.RecordEvent("info", fmt.Sprintf("event %d", i))
	}
	s := c.Snapshot()
	if len(s.RecentEvents) != recentEvents {
		t.Fatalf("events=%d want %d", len(s.RecentEvents), recentEvents)
	}
	if s.RecentEvents[0].Message != fmt.Sprintf("event %d", recentEvents+4) {
		t.Fatalf("newest event first, got %q", s.RecentEvents[0].Message)
	}
}

func TestUpdateRates(t *testing.T) {
	c := NewCollector([]uint16{1})
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c.lastUpdate = start
	c.now = func() time.Time { return start }
	for i := 0; i < 10; i++ {
		c.RecordPacket(1, 60, mutate.Skipped(mutate.ReasonNotSYN), "")
	}
	c.now = func() time.Time { return start.Add(2 * time.Second) }
	c.updateRates()

	s := c.Snapshot()
	if s.CurrentPPS != 5 {
		t.Fatalf("pps=%v want 5", s.CurrentPPS)
	}
	if len(s.PacketRate) != 1 {
		t.Fatalf("rate points=%d", len(s.PacketRate))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		5 * time.Second:                 "5s",
		2*time.Minute + 3*time.Second:   "2m 3s",
		time.Hour + time.Minute:         "1h 1m 0s",
		49*time.Hour + 30*time.Second:   "2d 1h 0m 30s",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v)=%q want %q", d, got, want)
		}
	}
}
