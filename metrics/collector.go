package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/daniellavrushin/weaver/mutate"
	"github.com/google/uuid"
)

const (
	rateWindow      = 60
	recentMutations = 20
	recentEvents    = 20
)

// Collector aggregates per-queue packet outcomes. It is constructed by main
// and handed to every worker and to the HTTP server.
type Collector struct {
	mu sync.RWMutex

	instance  string
	startTime time.Time
	now       func() time.Time

	queues    map[uint16]*queueCounters
	reasons   map[mutate.Reason]uint64
	personas  map[string]uint64
	fields    map[string]uint64
	mutations []MutationLog
	events    []SystemEvent

	packets      uint64
	lastPackets  uint64
	lastUpdate   time.Time
	currentPPS   float64
	packetRate   []TimeSeriesPoint
	memory       MemoryStats
	lastMutation time.Time
}

type queueCounters struct {
	packets  uint64
	bytes    uint64
	mutated  uint64
	errors   uint64
	panics   uint64
	lastSeen time.Time
}

type TimeSeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

type MemoryStats struct {
	Allocated  uint64 `json:"allocated"`
	System     uint64 `json:"system"`
	HeapInuse  uint64 `json:"heap_inuse"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
}

type QueueStats struct {
	Queue    uint16    `json:"queue"`
	Packets  uint64    `json:"packets"`
	Bytes    uint64    `json:"bytes"`
	Mutated  uint64    `json:"mutated"`
	Errors   uint64    `json:"errors"`
	Panics   uint64    `json:"panics"`
	LastSeen time.Time `json:"last_seen"`
}

type MutationLog struct {
	Timestamp time.Time `json:"timestamp"`
	Queue     uint16    `json:"queue"`
	Flow      string    `json:"flow"`
	Persona   string    `json:"persona"`
	Fields    []string  `json:"fields"`
}

type SystemEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Snapshot is a point-in-time copy safe to serialize.
type Snapshot struct {
	Instance        string            `json:"instance"`
	StartTime       time.Time         `json:"start_time"`
	Uptime          string            `json:"uptime"`
	PacketsTotal    uint64            `json:"packets_total"`
	CurrentPPS      float64           `json:"current_pps"`
	PacketRate      []TimeSeriesPoint `json:"packet_rate"`
	Queues          []QueueStats      `json:"queues"`
	Reasons         map[string]uint64 `json:"reasons"`
	Personas        map[string]uint64 `json:"personas"`
	Fields          map[string]uint64 `json:"fields"`
	LastMutation    *time.Time        `json:"last_mutation,omitempty"`
	RecentMutations []MutationLog     `json:"recent_mutations"`
	RecentEvents    []SystemEvent     `json:"recent_events"`
	Memory          MemoryStats       `json:"memory"`
}

func NewCollector(queues []uint16) *Collector {
	c := &Collector{
		instance:  uuid.NewString(),
		startTime: time.Now(),
		now:       time.Now,
		queues:    make(map[uint16]*queueCounters, len(queues)),
		reasons:   make(map[mutate.Reason]uint64),
		personas:  make(map[string]uint64),
		fields:    make(map[string]uint64),
	}
	c.lastUpdate = c.startTime
	for _, q := range queues {
		c.queues[q] = &queueCounters{}
	}
	return c
}

func (c *Collector) Instance() string {
	return c.instance
}

// Run refreshes rates and runtime stats every second until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.updateRates()
			c.updateSystemStats()
		}
	}
}

func (c *Collector) queue(q uint16) *queueCounters {
	qc := c.queues[q]
	if qc == nil {
		qc = &queueCounters{}
		c.queues[q] = qc
	}
	return qc
}

// RecordPacket counts one verdicted packet. flow is only kept for mutated
// packets.
func (c *Collector) RecordPacket(queue uint16, size int, rep mutate.Report, flow string) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	qc := c.queue(queue)
	qc.packets++
	qc.bytes += uint64(size)
	qc.lastSeen = now
	c.packets++
	c.reasons[rep.Reason]++

	switch {
	case rep.Mutated:
		qc.mutated++
		c.lastMutation = now
		if rep.Persona != "" {
			c.personas[rep.Persona]++
		}
		fields := make([]string, 0, len(rep.Deltas))
		for f := range rep.Deltas {
			c.fields[f]++
			fields = append(fields, f)
		}
		sort.Strings(fields)
		c.mutations = prepend(c.mutations, MutationLog{
			Timestamp: now,
			Queue:     queue,
			Flow:      flow,
			Persona:   rep.Persona,
			Fields:    fields,
		}, recentMutations)
	case rep.Reason == mutate.ReasonError:
		qc.errors++
	}
}

// RecordPanic counts a callback that had to be verdicted by on_error.
func (c *Collector) RecordPanic(queue uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue(queue).panics++
}

func (c *Collector) RecordEvent(level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = prepend(c.events, SystemEvent{
		Timestamp: c.now(),
		Level:     level,
		Message:   message,
	}, recentEvents)
}

func prepend[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	copy(s[1:], s)
	s[0] = v
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

func (c *Collector) updateRates() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	d := now.Sub(c.lastUpdate).Seconds()
	if d <= 0 {
		return
	}
	c.currentPPS = float64(c.packets-c.lastPackets) / d
	c.packetRate = append(c.packetRate, TimeSeriesPoint{Timestamp: now.UnixMilli(), Value: c.currentPPS})
	if len(c.packetRate) > rateWindow {
		c.packetRate = c.packetRate[len(c.packetRate)-rateWindow:]
	}
	c.lastUpdate = now
	c.lastPackets = c.packets
}

func (c *Collector) updateSystemStats() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = MemoryStats{
		Allocated:  ms.Alloc,
		System:     ms.Sys,
		HeapInuse:  ms.HeapInuse,
		NumGC:      ms.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Instance:        c.instance,
		StartTime:       c.startTime,
		Uptime:          formatDuration(c.now().Sub(c.startTime)),
		PacketsTotal:    c.packets,
		CurrentPPS:      c.currentPPS,
		PacketRate:      append(make([]TimeSeriesPoint, 0, len(c.packetRate)), c.packetRate...),
		Queues:          make([]QueueStats, 0, len(c.queues)),
		Reasons:         make(map[string]uint64, len(c.reasons)),
		Personas:        make(map[string]uint64, len(c.personas)),
		Fields:          make(map[string]uint64, len(c.fields)),
		RecentMutations: append(make([]MutationLog, 0, len(c.mutations)), c.mutations...),
		RecentEvents:    append(make([]SystemEvent, 0, len(c.events)), c.events...),
		Memory:          c.memory,
	}
	if !c.lastMutation.IsZero() {
		t := c.lastMutation
		s.LastMutation = &t
	}
	for q, qc := range c.queues {
		s.Queues = append(s.Queues, QueueStats{
			Queue:    q,
			Packets:  qc.packets,
			Bytes:    qc.bytes,
			Mutated:  qc.mutated,
			Errors:   qc.errors,
			Panics:   qc.panics,
			LastSeen: qc.lastSeen,
		})
	}
	sort.Slice(s.Queues, func(i, j int) bool { return s.Queues[i].Queue < s.Queues[j].Queue })
	for r, n := range c.reasons {
		s.Reasons[string(r)] = n
	}
	for p, n := range c.personas {
		s.Personas[p] = n
	}
	for f, n := range c.fields {
		s.Fields[f] = n
	}
	return s
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
