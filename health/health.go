// Package health tracks when each queue worker last ran and turns that into
// a liveness verdict.
package health

import (
	"sort"
	"sync"
	"time"
)

// Registry maps queue numbers to their last callback time. Every configured
// queue starts at the zero time.
type Registry struct {
	mu   sync.RWMutex
	seen map[uint16]time.Time
	now  func() time.Time
}

func NewRegistry(queues []uint16) *Registry {
	r := &Registry{
		seen: make(map[uint16]time.Time, len(queues)),
		now:  time.Now,
	}
	for _, q := range queues {
		r.seen[q] = time.Time{}
	}
	return r
}

// Mark records activity on queue. Unknown queues are added.
func (r *Registry) Mark(queue uint16) {
	t := r.now()
	r.mu.Lock()
	r.seen[queue] = t
	r.mu.Unlock()
}

func (r *Registry) Snapshot() map[uint16]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uint16]time.Time, len(r.seen))
	for q, t := range r.seen {
		out[q] = t
	}
	return out
}

// QueueStatus is one queue's line in a Status.
type QueueStatus struct {
	Queue    uint16    `json:"queue"`
	OK       bool      `json:"ok"`
	LastSeen time.Time `json:"last_seen"`
}

// Status is the health responder's body.
type Status struct {
	Status      string             `json:"status"`
	Healthy     bool               `json:"healthy"`
	StaleQueues []uint16           `json:"stale_queues"`
	LastSeen    map[uint16]float64 `json:"last_seen"`
	Queues      []QueueStatus      `json:"queues"`
	WindowSec   float64            `json:"window_sec"`
}

// Evaluate marks a queue stale when now - last_seen exceeds window. A queue
// that has never been seen is stale. The result is healthy only when no
// queue is stale.
func Evaluate(snap map[uint16]time.Time, now time.Time, window time.Duration) Status {
	st := Status{
		StaleQueues: []uint16{},
		LastSeen:    make(map[uint16]float64, len(snap)),
		Queues:      make([]QueueStatus, 0, len(snap)),
		WindowSec:   window.Seconds(),
	}
	for q, t := range snap {
		ok := !t.IsZero() && now.Sub(t) <= window
		if !ok {
			st.StaleQueues = append(st.StaleQueues, q)
		}
		var ts float64
		if !t.IsZero() {
			ts = float64(t.UnixNano()) / 1e9
		}
		st.LastSeen[q] = ts
		st.Queues = append(st.Queues, QueueStatus{Queue: q, OK: ok, LastSeen: t})
	}
	sort.Slice(st.StaleQueues, func(i, j int) bool { return st.StaleQueues[i] < st.StaleQueues[j] })
	sort.Slice(st.Queues, func(i, j int) bool { return st.Queues[i].Queue < st.Queues[j].Queue })

	st.Healthy = len(st.StaleQueues) == 0
	st.Status = "ok"
	if !st.Healthy {
		st.Status = "stale"
	}
	return st
}
