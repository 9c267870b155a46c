package nfq

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/daniellavrushin/weaver/flow"
	"github.com/daniellavrushin/weaver/health"
	"github.com/daniellavrushin/weaver/metrics"
	"github.com/daniellavrushin/weaver/mutate"
	"github.com/daniellavrushin/weaver/persona"
	"github.com/florianl/go-nfqueue"
)

// OnError picks the verdict for a packet whose processing panicked.
type OnError string

const (
	OnErrorAccept OnError = "accept"
	OnErrorDrop   OnError = "drop"
)

// Options are the queue binding parameters shared by every worker.
type Options struct {
	MaxQueueLen uint32
	CopyRange   uint32
	FailOpen    bool
	OnError     OnError
}

// Binding ties a queue number to the persona its traffic uses. A nil
// Persona means the weighted policy decides; Unresolved means the queue's
// group referenced an unknown persona and is never mutated.
type Binding struct {
	Queue       uint16
	Group       string
	Persona     *persona.Persona
	PersonaName string
	Unresolved  bool
}

// Decision is the outcome of processing one packet. Payload is only set
// when Report.Mutated is true.
type Decision struct {
	Payload []byte
	Report  mutate.Report
	Flow    flow.Key
}

// verdicter is the part of *nfqueue.Nfqueue a worker issues verdicts with.
type verdicter interface {
	SetVerdict(id uint32, verdict int) error
	SetVerdictModPacket(id uint32, verdict int, packet []byte) error
}

type Worker struct {
	packetsProcessed atomic.Uint64
	lastOverflowLog  atomic.Int64

	qnum     uint16
	opts     Options
	proc     *Processor
	registry *health.Registry
	metrics  *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	// mu is held for reading by every callback until its verdict is issued,
	// and for writing by Stop while the socket is closed.
	mu      sync.RWMutex
	q       *nfqueue.Nfqueue
	v       verdicter
	stopped bool
}

type Pool struct {
	workers []*Worker
}
