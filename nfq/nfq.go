package nfq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/daniellavrushin/weaver/health"
	"github.com/daniellavrushin/weaver/log"
	"github.com/daniellavrushin/weaver/metrics"
	"github.com/daniellavrushin/weaver/mutate"
	"github.com/florianl/go-nfqueue"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

func NewWorker(proc *Processor, opts Options, reg *health.Registry, m *metrics.Collector) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.OnError == "" {
		opts.OnError = OnErrorAccept
	}
	return &Worker{
		qnum:     proc.binding.Queue,
		opts:     opts,
		proc:     proc,
		registry: reg,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (w *Worker) Queue() uint16 { return w.qnum }

// Start binds the queue. The receive loop runs in go-nfqueue's goroutine and
// calls handle inline for every packet.
func (w *Worker) Start() error {
	c := nfqueue.Config{
		NfQueue:      w.qnum,
		MaxPacketLen: w.opts.CopyRange,
		MaxQueueLen:  w.opts.MaxQueueLen,
		Copymode:     nfqueue.NfQnlCopyPacket,
		ReadTimeout:  time.Second,
	}
	if w.opts.FailOpen {
		c.Flags = nfqueue.NfQaCfgFlagFailOpen
	}
	q, err := nfqueue.Open(&c)
	if err != nil {
		return fmt.Errorf("open queue %d: %w", w.qnum, err)
	}
	if err := q.SetOption(netlink.NoENOBUFS, true); err != nil {
		log.Warnf("queue %d: cannot set NoENOBUFS: %v", w.qnum, err)
	}

	w.mu.Lock()
	w.q = q
	w.v = q
	w.mu.Unlock()

	if err := q.RegisterWithErrorFunc(w.ctx, w.handle, w.handleError); err != nil {
		_ = q.Close()
		return fmt.Errorf("bind queue %d: %w", w.qnum, err)
	}
	log.Tracef("NFQ bound pid=%d queue=%d copy_range=%d max_queue_len=%d", os.Getpid(), w.qnum, c.MaxPacketLen, c.MaxQueueLen)
	log.Event(log.LevelInfo, "queue_bound", "queue", w.qnum, "copy_range", c.MaxPacketLen, "max_len", c.MaxQueueLen, "fail_open", w.opts.FailOpen)
	return nil
}

func (w *Worker) handle(a nfqueue.Attribute) int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.registry != nil {
		w.registry.Mark(w.qnum)
	}
	// after Stop the socket is closed and no verdict can be sent
	if w.stopped || a.PacketID == nil {
		return 0
	}
	id := *a.PacketID
	w.packetsProcessed.Add(1)

	if a.Payload == nil || len(*a.Payload) == 0 {
		w.accept(id)
		return 0
	}
	raw := *a.Payload

	d, err := w.decide(raw)
	if err != nil {
		log.Event(log.LevelError, "handler_exception", "queue", w.qnum, "error", err, "on_error", string(w.opts.OnError))
		if w.metrics != nil {
			w.metrics.RecordPanic(w.qnum)
		}
		if w.opts.OnError == OnErrorDrop {
			if err := w.v.SetVerdict(id, nfqueue.NfDrop); err != nil {
				log.Tracef("failed to set drop verdict on packet %d: %v", id, err)
			}
			return 0
		}
		w.accept(id)
		return 0
	}

	if d.Report.Mutated {
		if err := w.v.SetVerdictModPacket(id, nfqueue.NfAccept, d.Payload); err != nil {
			log.Tracef("failed to set modified verdict on packet %d: %v", id, err)
		}
	} else {
		w.accept(id)
	}
	w.report(len(raw), d)
	return 0
}

func (w *Worker) accept(id uint32) {
	if err := w.v.SetVerdict(id, nfqueue.NfAccept); err != nil {
		log.Tracef("failed to set verdict on packet %d: %v", id, err)
	}
}

// decide runs the processor, turning a panic into an error.
func (w *Worker) decide(raw []byte) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.proc.Process(raw), nil
}

func (w *Worker) report(size int, d Decision) {
	rep := d.Report
	flowStr := ""
	if d.Flow.Src.IsValid() {
		flowStr = d.Flow.String()
	}
	if w.metrics != nil {
		w.metrics.RecordPacket(w.qnum, size, rep, flowStr)
	}

	switch rep.Reason {
	case mutate.ReasonMutated:
		log.Event(log.LevelInfo, "syn_mutated", "queue", w.qnum, "flow", flowStr, "persona", rep.Persona, "deltas", rep.Deltas)
	case mutate.ReasonError:
		log.Event(log.LevelError, "mutation_error", "queue", w.qnum, "flow", flowStr, "persona", rep.Persona, "error", rep.Err)
	case mutate.ReasonNotTCP, mutate.ReasonNotSYN:
	default:
		if log.Enabled(log.LevelDebug) {
			log.Debugf("queue %d: %s %s persona=%s %s", w.qnum, rep.Reason, flowStr, rep.Persona, rep.Err)
		}
	}
}

func (w *Worker) handleError(e error) int {
	if w.ctx.Err() != nil {
		return 0
	}
	if errors.Is(e, unix.ENOBUFS) {
		now := time.Now().Unix()
		last := w.lastOverflowLog.Load()
		if now-last >= 5 && w.lastOverflowLog.CompareAndSwap(last, now) {
			log.Warnf("nfq queue %d overflow - packets dropped", w.qnum)
		}
		return 0
	}
	if errors.Is(e, os.ErrClosed) || errors.Is(e, net.ErrClosed) || errors.Is(e, unix.EBADF) {
		return 0
	}
	if ne, ok := e.(net.Error); ok && ne.Timeout() {
		return 0
	}
	msg := e.Error()
	if strings.Contains(msg, "use of closed file") || strings.Contains(msg, "file descriptor") || strings.Contains(msg, "timeout") {
		return 0
	}
	_ = log.Errorf("nfq queue %d: %v", w.qnum, e)
	return 0
}

// Stop cancels the receive loop, waits for an in-flight callback to issue
// its verdict, then closes the socket. A packet read from the socket but
// not yet handed to a callback when Stop takes the lock gets no verdict
// from the worker; the kernel drops it along with anything else still
// queued when the queue is unbound.
func (w *Worker) Stop() {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.q != nil {
		_ = w.q.Close()
		w.q = nil
	}
}

func (w *Worker) GetStats() (uint64, string) {
	state := "active"
	w.mu.RLock()
	if w.stopped {
		state = "stopped"
	}
	w.mu.RUnlock()
	return w.packetsProcessed.Load(), state
}
