package nfq

import (
	"sync"
	"time"

	"github.com/daniellavrushin/weaver/health"
	"github.com/daniellavrushin/weaver/log"
	"github.com/daniellavrushin/weaver/metrics"
	"github.com/daniellavrushin/weaver/persona"
	"github.com/daniellavrushin/weaver/scope"
)

// NewPool creates one worker per binding. All workers share the filter,
// policy, registry and collector.
func NewPool(bindings []Binding, opts Options, filter *scope.Filter, policy *persona.Policy, reg *health.Registry, m *metrics.Collector) *Pool {
	ws := make([]*Worker, 0, len(bindings))
	for _, b := range bindings {
		ws = append(ws, NewWorker(NewProcessor(b, filter, policy), opts, reg, m))
	}
	return &Pool{workers: ws}
}

// Start binds every queue. If one fails, the queues already bound are
// released and the error returned; the pool never runs partially.
func (p *Pool) Start() error {
	for i, w := range p.workers {
		if err := w.Start(); err != nil {
			for _, x := range p.workers[:i] {
				x.Stop()
			}
			return err
		}
	}
	return nil
}

func (p *Pool) Workers() []*Worker {
	return p.workers
}

func (p *Pool) Stop() {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Infof("All NFQueue workers stopped")
	case <-time.After(3 * time.Second):
		_ = log.Errorf("Timeout waiting for NFQueue workers to stop")
	}
}
