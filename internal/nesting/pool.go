package nesting

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/piwi3910/SlabNest/internal/model"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("nesting pool is closed")

// PoolConfig controls the worker pool.
type PoolConfig struct {
	Workers    int           // Concurrent runs; 0 = number of CPUs
	QueueSize  int           // Admitted requests waiting for a worker
	RunTimeout time.Duration // Per-run wall time limit; 0 = none
}

// Recorder observes job lifecycle events. The job store implements it.
type Recorder interface {
	JobQueued(id string, req Request)
	JobStarted(id string)
	JobFinished(id string, result model.NestingResult, err error)
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Capacity  int   `json:"capacity"`
	Running   int64 `json:"running"`
	Queued    int64 `json:"queued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Pool runs nesting requests on a fixed set of workers. Admission is bounded
// by Workers + QueueSize; beyond that Submit fails fast with ErrBusy.
type Pool struct {
	svc      *Service
	cfg      PoolConfig
	recorder Recorder

	admission chan struct{}
	jobs      chan *Ticket
	wg        sync.WaitGroup

	mu     sync.Mutex
	closed bool

	running   atomic.Int64
	queued    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// Ticket tracks one submitted request.
type Ticket struct {
	ID  string
	ctx context.Context
	req Request

	done   chan struct{}
	result model.NestingResult
	err    error
}

// Wait blocks until the run finishes or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (model.NestingResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return model.NestingResult{}, cancelled(ctx.Err())
	}
}

// Done is closed when the run has finished.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// NewPool starts the workers. recorder may be nil.
func NewPool(svc *Service, cfg PoolConfig, recorder Recorder) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	capacity := cfg.Workers + cfg.QueueSize
	p := &Pool{
		svc:       svc,
		cfg:       cfg,
		recorder:  recorder,
		admission: make(chan struct{}, capacity),
		jobs:      make(chan *Ticket, capacity),
	}

	p.wg.Add(cfg.Workers)
	for w := 0; w < cfg.Workers; w++ {
		go p.worker()
	}
	log.Info("nesting pool started", "workers", cfg.Workers, "capacity", capacity)
	return p
}

// Submit admits a request for asynchronous processing. The run is cancelled
// when ctx is done.
func (p *Pool) Submit(ctx context.Context, req Request) (*Ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	select {
	case p.admission <- struct{}{}:
	default:
		p.rejected.Add(1)
		return nil, ErrBusy
	}

	t := &Ticket{
		ID:   uuid.New().String(),
		ctx:  ctx,
		req:  req,
		done: make(chan struct{}),
	}
	p.queued.Add(1)
	if p.recorder != nil {
		p.recorder.JobQueued(t.ID, req)
	}
	p.jobs <- t
	return t, nil
}

// Nest submits the request and waits for its result.
func (p *Pool) Nest(ctx context.Context, req Request) (model.NestingResult, error) {
	t, err := p.Submit(ctx, req)
	if err != nil {
		return model.NestingResult{}, err
	}
	return t.Wait(ctx)
}

// Stats returns current pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.cfg.Workers,
		Capacity:  cap(p.admission),
		Running:   p.running.Load(),
		Queued:    p.queued.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Close stops accepting work and waits for admitted runs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	log.Info("nesting pool stopped")
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.jobs {
		p.queued.Add(-1)
		p.run(t)
	}
}

func (p *Pool) run(t *Ticket) {
	defer close(t.done)
	defer func() { <-p.admission }()

	ctx := t.ctx
	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	p.running.Add(1)
	if p.recorder != nil {
		p.recorder.JobStarted(t.ID)
	}
	result, err := p.svc.Nest(ctx, t.req)
	p.running.Add(-1)

	if err == nil {
		result.JobID = t.ID
		p.completed.Add(1)
	} else {
		p.failed.Add(1)
		log.Warn("nesting job failed", "job", t.ID, "kind", KindOf(err), "error", err)
	}
	t.result, t.err = result, err
	if p.recorder != nil {
		p.recorder.JobFinished(t.ID, result, err)
	}
}
