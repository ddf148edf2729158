package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

// ErrPoolClosed indicates a Dispatch after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

const defaultPoolSize = 2

// Processor executes a single synthesis request.
type Processor interface {
	Process(ctx context.Context, req core.SynthesisRequest) error
}

var _ core.Dispatcher = (*Pool)(nil)

// Pool runs jobs in the current process with at most size of them executing
// at once. Dispatch never blocks; queued jobs wait for a free slot.
type Pool struct {
	processor Processor
	slots     chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	log       *logger.Logger

	mu        sync.RWMutex
	closed    bool
	waitGroup sync.WaitGroup
}

// NewPool creates a pool whose jobs run on a lifecycle context owned by the
// pool, independent of the contexts passed to Dispatch.
func NewPool(processor Processor, size int, log *logger.Logger) *Pool {
	if size <= 0 {
		size = defaultPoolSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		processor: processor,
		slots:     make(chan struct{}, size),
		ctx:       ctx,
		cancel:    cancel,
		log:       log,
	}
}

// Dispatch schedules req and returns immediately.
func (p *Pool) Dispatch(_ context.Context, req core.SynthesisRequest) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.waitGroup.Add(1)

	go p.run(req)

	return nil
}

// Close stops accepting jobs and waits for the queued ones. When ctx ends
// first, running jobs are cancelled, which fails them, and Close still
// waits for them to be recorded.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})

	go func() {
		p.waitGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()

		return nil
	case <-ctx.Done():
		p.cancel()
		<-done

		return ctx.Err()
	}
}

func (p *Pool) run(req core.SynthesisRequest) {
	defer p.waitGroup.Done()

	// Acquire worker slot to control concurrency; a cancelled pool still
	// hands the job over so that it is recorded as failed.
	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-p.ctx.Done():
	}

	_ = p.processor.Process(p.ctx, req)
}
