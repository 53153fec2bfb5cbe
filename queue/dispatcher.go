package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mailqueue/internal/logger"
)

const (
	// DefaultInterval is the pause between drain passes.
	DefaultInterval = 5 * time.Second
	// DefaultErrorDelay is the pause after a failed drain.
	DefaultErrorDelay = 60 * time.Second
)

type drainer interface {
	DrainOnce(ctx context.Context) error
	Size() int
}

// Dispatcher is the background driver that repeatedly drains a queue. Each
// pass sends queued messages until the queue is empty or a send fails;
// after a failure the next pass waits for the error delay instead of the
// normal interval.
type Dispatcher struct {
	queue      drainer
	interval   time.Duration
	errorDelay time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithInterval sets the pause between passes.
func WithInterval(d time.Duration) DispatcherOption {
	return func(p *Dispatcher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithErrorDelay sets the pause after a failed pass.
func WithErrorDelay(d time.Duration) DispatcherOption {
	return func(p *Dispatcher) {
		if d > 0 {
			p.errorDelay = d
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(p *Dispatcher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher for q.
func NewDispatcher(q *Queue, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:      q,
		interval:   DefaultInterval,
		errorDelay: DefaultErrorDelay,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logger.Component("dispatcher"))
	return d
}

// Run drains the queue until ctx is cancelled. It returns ctx.Err().
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "mail dispatcher started",
		slog.Duration("interval", d.interval),
		slog.Duration("error_delay", d.errorDelay))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("mail dispatcher stopped")
			return ctx.Err()
		case <-timer.C:
			delay := d.interval
			if err := d.pass(ctx); err != nil && ctx.Err() == nil {
				delay = d.errorDelay
			}
			timer.Reset(delay)
		}
	}
}

// pass drains at most the messages present when it started, so an
// unconfigured queue or a stream of new messages cannot keep it spinning.
func (d *Dispatcher) pass(ctx context.Context) error {
	for n := d.queue.Size(); n > 0; n-- {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.queue.DrainOnce(ctx); err != nil {
			d.logger.Error("mail drain failed, backing off",
				slog.Duration("retry_in", d.errorDelay),
				logger.Error(err))
			return err
		}
	}
	return nil
}

// Start runs the dispatcher in a background goroutine.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return errors.New("dispatcher already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = d.Run(ctx)
	}(d.done)
	return nil
}

// Stop cancels the background goroutine and waits for the current send to
// finish.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.cancel == nil {
		d.mu.Unlock()
		return errors.New("dispatcher not started")
	}
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	cancel()
	<-done
	return nil
}
