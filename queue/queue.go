package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"mailqueue/internal/logger"
	"mailqueue/internal/metrics"
)

// Queue is a bounded FIFO of outgoing mail. Producers call Enqueue from any
// goroutine; a single driver calls DrainOnce to send the head message. A
// message leaves the queue only after its send succeeded, so the queue is
// also the retry list.
type Queue struct {
	mu          sync.Mutex
	items       []*entry
	deadLetters []*entry
	settings    *Settings
	capacity    int
	maxAttempts int
	logger      *slog.Logger

	draining atomic.Bool
}

type entry struct {
	msg        *Message
	attempts   int
	lastErr    string
	enqueuedAt time.Time
}

// Snapshot is a point-in-time copy of a queued message's state.
type Snapshot struct {
	ID         string
	From       string
	Recipients []string
	Subject    string
	Attempts   int
	LastError  string
	EnqueuedAt time.Time
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		ID:         e.msg.ID(),
		From:       e.msg.From(),
		Recipients: e.msg.Recipients(),
		Subject:    e.msg.Subject(),
		Attempts:   e.attempts,
		LastError:  e.lastErr,
		EnqueuedAt: e.enqueuedAt,
	}
}

// New creates an unconfigured queue. Enqueue fails with ErrNotConfigured
// until Configure is called.
func New(opts ...Option) *Queue {
	q := &Queue{
		capacity: DefaultCapacity,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With(logger.Component("mailqueue"))
	return q
}

// Configure atomically replaces the transport and header/footer overrides.
// Concurrent Enqueue and DrainOnce calls observe either the old or the new
// settings, never a mix.
func (q *Queue) Configure(s Settings) error {
	if s.Transport == nil {
		return fmt.Errorf("%w: transport is required", ErrNotConfigured)
	}
	next := s.clone()

	q.mu.Lock()
	q.settings = next
	q.mu.Unlock()

	q.logger.Info("mail queue configured",
		slog.Bool("default_header", next.Header == nil),
		slog.Bool("default_footer", next.Footer == nil))
	return nil
}

// Configured reports whether Configure has been called.
func (q *Queue) Configured() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settings != nil
}

// Enqueue validates and prepares m and appends it to the tail. The message
// text is rewritten with the configured header, footer and attributes.
// A message can be enqueued once; later attempts, on this queue or any
// other, fail with ErrInvalidMessage.
func (q *Queue) Enqueue(m *Message) error {
	size, err := q.enqueue(m)
	if err != nil {
		metrics.MessagesRejected.Add(1)
		q.logger.Warn("mail message rejected", logger.Error(err))
		return err
	}

	metrics.MessagesQueued.Add(1)
	metrics.SetQueueDepth(size)
	q.logger.Debug("queued mail message",
		logger.MessageID(m.ID()),
		logger.Recipients(m.recipients),
		slog.Int("size", size))
	return nil
}

func (q *Queue) enqueue(m *Message) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.settings == nil {
		recipient := ""
		if m != nil {
			recipient = m.Recipient()
		}
		return 0, fmt.Errorf("%w: message to %q rejected", ErrNotConfigured, recipient)
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if m.queued.Load() {
		return 0, fmt.Errorf("%w: message %s already queued", ErrInvalidMessage, m.ID())
	}
	if len(q.items) >= q.capacity {
		return 0, fmt.Errorf("%w: message to %q rejected", ErrQueueFull, m.Recipient())
	}
	// Another queue may have claimed m since the check above.
	if !m.queued.CompareAndSwap(false, true) {
		return 0, fmt.Errorf("%w: message %s already queued", ErrInvalidMessage, m.ID())
	}

	Prepare(m, q.settings.Header, q.settings.Footer)
	q.items = append(q.items, &entry{msg: m, enqueuedAt: time.Now()})
	return len(q.items), nil
}

// DrainOnce tries to send the head message. It returns nil when the queue
// is empty or unconfigured. On failure the message stays at the head and
// the returned *ConnectError or *SendError explains why; the next call
// retries the same message.
//
// DrainOnce must not be called concurrently with itself and panics if it
// is.
func (q *Queue) DrainOnce(ctx context.Context) error {
	if !q.draining.CompareAndSwap(false, true) {
		panic("queue: concurrent DrainOnce")
	}
	defer q.draining.Store(false)

	q.mu.Lock()
	if len(q.items) == 0 || q.settings == nil {
		q.mu.Unlock()
		return nil
	}
	head := q.items[0]
	transport := q.settings.Transport
	q.mu.Unlock()

	msg := head.msg
	start := time.Now()
	q.logger.Debug("starting processing of mail message",
		logger.MessageID(msg.ID()),
		logger.Recipients(msg.recipients),
		logger.Attempt(head.attempts+1))

	conn, err := transport.Open(ctx)
	if err != nil {
		return q.fail(head, asConnectError(err))
	}

	sendErr := conn.Send(ctx, msg)
	if cerr := conn.Close(); cerr != nil {
		q.logger.Warn("failed to close mail transport", logger.MessageID(msg.ID()), logger.Error(cerr))
	}
	if sendErr != nil {
		return q.fail(head, asSendError(sendErr))
	}

	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		q.logger.Warn("mail queue emptied during send", logger.MessageID(msg.ID()))
		return nil
	}
	q.items[0] = nil
	q.items = q.items[1:]
	size := len(q.items)
	q.mu.Unlock()

	metrics.MessagesSent.Add(1)
	metrics.SetQueueDepth(size)
	q.logger.Info("sent mail message",
		logger.MessageID(msg.ID()),
		logger.Recipients(msg.recipients),
		logger.Elapsed(start))
	return nil
}

func (q *Queue) fail(head *entry, err error) error {
	metrics.SendFailures.Add(1)

	q.mu.Lock()
	head.attempts++
	head.lastErr = err.Error()
	attempts := head.attempts
	deadLettered := false
	if q.maxAttempts > 0 && attempts >= q.maxAttempts && len(q.items) > 0 && q.items[0] == head {
		q.items[0] = nil
		q.items = q.items[1:]
		q.deadLetters = append(q.deadLetters, head)
		deadLettered = true
	}
	size := len(q.items)
	q.mu.Unlock()

	q.logger.Error("failed to send mail message",
		logger.MessageID(head.msg.ID()),
		logger.Recipients(head.msg.recipients),
		logger.Attempt(attempts),
		slog.String("reason", ReasonOf(err).String()),
		logger.Error(err))

	if deadLettered {
		metrics.MessagesDeadLettered.Add(1)
		metrics.SetQueueDepth(size)
		q.logger.Info("moved mail message to dead-letter list",
			logger.MessageID(head.msg.ID()),
			logger.Attempt(attempts))
	}
	return err
}

// Size returns the number of queued messages.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the maximum number of queued messages.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Head returns the message the next DrainOnce will attempt.
func (q *Queue) Head() (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Snapshot{}, false
	}
	return q.items[0].snapshot(), true
}

// Pending returns snapshots of all queued messages, head first.
func (q *Queue) Pending() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Snapshot, len(q.items))
	for i, e := range q.items {
		out[i] = e.snapshot()
	}
	return out
}

// DeadLetters returns snapshots of messages that exceeded the attempt limit.
func (q *Queue) DeadLetters() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Snapshot, len(q.deadLetters))
	for i, e := range q.deadLetters {
		out[i] = e.snapshot()
	}
	return out
}

// Requeue moves a dead-lettered message back to the tail with a fresh
// attempt count.
func (q *Queue) Requeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := slices.IndexFunc(q.deadLetters, func(e *entry) bool { return e.msg.ID() == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if len(q.items) >= q.capacity {
		return fmt.Errorf("%w: message %s not requeued", ErrQueueFull, id)
	}
	e := q.deadLetters[idx]
	q.deadLetters = slices.Delete(q.deadLetters, idx, idx+1)
	e.attempts = 0
	e.enqueuedAt = time.Now()
	q.items = append(q.items, e)
	metrics.SetQueueDepth(len(q.items))
	return nil
}
