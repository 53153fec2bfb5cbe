package queue

import "log/slog"

// DefaultCapacity is the queue size used when WithCapacity is not given.
const DefaultCapacity = 1000

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity sets the maximum number of queued messages. Non-positive
// values are ignored.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithMaxAttempts moves the head message to the dead-letter list after n
// consecutive failed drains. Zero, the default, keeps retrying forever and
// blocks the messages behind it.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxAttempts = n
		}
	}
}

// WithLogger sets the logger for queue events.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}
