package queue_test

import (
	"context"
	"sync"

	"mailqueue/queue"
)

// fakeTransport records every send and lets tests script failures.
type fakeTransport struct {
	mu       sync.Mutex
	openErrs []error
	sendErrs []error
	closeErr error
	block    chan struct{}
	started  chan struct{}

	opens  int
	closes int
	sent   []*queue.Message
}

func (f *fakeTransport) Open(ctx context.Context) (queue.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fakeConn{t: f}, nil
}

func (f *fakeTransport) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.sent))
	for i, m := range f.sent {
		ids[i] = m.ID()
	}
	return ids
}

func (f *fakeTransport) counts() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

type fakeConn struct {
	t *fakeTransport
}

func (c *fakeConn) Send(ctx context.Context, m *queue.Message) error {
	if c.t.started != nil {
		c.t.started <- struct{}{}
	}
	if c.t.block != nil {
		<-c.t.block
	}

	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if len(c.t.sendErrs) > 0 {
		err := c.t.sendErrs[0]
		c.t.sendErrs = c.t.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	c.t.sent = append(c.t.sent, m)
	return nil
}

func (c *fakeConn) Close() error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.t.closes++
	return c.t.closeErr
}
