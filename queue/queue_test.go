package queue_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailqueue/queue"
)

func newMessage(to string) *queue.Message {
	return queue.NewMessage("sender@example.com", "Subject "+to, "Body for "+to,
		queue.WithRecipients(to))
}

func configured(t *testing.T, tr queue.Transport, opts ...queue.Option) *queue.Queue {
	t.Helper()
	q := queue.New(opts...)
	require.NoError(t, q.Configure(queue.Settings{Transport: tr}))
	return q
}

func TestEnqueueUnconfigured(t *testing.T) {
	t.Parallel()

	q := queue.New()
	assert.False(t, q.Configured())

	assert.ErrorIs(t, q.Enqueue(newMessage("a@example.com")), queue.ErrNotConfigured)
	assert.ErrorIs(t, q.Enqueue(queue.NewMessage("", "", "")), queue.ErrNotConfigured)
	assert.ErrorIs(t, q.Enqueue(nil), queue.ErrNotConfigured)
	assert.Equal(t, 0, q.Size())
}

func TestConfigureRequiresTransport(t *testing.T) {
	t.Parallel()

	q := queue.New()
	assert.ErrorIs(t, q.Configure(queue.Settings{}), queue.ErrNotConfigured)
	assert.False(t, q.Configured())
}

func TestEnqueueAppendsAtTail(t *testing.T) {
	t.Parallel()

	q := configured(t, &fakeTransport{})
	for i := range 5 {
		m := newMessage(fmt.Sprintf("user%d@example.com", i))
		before := q.Size()

		require.NoError(t, q.Enqueue(m))

		assert.Equal(t, before+1, q.Size())
		pending := q.Pending()
		assert.Equal(t, m.ID(), pending[len(pending)-1].ID)
	}
	assert.Equal(t, queue.DefaultCapacity, q.Capacity())
}

func TestEnqueueInvalidMessage(t *testing.T) {
	t.Parallel()

	q := configured(t, &fakeTransport{})
	require.NoError(t, q.Enqueue(newMessage("a@example.com")))

	err := q.Enqueue(queue.NewMessage("sender@example.com", "s", "b"))
	assert.ErrorIs(t, err, queue.ErrInvalidMessage)
	err = q.Enqueue(queue.NewMessage("", "s", "b", queue.WithRecipients("a@example.com")))
	assert.ErrorIs(t, err, queue.ErrInvalidMessage)
	assert.Equal(t, 1, q.Size())
}

func TestEnqueueQueueFull(t *testing.T) {
	t.Parallel()

	q := configured(t, &fakeTransport{}, queue.WithCapacity(2))
	m1, m2 := newMessage("one@example.com"), newMessage("two@example.com")

	require.NoError(t, q.Enqueue(m1))
	require.NoError(t, q.Enqueue(m2))
	assert.Equal(t, 2, q.Size())

	err := q.Enqueue(newMessage("three@example.com"))
	assert.ErrorIs(t, err, queue.ErrQueueFull)
	assert.Equal(t, 2, q.Size())

	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, m1.ID(), pending[0].ID)
	assert.Equal(t, m2.ID(), pending[1].ID)
}

func TestEnqueuePreparesText(t *testing.T) {
	t.Parallel()

	q := queue.New()
	require.NoError(t, q.Configure(queue.Settings{
		Transport: &fakeTransport{},
		Footer:    queue.Text(""),
	}))

	m := queue.NewMessage("sender@example.com", "s", "Hello",
		queue.WithRecipients("a@example.com"),
		queue.WithAttribute("x", "1"))
	require.NoError(t, q.Enqueue(m))

	assert.Equal(t, "Hello\n\n", m.Text())
	assert.NotContains(t, m.Text(), queue.DefaultFooter)
	assert.NotContains(t, m.Text(), "x: 1")
}

func TestEnqueueDefaultFooterRendersAttributes(t *testing.T) {
	t.Parallel()

	q := configured(t, &fakeTransport{})
	m := queue.NewMessage("sender@example.com", "s", "Hello",
		queue.WithRecipients("a@example.com"),
		queue.WithAttribute("x", "1"))
	require.NoError(t, q.Enqueue(m))

	assert.Equal(t, "Hello\n\n"+queue.DefaultFooter+"x: 1\n\n", m.Text())
}

func TestDrainOnceFIFO(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	q := configured(t, tr)

	var want []string
	for i := range 4 {
		m := newMessage(fmt.Sprintf("user%d@example.com", i))
		require.NoError(t, q.Enqueue(m))
		want = append(want, m.ID())
	}

	for range want {
		require.NoError(t, q.DrainOnce(context.Background()))
	}

	assert.Equal(t, want, tr.sentIDs())
	assert.Equal(t, 0, q.Size())
	opens, closes := tr.counts()
	assert.Equal(t, 4, opens)
	assert.Equal(t, 4, closes)
}

func TestDrainOnceEmptyOrUnconfigured(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	q := configured(t, tr)
	require.NoError(t, q.DrainOnce(context.Background()))

	unconfigured := queue.New()
	require.NoError(t, unconfigured.DrainOnce(context.Background()))

	opens, _ := tr.counts()
	assert.Zero(t, opens)
}

func TestDrainOnceConnectErrorKeepsHead(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		openErrs: []error{&queue.ConnectError{Reason: queue.ReasonUnreachable, Err: errors.New("dial tcp: refused")}},
	}
	q := configured(t, tr)
	m := newMessage("a@example.com")
	require.NoError(t, q.Enqueue(m))
	require.NoError(t, q.Enqueue(newMessage("b@example.com")))

	err := q.DrainOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrConnect)
	assert.Equal(t, queue.ReasonUnreachable, queue.ReasonOf(err))
	assert.Equal(t, 2, q.Size())

	head, ok := q.Head()
	require.True(t, ok)
	assert.Equal(t, m.ID(), head.ID)
	assert.Equal(t, 1, head.Attempts)
	assert.Contains(t, head.LastError, "refused")

	require.NoError(t, q.DrainOnce(context.Background()))
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, []string{m.ID()}, tr.sentIDs())
}

func TestDrainOnceSendErrorClosesConnection(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		sendErrs: []error{&queue.SendError{Reason: queue.ReasonRecipientRejected, Err: errors.New("550 no such user")}},
	}
	q := configured(t, tr)
	m := newMessage("a@example.com")
	require.NoError(t, q.Enqueue(m))

	err := q.DrainOnce(context.Background())
	assert.ErrorIs(t, err, queue.ErrSend)
	assert.Equal(t, queue.ReasonRecipientRejected, queue.ReasonOf(err))
	assert.Equal(t, 1, q.Size())

	opens, closes := tr.counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)

	head, _ := q.Head()
	assert.Equal(t, m.ID(), head.ID)
}

func TestDrainOnceWrapsUntypedErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	tr := &fakeTransport{openErrs: []error{cause}, sendErrs: []error{cause}}
	q := configured(t, tr)
	require.NoError(t, q.Enqueue(newMessage("a@example.com")))

	err := q.DrainOnce(context.Background())
	var ce *queue.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, queue.ReasonUnknown, ce.Reason)
	assert.ErrorIs(t, err, cause)

	err = q.DrainOnce(context.Background())
	var se *queue.SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, queue.ReasonUnknown, se.Reason)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, q.Size())
}

func TestDrainOnceIgnoresCloseError(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{closeErr: errors.New("quit failed")}
	q := configured(t, tr)
	require.NoError(t, q.Enqueue(newMessage("a@example.com")))

	require.NoError(t, q.DrainOnce(context.Background()))
	assert.Equal(t, 0, q.Size())
}

func TestHeadOfLineBlockingByDefault(t *testing.T) {
	t.Parallel()

	fail := &queue.SendError{Reason: queue.ReasonRecipientRejected}
	tr := &fakeTransport{sendErrs: []error{fail, fail, fail, fail, fail}}
	q := configured(t, tr)
	m := newMessage("bounce@example.com")
	require.NoError(t, q.Enqueue(m))
	require.NoError(t, q.Enqueue(newMessage("ok@example.com")))

	for range 5 {
		require.Error(t, q.DrainOnce(context.Background()))
	}

	head, _ := q.Head()
	assert.Equal(t, m.ID(), head.ID)
	assert.Equal(t, 5, head.Attempts)
	assert.Empty(t, q.DeadLetters())
	assert.Equal(t, 2, q.Size())
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	fail := &queue.SendError{Reason: queue.ReasonRecipientRejected}
	tr := &fakeTransport{sendErrs: []error{fail, fail}}
	q := configured(t, tr, queue.WithMaxAttempts(2), queue.WithCapacity(2))
	bad, good := newMessage("bounce@example.com"), newMessage("ok@example.com")
	require.NoError(t, q.Enqueue(bad))
	require.NoError(t, q.Enqueue(good))

	require.Error(t, q.DrainOnce(context.Background()))
	assert.Equal(t, 2, q.Size())
	require.Error(t, q.DrainOnce(context.Background()))
	assert.Equal(t, 1, q.Size())

	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, bad.ID(), dead[0].ID)
	assert.Equal(t, 2, dead[0].Attempts)

	head, _ := q.Head()
	assert.Equal(t, good.ID(), head.ID)
	require.NoError(t, q.DrainOnce(context.Background()))
	assert.Equal(t, []string{good.ID()}, tr.sentIDs())

	require.NoError(t, q.Requeue(bad.ID()))
	assert.Empty(t, q.DeadLetters())
	head, _ = q.Head()
	assert.Equal(t, bad.ID(), head.ID)
	assert.Zero(t, head.Attempts)

	assert.ErrorIs(t, q.Requeue("missing"), queue.ErrNotFound)
}

func TestConcurrentEnqueue(t *testing.T) {
	t.Parallel()

	const producers, perProducer = 20, 50
	q := configured(t, &fakeTransport{})

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				m := newMessage(fmt.Sprintf("p%d-%d@example.com", p, i))
				assert.NoError(t, q.Enqueue(m))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Size())
	assert.ErrorIs(t, q.Enqueue(newMessage("late@example.com")), queue.ErrQueueFull)

	// Each producer's own messages keep their relative order.
	last := make(map[string]int)
	for _, s := range q.Pending() {
		var p, i int
		_, err := fmt.Sscanf(s.Recipients[0], "p%d-%d@example.com", &p, &i)
		require.NoError(t, err)
		key := fmt.Sprint(p)
		if prev, ok := last[key]; ok {
			assert.Greater(t, i, prev)
		}
		last[key] = i
	}
}

func TestEnqueueDuringSend(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{block: make(chan struct{}), started: make(chan struct{}, 1)}
	q := configured(t, tr)
	first := newMessage("first@example.com")
	require.NoError(t, q.Enqueue(first))

	done := make(chan error, 1)
	go func() { done <- q.DrainOnce(context.Background()) }()
	<-tr.started

	// The send is in flight; producers must not be blocked by it.
	require.NoError(t, q.Enqueue(newMessage("second@example.com")))
	assert.Equal(t, 2, q.Size())

	assert.Panics(t, func() { _ = q.DrainOnce(context.Background()) })

	close(tr.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, []string{first.ID()}, tr.sentIDs())
}

func TestEnqueueRejectsMessageAlreadyQueued(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{block: make(chan struct{}), started: make(chan struct{}, 1)}
	q := configured(t, tr)
	m := newMessage("once@example.com")
	require.NoError(t, q.Enqueue(m))
	text := m.Text()

	done := make(chan error, 1)
	go func() { done <- q.DrainOnce(context.Background()) }()
	<-tr.started

	err := q.Enqueue(m)
	require.ErrorIs(t, err, queue.ErrInvalidMessage)
	assert.Contains(t, err.Error(), "already queued")
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, text, m.Text())

	close(tr.block)
	require.NoError(t, <-done)
	assert.Zero(t, q.Size())

	// Delivered messages stay claimed, so they cannot be sent twice.
	assert.ErrorIs(t, q.Enqueue(m), queue.ErrInvalidMessage)
	assert.Equal(t, []string{m.ID()}, tr.sentIDs())
}

func TestEnqueueSameMessageIntoTwoQueues(t *testing.T) {
	t.Parallel()

	first := configured(t, &fakeTransport{})
	second := configured(t, &fakeTransport{})
	m := newMessage("shared@example.com")

	require.NoError(t, first.Enqueue(m))
	assert.ErrorIs(t, second.Enqueue(m), queue.ErrInvalidMessage)
	assert.Zero(t, second.Size())
}

func TestEnqueueFullDoesNotClaimMessage(t *testing.T) {
	t.Parallel()

	q := configured(t, &fakeTransport{}, queue.WithCapacity(1))
	require.NoError(t, q.Enqueue(newMessage("a@example.com")))

	m := newMessage("b@example.com")
	require.ErrorIs(t, q.Enqueue(m), queue.ErrQueueFull)
	require.NoError(t, q.DrainOnce(context.Background()))
	assert.NoError(t, q.Enqueue(m))
}

func TestConfigureIsAtomic(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	q := configured(t, tr)
	a := queue.Settings{Transport: tr, Header: queue.Text("A-HEADER\n"), Footer: queue.Text("A-FOOTER\n")}
	b := queue.Settings{Transport: tr, Header: queue.Text("B-HEADER\n"), Footer: queue.Text("B-FOOTER\n")}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 200 {
			s := a
			if i%2 == 1 {
				s = b
			}
			assert.NoError(t, q.Configure(s))
		}
	}()

	msgs := make([]*queue.Message, 0, 200)
	go func() {
		defer wg.Done()
		for i := range 200 {
			m := newMessage(fmt.Sprintf("u%d@example.com", i))
			assert.NoError(t, q.Enqueue(m))
			msgs = append(msgs, m)
		}
	}()
	wg.Wait()

	for _, m := range msgs {
		text := m.Text()
		switch {
		case strings.HasPrefix(text, "A-HEADER"):
			assert.Contains(t, text, "A-FOOTER")
		case strings.HasPrefix(text, "B-HEADER"):
			assert.Contains(t, text, "B-FOOTER")
		default:
			// Initial configuration: default header and footer.
			assert.Contains(t, text, queue.DefaultFooter)
		}
	}
}

func TestConfigureCopiesOverrides(t *testing.T) {
	t.Parallel()

	footer := "original\n"
	q := queue.New()
	require.NoError(t, q.Configure(queue.Settings{Transport: &fakeTransport{}, Footer: &footer}))
	footer = "mutated\n"

	m := newMessage("a@example.com")
	require.NoError(t, q.Enqueue(m))
	assert.Contains(t, m.Text(), "original")
	assert.NotContains(t, m.Text(), "mutated")
}
