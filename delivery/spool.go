package delivery

import (
	"context"
	"fmt"

	"mailqueue/internal/logger"
	"mailqueue/queue"
	"mailqueue/storage"
)

// SpoolTransport writes each protocol message to disk instead of sending
// it. Useful for development and for inspecting rendered output.
type SpoolTransport struct {
	spool     *storage.Spool
	localName string
	opts      options
}

// NewSpoolTransport returns a transport writing into spool.
func NewSpoolTransport(spool *storage.Spool, localName string, opts ...Option) *SpoolTransport {
	return &SpoolTransport{spool: spool, localName: localName, opts: buildOptions("spool", opts)}
}

func (t *SpoolTransport) Open(ctx context.Context) (queue.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, connectError(err)
	}
	return &spoolConnection{t: t}, nil
}

type spoolConnection struct {
	t *SpoolTransport
}

func (c *spoolConnection) Send(ctx context.Context, m *queue.Message) error {
	recipients := m.Recipients()
	for i, msg := range Build(m, c.t.localName) {
		if err := ctx.Err(); err != nil {
			return sendError(err)
		}
		data, err := Render(msg, c.t.opts.signer)
		if err != nil {
			return sendError(err)
		}
		path, err := c.t.spool.Save(fmt.Sprintf("%s-%d", m.ID(), i), recipients[i], m.Subject(), data)
		if err != nil {
			return sendError(err)
		}
		c.t.opts.logger.Debug("message spooled", logger.MessageID(m.ID()), "path", path)
	}
	return nil
}

func (c *spoolConnection) Close() error { return nil }
