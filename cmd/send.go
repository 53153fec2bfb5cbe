package cmd

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/lithammer/dedent"
	"github.com/spf13/cobra"

	"mailqueue/queue"
)

var sendExample = dedent.Dedent(`
	# Send through the relay configured in MAIL_HOST
	mailqueue send --from app@example.com --to ops@example.com --subject "Disk full" --body "node-3 at 98%"

	# Read the body from stdin and attach a file
	df -h | mailqueue send --to ops@example.com --subject "df" --body - --attach report.csv

	# Render to the spool instead of sending
	MAIL_TRANSPORT=spool mailqueue send --to ops@example.com --subject test --body hi`)

type sendFlags struct {
	from       string
	to         []string
	replyTo    string
	subject    string
	body       string
	attributes map[string]string
	attach     []string
}

func newSendCmd(flags *globalFlags) *cobra.Command {
	f := &sendFlags{}
	cmd := &cobra.Command{
		Use:     "send",
		Short:   "Queue one message and drain it immediately",
		Example: sendExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			q, err := newQueue(cfg, log)
			if err != nil {
				return err
			}

			m, err := f.message(cmd.InOrStdin(), cfg.From)
			if err != nil {
				return err
			}
			if err := q.Enqueue(m); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for q.Size() > 0 {
				if err := q.DrainOnce(cmd.Context()); err != nil {
					red.Fprintf(out, "✗ %s not sent: %s\n", m.ID(), queue.ReasonOf(err))
					return err
				}
			}
			green.Fprintf(out, "✓ %s sent to %s\n", m.ID(), m.Recipient())
			return nil
		},
	}

	cmd.Flags().StringVar(&f.from, "from", "", "Sender address (default MAIL_FROM)")
	cmd.Flags().StringSliceVar(&f.to, "to", nil, "Recipient address; repeat or comma separate")
	cmd.Flags().StringVar(&f.replyTo, "reply-to", "", "Reply-To address")
	cmd.Flags().StringVarP(&f.subject, "subject", "s", "", "Subject line")
	cmd.Flags().StringVarP(&f.body, "body", "b", "", `Message body, or "-" to read stdin`)
	cmd.Flags().StringToStringVar(&f.attributes, "attr", nil, "Attribute rendered below the footer, name=value")
	cmd.Flags().StringSliceVar(&f.attach, "attach", nil, "File to attach; repeatable")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (f *sendFlags) message(stdin io.Reader, defaultFrom string) (*queue.Message, error) {
	body := f.body
	if body == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		body = string(data)
	}

	from := f.from
	if from == "" {
		from = defaultFrom
	}

	opts := []queue.MessageOption{queue.WithRecipients(f.to...)}
	if f.replyTo != "" {
		opts = append(opts, queue.WithReplyTo(f.replyTo))
	}
	for name, value := range f.attributes {
		opts = append(opts, queue.WithAttribute(name, value))
	}
	for _, path := range f.attach {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		opts = append(opts, queue.WithAttachment(filepath.Base(path), contentType, data))
	}
	return queue.NewMessage(from, f.subject, body, opts...), nil
}
