package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mailqueue/delivery"
	"mailqueue/internal/config"
	"mailqueue/internal/logger"
	"mailqueue/queue"
)

var (
	red   = color.New(color.FgRed)
	green = color.New(color.FgGreen)
)

type globalFlags struct {
	envFile string
	debug   bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "mailqueue",
		Short: "Bounded outbound mail queue with pluggable delivery",
		Long: `mailqueue accepts outbound mail, holds it in a bounded in-memory FIFO
queue and drains it through an SMTP relay, direct MX delivery, the Postmark
API or an on-disk spool. Messages leave the queue only after the transport
accepted them.

Configuration is read from MAIL_* environment variables and an optional
.env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&flags.envFile, "env-file", "e", "", "Path to a .env file (default ./.env when present)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newServeCmd(flags), newSendCmd(flags), newVersionCmd())
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		red.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (f *globalFlags) load() (config.Config, *slog.Logger, error) {
	var files []string
	if f.envFile != "" {
		files = append(files, f.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logger.New(logger.Options{Debug: cfg.Debug || f.debug, Service: "mailqueue"})
	return cfg, log, nil
}

// newQueue builds a configured queue for cfg.
func newQueue(cfg config.Config, log *slog.Logger) (*queue.Queue, error) {
	transport, err := delivery.New(cfg, delivery.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	q := queue.New(
		queue.WithCapacity(cfg.Queue.Capacity),
		queue.WithMaxAttempts(cfg.Queue.MaxAttempts),
		queue.WithLogger(log),
	)
	if err := q.Configure(queue.Settings{
		Transport: transport,
		Header:    cfg.Header(),
		Footer:    cfg.Footer(),
	}); err != nil {
		return nil, err
	}
	return q, nil
}
