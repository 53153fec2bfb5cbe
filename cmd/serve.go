package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mailqueue/health"
	"mailqueue/internal/logger"
	"mailqueue/queue"
	"mailqueue/submit"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the queue, dispatcher and HTTP endpoints",
		Long: `Starts the dispatcher that drains the queue every MAIL_DRAIN_INTERVAL and
an HTTP server on MAIL_HTTP_ADDR exposing POST /v1/messages, /healthz,
/readyz and /debug/vars. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			q, err := newQueue(cfg, log)
			if err != nil {
				return err
			}

			allowed, err := cfg.AllowedNetworks()
			if err != nil {
				return err
			}

			mux := health.NewMux(q)
			mux.Handle("POST /v1/messages", submit.NewHandler(q,
				submit.WithDefaultSender(cfg.From),
				submit.WithAllowedNetworks(allowed),
				submit.WithRetryAfter(cfg.Queue.ErrorDelay),
				submit.WithLogger(log),
			))
			server, err := health.Start(cfg.HTTPAddr, mux)
			if err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancelCause(sigCtx)
			defer cancel(nil)
			go func() {
				if err, ok := <-server.Err(); ok {
					log.Error("http server stopped", logger.Error(err))
					cancel(fmt.Errorf("http server: %w", err))
				}
			}()

			log.Info("mail queue serving",
				"addr", server.Addr().String(),
				"transport", cfg.Transport,
				"capacity", q.Capacity())

			dispatcher := queue.NewDispatcher(q,
				queue.WithInterval(cfg.Queue.DrainInterval),
				queue.WithErrorDelay(cfg.Queue.ErrorDelay),
				queue.WithDispatcherLogger(log),
			)
			runErr := dispatcher.Run(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("http shutdown failed", logger.Error(err))
			}
			if pending := q.Size(); pending > 0 {
				log.Warn("exiting with undelivered messages", "pending", pending)
			}

			stopped := func(err error) bool {
				return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			}
			if cause := context.Cause(ctx); cause != nil && !stopped(cause) {
				return cause
			}
			if stopped(runErr) {
				return nil
			}
			return runErr
		},
	}
}
