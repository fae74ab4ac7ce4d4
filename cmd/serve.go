package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"corebank/shared"
)

// serveCmd runs the full node until interrupted: shard regions with
// remembered entities revived, closure recovery, the scheduler, and the
// monthly billing trigger.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the banking engine node",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := buildSystem()
		if err != nil {
			exitWithError(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := s.accounts.Start(ctx); err != nil {
			exitWithError(err)
		}
		if err := s.employees.Start(ctx); err != nil {
			exitWithError(err)
		}
		if err := s.finalizer.Recover(); err != nil {
			s.log.Error("closure recovery failed", zap.Error(err))
		}

		err = s.scheduler.ScheduleBillingFanout(s.cfg.BillingCron, func() {
			now := time.Now().UTC()
			period := shared.BillingPeriod{Month: int(now.Month()), Year: now.Year()}
			if err := s.fanout.Run(ctx, period); err != nil {
				s.log.Error("billing fan-out failed", zap.Error(err))
			}
		})
		if err != nil {
			exitWithError(err)
		}
		s.scheduler.Start()

		s.log.Info("node started",
			zap.Int("shards", s.cfg.Shards),
			zap.String("journal", s.cfg.JournalPath))

		<-ctx.Done()
		s.log.Info("shutting down")
		s.shutdown()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
