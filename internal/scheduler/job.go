package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chanalysis/internal/notify"
)

// ReportGenerator produces a rendered report
type ReportGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// DeliveryRecorder observes each delivery attempt.
// *infrastructure.PipelineMetrics satisfies it.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, channel string, err error)
}

// ReportJob builds the scheduled job: generate the report, send it, then send
// the watchlist alert. A generation failure is reported to the chat as
// "❌ Daily job failed: ..." and returned.
func ReportJob(gen ReportGenerator, n notify.Notifier, watchlistSize int, rec DeliveryRecorder, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}

	deliver := func(ctx context.Context, kind, text string) error {
		err := n.Send(ctx, text)
		if rec != nil {
			rec.RecordDelivery(ctx, n.Name(), err)
		}
		if err != nil {
			logger.ErrorContext(ctx, "delivery failed",
				slog.String("kind", kind),
				slog.String("channel", n.Name()),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("deliver %s: %w", kind, err)
		}
		return nil
	}

	return func(ctx context.Context) error {
		report, err := gen.Generate(ctx)
		if err != nil {
			// the run context may be the reason it failed
			_ = deliver(context.WithoutCancel(ctx), "failure notice", fmt.Sprintf("❌ Daily job failed: %v", err))
			return fmt.Errorf("generate report: %w", err)
		}

		errs := []error{deliver(ctx, "report", report)}
		if watch := notify.Watchlist(report, watchlistSize); watch != "" {
			errs = append(errs, deliver(ctx, "watchlist", watch))
		}
		return errors.Join(errs...)
	}
}
