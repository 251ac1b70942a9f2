package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the pipeline goroutines: the settlement-stream
// processor and the cold-storage archiver cron. Either may be nil when its
// feature is disabled.
type Orchestrator struct {
	processor   *SettlementProcessor
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given components.
func NewOrchestrator(
	processor *SettlementProcessor,
	archiver *Archiver,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		processor:   processor,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts the sub-pipelines under an errgroup. Each goroutine treats
// context cancellation as a clean shutdown; any other error cancels the
// shared context and is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.processor != nil {
		g.Go(func() error {
			err := o.processor.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("settlement processor: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
