package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hansmi/s3-retention-sweep/internal/state"
	"golang.org/x/sync/errgroup"
)

// processor applies the retention rules to listed objects, forwarding every
// decision as a report row and delete-eligible records to the deleter.
type processor struct {
	stats  *sweepStats
	config retentionConfig
	now    time.Time
}

func newProcessor(stats *sweepStats, config retentionConfig, now time.Time) *processor {
	return &processor{
		stats:  stats,
		config: config,
		now:    now,
	}
}

func (p *processor) run(in <-chan objectRecord, rows chan<- reportRow, deletes chan<- objectRecord) error {
	for r := range in {
		p.stats.discovered(r)

		result := classify(r, p.config, p.now)

		p.stats.classified(r, result)

		rows <- reportRow{
			record: r,
			result: result,
		}

		if result.action == actionDelete {
			deletes <- r
		}
	}

	return nil
}

type sweepOptions struct {
	logger *slog.Logger
	stats  *sweepStats
	state  *state.Store
	client *client
	config retentionConfig
	report reportOptions
	dryRun bool

	// Reference time for age computations, captured once per run.
	now time.Time
}

// sweep lists a bucket, classifies every object, deletes what qualifies and
// writes the audit report.
func sweep(ctx context.Context, opts sweepOptions) error {
	bucketState, err := opts.state.Bucket(opts.client.name)
	if err != nil {
		return fmt.Errorf("bucket state: %w", err)
	}

	if last, err := bucketState.LastRun(); err != nil {
		return fmt.Errorf("last run: %w", err)
	} else if !last.StartedAt.IsZero() {
		opts.logger.InfoContext(ctx, "Previous sweep",
			slog.Time("started_at", last.StartedAt),
			slog.Bool("dry_run", last.DryRun),
			slog.Int64("total", last.Total),
			slog.Int64("deleted", last.Deleted),
		)
	}

	recordCh := make(chan objectRecord, 8)
	rowCh := make(chan reportRow, 8)
	deleteCh := make(chan objectRecord, 8)

	var rows []reportRow

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(recordCh)

		return listObjects(ctx, opts.client.client, opts.client.name, opts.client.prefix, recordCh)
	})
	g.Go(func() error {
		defer close(rowCh)
		defer close(deleteCh)

		p := newProcessor(opts.stats, opts.config, opts.now)

		return p.run(recordCh, rowCh, deleteCh)
	})
	g.Go(func() error {
		for row := range rowCh {
			rows = append(rows, row)
		}

		return nil
	})
	g.Go(func() error {
		d := newBatchDeleter(opts.logger, opts.stats, bucketState, opts.client, opts.dryRun, opts.now)

		return d.run(ctx, deleteCh)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	path, err := writeReport(ctx, opts.logger, opts.client, opts.report, opts.now, rows)
	if err != nil {
		return err
	}

	opts.logger.InfoContext(ctx, "Report written",
		slog.String("path", path),
		slog.Int("rows", len(rows)),
	)

	return bucketState.RecordRun(opts.stats.runRecord(opts.now, opts.dryRun))
}
