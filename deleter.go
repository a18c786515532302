package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
)

// The DeleteObjects API accepts at most 1000 keys per request.
const deleteBatchSize = 1000

const maxConcurrentDelete = 4

type deleterState interface {
	MarkDeleted(key string, at time.Time, size int64) error
	DeletedAt(key string) (time.Time, error)
}

type batchDeleter struct {
	logger     *slog.Logger
	stats      *sweepStats
	state      deleterState
	dryRun     bool
	client     *s3.Client
	bucketName string
	now        time.Time
}

func newBatchDeleter(logger *slog.Logger, stats *sweepStats, state deleterState, c *client, dryRun bool, now time.Time) *batchDeleter {
	return &batchDeleter{
		logger:     logger,
		stats:      stats,
		state:      state,
		dryRun:     dryRun,
		client:     c.client,
		bucketName: c.name,
		now:        now,
	}
}

func (d *batchDeleter) deleteBatch(ctx context.Context, items []objectRecord) error {
	input := &s3.DeleteObjectsInput{
		Bucket: aws.String(d.bucketName),
		Delete: &types.Delete{},
	}

	for _, i := range items {
		input.Delete.Objects = append(input.Delete.Objects, i.identifier())

		if at, err := d.state.DeletedAt(i.key); err != nil {
			return err
		} else if !at.IsZero() {
			// A key showing up again after a confirmed deletion
			// means somebody re-uploaded it.
			d.logger.WarnContext(ctx, "Object reappeared after earlier deletion",
				slog.Any("object", i),
				slog.Time("deleted_at", at),
			)
		}

		d.logger.InfoContext(ctx, "Delete",
			slog.Bool("dry_run", d.dryRun),
			slog.Any("object", i),
		)

		d.stats.addDelete(i)
	}

	if !d.dryRun {
		output, err := d.client.DeleteObjects(ctx, input)
		if err != nil {
			return err
		}

		d.stats.addDeleteResults(len(output.Deleted), len(output.Errors))

		for _, i := range output.Deleted {
			if err := d.state.MarkDeleted(aws.ToString(i.Key), d.now, 0); err != nil {
				return err
			}
		}

		for _, i := range output.Errors {
			d.logger.ErrorContext(ctx, "Delete failed",
				slog.String("key", aws.ToString(i.Key)),
				slog.String("code", aws.ToString(i.Code)),
				slog.String("msg", aws.ToString(i.Message)),
			)
		}
	}

	return nil
}

func collectDeletes(ctx context.Context, ch <-chan objectRecord) ([]objectRecord, error) {
	pending := make([]objectRecord, 0, deleteBatchSize)

loop:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case obj, ok := <-ch:
			if !ok {
				break loop
			}

			pending = append(pending, obj)

			if len(pending) >= deleteBatchSize {
				break loop
			}
		}
	}

	return pending, nil
}

func (d *batchDeleter) run(ctx context.Context, in <-chan objectRecord) error {
	g, ctx := errgroup.WithContext(ctx)

	ch := make(chan []objectRecord)

	for range maxConcurrentDelete {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()

				case items, ok := <-ch:
					if !ok {
						return nil
					}

					if err := d.deleteBatch(ctx, items); err != nil {
						return err
					}
				}
			}
		})
	}

	g.Go(func() error {
		defer close(ch)

		for {
			items, err := collectDeletes(ctx, in)
			if err != nil {
				return err
			}

			if len(items) == 0 {
				return nil
			}

			ch <- items
		}
	})

	return g.Wait()
}
