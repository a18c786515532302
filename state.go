package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hansmi/s3-retention-sweep/internal/state"
)

// downloadStateFromBucket downloads a compressed audit state snapshot from
// an S3 bucket. A missing snapshot object yields a fresh, empty store so the
// first sweep of a bucket works without setup.
func downloadStateFromBucket(ctx context.Context, tmpdir string, c *client, key string) (_ *state.Store, err error) {
	tmpfile, err := state.CreateUnlinkedTemp(tmpdir, "download*")
	if err != nil {
		return nil, err
	}

	defer tmpfile.Close()

	if err := c.downloadObject(ctx, tmpfile, key); err != nil {
		if isNotExist(err) {
			return state.New(tmpdir)
		}

		return nil, fmt.Errorf("object %q download: %w", key, err)
	}

	if _, err := tmpfile.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return state.OpenCompressed(tmpdir, tmpfile)
}

// uploadStateToBucket uploads a compressed audit state snapshot to an S3
// bucket.
func uploadStateToBucket(ctx context.Context, s *state.Store, tmpdir string, c *client, key string) (err error) {
	f, err := s.WriteCompressed(tmpdir)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, f.Close())
	}()

	return c.uploadObject(ctx, f, key)
}
