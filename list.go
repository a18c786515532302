package main

import (
	"context"
	"unique"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
)

type listHandler struct {
	out chan<- objectRecord
}

func newListHandler(out chan<- objectRecord) *listHandler {
	return &listHandler{
		out: out,
	}
}

// Best-effort string interning. Many keys share long directory-style
// prefixes and reports hold on to all of them.
func (h *listHandler) internString(s *string) string {
	if s == nil {
		return ""
	}

	return unique.Make(*s).Value()
}

func (h *listHandler) handleObject(obj types.Object) {
	h.out <- objectRecord{
		key:          h.internString(obj.Key),
		size:         aws.ToInt64(obj.Size),
		lastModified: aws.ToTime(obj.LastModified),
		storageClass: obj.StorageClass,
	}
}

func listObjects(ctx context.Context, c s3.ListObjectsV2APIClient, bucket, prefix string, out chan<- objectRecord) error {
	paginator := s3.NewListObjectsV2Paginator(c, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	ch := make(chan *s3.ListObjectsV2Output, 1)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ch)

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}

			ch <- page
		}

		return nil
	})
	g.Go(func() error {
		handler := newListHandler(out)

		for page := range ch {
			for _, i := range page.Contents {
				handler.handleObject(i)
			}
		}

		return nil
	})

	return g.Wait()
}
