package main

import (
	stdcmp "cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/go-cmp/cmp"
)

func sortObjectRecords(records []objectRecord) {
	slices.SortFunc(records, func(a, b objectRecord) int {
		return stdcmp.Compare(a.key, b.key)
	})
}

func TestListHandler(t *testing.T) {
	ch := make(chan objectRecord)

	var wg sync.WaitGroup
	var got []objectRecord

	wg.Add(1)
	go func() {
		defer wg.Done()

		for i := range ch {
			got = append(got, i)
		}
	}()

	h := newListHandler(ch)
	h.handleObject(types.Object{
		Key:          aws.String("k1"),
		Size:         aws.Int64(100),
		LastModified: aws.Time(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)),
	})
	h.handleObject(types.Object{
		Key:          aws.String("k2"),
		Size:         aws.Int64(200),
		StorageClass: types.ObjectStorageClassGlacier,
	})

	close(ch)

	wg.Wait()

	sortObjectRecords(got)

	want := []objectRecord{
		{
			key:          "k1",
			size:         100,
			lastModified: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			key:          "k2",
			size:         200,
			storageClass: types.ObjectStorageClassGlacier,
		},
	}

	if diff := cmp.Diff(want, got, cmp.AllowUnexported(objectRecord{})); diff != "" {
		t.Errorf("ListHandler diff (-want +got):\n%s", diff)
	}
}

func TestListHandlerInternStringNil(t *testing.T) {
	h := newListHandler(nil)

	if got := h.internString(nil); got != "" {
		t.Errorf("internString(nil) = %q, want empty", got)
	}

	value := strings.Repeat("x", 100)

	if got := h.internString(&value); got != value {
		t.Errorf("internString() = %q, want %q", got, value)
	}
}

type fakeListObjectsV2APIClient struct {
	offset  int
	results []*s3.ListObjectsV2Output
}

func (c *fakeListObjectsV2APIClient) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var result *s3.ListObjectsV2Output

	if c.offset < len(c.results) {
		result = c.results[c.offset]
		c.offset++
	}

	if result == nil {
		result = &s3.ListObjectsV2Output{
			IsTruncated: aws.Bool(false),
		}
	}

	return result, nil
}

func TestListObjects(t *testing.T) {
	ctx := context.Background()

	var c fakeListObjectsV2APIClient

	var want []objectRecord

	for pageIdx := range 10 {
		page := &s3.ListObjectsV2Output{
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String(fmt.Sprint(pageIdx + 1)),
		}

		for i := range 100 {
			key := fmt.Sprintf("key%03d-%03d", pageIdx, i)

			obj := types.Object{
				Key:  aws.String(key),
				Size: aws.Int64(int64(i)),
			}

			record := objectRecord{
				key:  key,
				size: int64(i),
			}

			if i%7 == 0 {
				obj.StorageClass = types.ObjectStorageClassDeepArchive
				record.storageClass = types.ObjectStorageClassDeepArchive
			}

			page.Contents = append(page.Contents, obj)
			want = append(want, record)
		}

		c.results = append(c.results, page)
	}

	ch := make(chan objectRecord)

	var wg sync.WaitGroup
	var got []objectRecord

	wg.Add(1)
	go func() {
		defer wg.Done()

		for i := range ch {
			got = append(got, i)
		}
	}()

	if err := listObjects(ctx, &c, "bucket", "prefix", ch); err != nil {
		t.Errorf("listObjects() failed: %v", err)
	}

	close(ch)

	wg.Wait()

	sortObjectRecords(want)
	sortObjectRecords(got)

	if diff := cmp.Diff(want, got, cmp.AllowUnexported(objectRecord{})); diff != "" {
		t.Errorf("listObjects() diff (-want +got):\n%s", diff)
	}
}
