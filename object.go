package main

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type objectRecord struct {
	key          string
	size         int64
	lastModified time.Time
	storageClass types.ObjectStorageClass
}

var _ slog.LogValuer = (*objectRecord)(nil)

func (r objectRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("key", r.key),
		slog.Int64("size", r.size),
		slog.Time("last_modified", r.lastModified),
		slog.String("storage_class", string(r.effectiveStorageClass())),
	)
}

// effectiveStorageClass returns the storage class reported by the listing.
// Listings omit the class for STANDARD objects.
func (r objectRecord) effectiveStorageClass() types.ObjectStorageClass {
	if r.storageClass == "" {
		return types.ObjectStorageClassStandard
	}

	return r.storageClass
}

func (r objectRecord) identifier() types.ObjectIdentifier {
	return types.ObjectIdentifier{
		Key:              aws.String(r.key),
		LastModifiedTime: aws.Time(r.lastModified),
		Size:             aws.Int64(r.size),
	}
}
