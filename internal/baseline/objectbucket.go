package baseline

import (
	"bytes"
	"context"
	"errors"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"deltasync/internal/deltaerr"
	"deltasync/internal/dsn"
	"deltasync/internal/record"
	"deltasync/internal/stream"
)

// ObjectBucket stores each client's previous baseline as one NDJSON object
// at {KeyPrefix}/{clientId}/previous-input.ndjson in an S3-compatible
// bucket, reached through minio-go the way
// grewanderer-animus-golang/closed/internal/storage/objectstore/minio_store.go
// reaches MinIO.
type ObjectBucket struct {
	BucketName string
	KeyPrefix  string
	Region     string

	// Endpoint/AccessKey/SecretKey/UseSSL configure the underlying MinIO
	// client. Endpoint must not include a scheme.
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool

	client *minio.Client
}

var _ Store = (*ObjectBucket)(nil)

func (b *ObjectBucket) Initialize(ctx context.Context) error {
	if b.BucketName == "" {
		return deltaerr.New(deltaerr.ConfigError, "object bucket baseline: bucketName is required")
	}
	if err := ctx.Err(); err != nil {
		return deltaerr.Wrap(deltaerr.Cancelled, "initialize object bucket baseline", err)
	}

	region := dsn.ResolveRegion(b.Region, "DELTASYNC", "us-east-1")

	client, err := minio.New(b.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(b.AccessKey, b.SecretKey, ""),
		Secure: b.UseSSL,
		Region: region,
	})
	if err != nil {
		return deltaerr.Wrap(deltaerr.ConfigError, "construct minio client", err)
	}
	b.client = client
	b.Region = region

	// Bucket/parent-directory creation is a no-op on object stores; the
	// bucket is expected to already exist.
	return nil
}

func (b *ObjectBucket) Backend() string { return "objectbucket" }

func (b *ObjectBucket) key(client ClientID) string {
	if b.KeyPrefix == "" {
		return path.Join(string(client), "previous-input.ndjson")
	}
	return path.Join(b.KeyPrefix, string(client), "previous-input.ndjson")
}

func (b *ObjectBucket) FetchPrevious(ctx context.Context, client ClientID, limitTo map[string]struct{}) ([]record.FieldSet, error) {
	if b.client == nil {
		return nil, deltaerr.New(deltaerr.NotInitialized, "object bucket baseline not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, deltaerr.Wrap(deltaerr.Cancelled, "fetch previous", err)
	}

	obj, err := b.client.GetObject(ctx, b.BucketName, b.key(client), minio.GetObjectOptions{})
	if err != nil {
		return nil, deltaerr.Wrap(deltaerr.IO, "open baseline object", err)
	}
	defer obj.Close()

	// A missing key surfaces its error lazily on first read/stat with
	// minio-go; probe via Stat so a fresh client reads as an empty
	// baseline rather than an IO error, matching the filesystem backend.
	if _, statErr := obj.Stat(); statErr != nil {
		var errResp minio.ErrorResponse
		if errors.As(statErr, &errResp) && errResp.Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, deltaerr.Wrap(deltaerr.IO, "stat baseline object", statErr)
	}

	all, err := stream.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	return all, nil
}

func (b *ObjectBucket) UpdatePrevious(ctx context.Context, client ClientID, data []record.FieldSet, pkFields []string, failureCount int) (int, error) {
	if b.client == nil {
		return 0, deltaerr.New(deltaerr.NotInitialized, "object bucket baseline not initialized")
	}
	if err := ctx.Err(); err != nil {
		return 0, deltaerr.Wrap(deltaerr.Cancelled, "update previous", err)
	}

	key := b.key(client)

	if len(data) == 0 {
		err := b.client.RemoveObject(ctx, b.BucketName, key, minio.RemoveObjectOptions{})
		if err != nil {
			var errResp minio.ErrorResponse
			if errors.As(err, &errResp) && errResp.Code == "NoSuchKey" {
				return 0, nil
			}
			return 0, deltaerr.Wrap(deltaerr.IO, "delete baseline object", err)
		}
		return 0, nil
	}

	var buf bytes.Buffer
	if err := stream.WriteAll(&buf, data); err != nil {
		return 0, err
	}

	// No native atomic rename on S3-compatible stores: write to a staging
	// key, then emulate moveResource with copy-then-delete so a reader
	// never observes a half-written object at the canonical key.
	stagingKey := key + ".tmp"
	_, err := b.client.PutObject(ctx, b.BucketName, stagingKey, &buf, int64(buf.Len()), minio.PutObjectOptions{ContentType: "application/x-ndjson"})
	if err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "write baseline staging object", err)
	}

	if err := b.moveObject(ctx, stagingKey, key); err != nil {
		return 0, err
	}
	return len(data), nil
}

// moveObject emulates an atomic rename with CopyObject + RemoveObject, the
// object-bucket equivalent of Filesystem's moveResource.
func (b *ObjectBucket) moveObject(ctx context.Context, srcKey, dstKey string) error {
	src := minio.CopySrcOptions{Bucket: b.BucketName, Object: srcKey}
	dst := minio.CopyDestOptions{Bucket: b.BucketName, Object: dstKey}
	if _, err := b.client.CopyObject(ctx, dst, src); err != nil {
		return deltaerr.Wrap(deltaerr.IO, "move baseline object: copy", err)
	}
	if err := b.client.RemoveObject(ctx, b.BucketName, srcKey, minio.RemoveObjectOptions{}); err != nil {
		return deltaerr.Wrap(deltaerr.IO, "move baseline object: remove staging", err)
	}
	return nil
}
