package authstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// remoteStore wraps the S3-compatible object store client. Three buckets:
// sessions (auth material), media (outbound attachments), backups
// (reserved).
type remoteStore struct {
	client *minio.Client
	cfg    config.StoreConfig
	log    logger.Logger
}

func newRemoteStore(cfg config.StoreConfig, log logger.Logger) (*remoteStore, error) {
	client, err := minio.New(cfg.Address(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &remoteStore{
		client: client,
		cfg:    cfg,
		log:    log.WithComponent("object-store"),
	}, nil
}

// ensureBuckets creates the three buckets if they do not exist yet.
func (r *remoteStore) ensureBuckets(ctx context.Context) error {
	for _, bucket := range []string{r.cfg.BucketSessions, r.cfg.BucketMedia, r.cfg.BucketBackups} {
		exists, err := r.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := r.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		r.log.Info("bucket created", logger.String("bucket", bucket))
	}
	return nil
}

// upload stores one object in the given bucket.
func (r *remoteStore) upload(ctx context.Context, bucket, objectName string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := r.client.PutObject(ctx, bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, objectName, err)
	}
	return nil
}

// download fetches one object's content.
func (r *remoteStore) download(ctx context.Context, bucket, objectName string) ([]byte, error) {
	object, err := r.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, objectName, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, objectName, err)
	}
	return data, nil
}

// list returns the object names under a prefix.
func (r *remoteStore) list(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	for object := range r.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", bucket, prefix, object.Err)
		}
		names = append(names, object.Key)
	}
	return names, nil
}

// remove deletes one object.
func (r *remoteStore) remove(ctx context.Context, bucket, objectName string) error {
	if err := r.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", bucket, objectName, err)
	}
	return nil
}

// presignedGet returns a presigned GET URL for the object.
func (r *remoteStore) presignedGet(ctx context.Context, bucket, objectName string, expiry time.Duration) (string, error) {
	u, err := r.client.PresignedGetObject(ctx, bucket, objectName, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s/%s: %w", bucket, objectName, err)
	}
	return u.String(), nil
}

// healthy probes the store with a bucket-existence check.
func (r *remoteStore) healthy(ctx context.Context) bool {
	_, err := r.client.BucketExists(ctx, r.cfg.BucketSessions)
	return err == nil
}
