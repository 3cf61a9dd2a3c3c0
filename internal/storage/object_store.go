// Package storage wraps the S3-compatible object store holding attachments
// and certificate files. The workflow core only ever sees metadata tuples;
// bytes move between the client and the store directly via presigned URLs.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object-store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectStore issues presigned upload and download URLs against one bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

// Upload is a presigned upload slot: the client PUTs the bytes to URL and the
// metadata records Path as the storage key.
type Upload struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// PresignUpload allocates a storage key under prefix and returns a presigned
// PUT URL valid for 15 minutes.
func (s *ObjectStore) PresignUpload(ctx context.Context, prefix, filename string) (*Upload, error) {
	path := fmt.Sprintf("%s/%s/%s", prefix, uuid.NewString(), filename)

	u, err := s.client.PresignedPutObject(ctx, s.bucket, path, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return &Upload{Path: path, URL: u.String()}, nil
}

// PresignDownload returns a presigned GET URL for a stored object, valid for
// one hour.
func (s *ObjectStore) PresignDownload(ctx context.Context, path string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, time.Hour, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return u.String(), nil
}
