package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/stitchkb/stitchkb/pkg/errors"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Bucket is a Bucket backed by any S3-compatible object store.
type S3Bucket struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

var _ Bucket = (*S3Bucket)(nil)

// NewS3Bucket validates the configuration and builds the client. The bucket
// itself is created lazily on first use.
func NewS3Bucket(cfg S3Config) (*S3Bucket, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New(errors.ErrCodeStorage, "s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.New(errors.ErrCodeStorage, "s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New(errors.ErrCodeStorage, "s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "initializing s3 client")
	}

	return &S3Bucket{
		client: client,
		bucket: bucket,
		region: region,
	}, nil
}

func (s *S3Bucket) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = errors.Wrap(errors.ErrCodeStorage, err, "checking bucket %q", s.bucket)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			s.initErr = errors.Wrap(errors.ErrCodeStorage, err, "creating bucket %q", s.bucket)
		}
	})
	return s.initErr
}

// Get implements Bucket.
func (s *S3Bucket) Get(ctx context.Context, path string) ([]byte, error) {
	key := objectKey(path)
	if key == "" {
		return nil, errors.New(errors.ErrCodeStorage, "object path is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "fetching %q", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "object %q", key)
		}
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "reading %q", key)
	}
	return data, nil
}

// Put implements Bucket.
func (s *S3Bucket) Put(ctx context.Context, path string, content []byte) error {
	key := objectKey(path)
	if key == "" {
		return errors.New(errors.ErrCodeStorage, "object path is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	if content == nil {
		content = []byte{}
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "writing %q", key)
	}
	return nil
}

func objectKey(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}
