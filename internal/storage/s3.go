package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	pipelineerrors "github.com/eventstar/eventstar/internal/errors"
)

// S3Config holds configuration for the S3 snapshot backend.
type S3Config struct {
	// Region is the AWS region for the S3 bucket.
	Region string
	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// PartSize is the snapshot size above which uploads go multipart.
	PartSize int64
	// Retries is the number of retries after a failed request.
	Retries int
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:   "us-east-1",
		PartSize: 16 * 1024 * 1024,
		Retries:  3,
		Backoff:  100 * time.Millisecond,
	}
}

// S3Storage keeps snapshots in an S3 bucket. Object paths are used as keys
// unchanged.
type S3Storage struct {
	client *s3.Client
	bucket string
	cfg    S3Config
}

// NewS3Storage creates an S3 backend using the default AWS credential chain.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket, cfg), nil
}

// NewS3StorageWithClient creates an S3 backend on a pre-configured client.
// Zero part size and backoff take their defaults.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	def := DefaultS3Config()
	if cfg.PartSize <= 0 {
		cfg.PartSize = def.PartSize
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	cfg.Retries = max(cfg.Retries, 0)
	return &S3Storage{client: client, bucket: bucket, cfg: cfg}
}

// Upload stores a local snapshot file under objectPath. Files larger than
// the part size go through a multipart upload.
func (s *S3Storage) Upload(ctx context.Context, localPath, objectPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return uploadError(objectPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return uploadError(objectPath, err)
	}

	err = s.retry(ctx, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if info.Size() > s.cfg.PartSize {
			return s.putMultipart(ctx, f, info.Size(), objectPath)
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectPath),
			Body:          f,
			ContentLength: aws.Int64(info.Size()),
		})
		return err
	})
	if err != nil {
		return uploadError(objectPath, err)
	}
	return nil
}

// putMultipart uploads f in parts of PartSize bytes. A failed upload is
// aborted so no parts are left behind in the bucket.
func (s *S3Storage) putMultipart(ctx context.Context, f *os.File, size int64, objectPath string) error {
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		return err
	}
	uploadID := created.UploadId

	var parts []s3types.CompletedPart
	for n, off := int32(1), int64(0); off < size; n, off = n+1, off+s.cfg.PartSize {
		length := min(s.cfg.PartSize, size-off)
		out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectPath),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(n),
			Body:          io.NewSectionReader(f, off, length),
			ContentLength: aws.Int64(length),
		})
		if err != nil {
			s.abort(ctx, objectPath, uploadID)
			return err
		}
		parts = append(parts, s3types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(n)})
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(objectPath),
		UploadId:        uploadID,
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		s.abort(ctx, objectPath, uploadID)
		return err
	}
	return nil
}

func (s *S3Storage) abort(ctx context.Context, objectPath string, uploadID *string) {
	_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(objectPath),
		UploadId: uploadID,
	})
}

// Download copies an object to localPath.
func (s *S3Storage) Download(ctx context.Context, objectPath, localPath string) error {
	var body io.ReadCloser
	err := s.retry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if notFound(err) {
			return ErrObjectNotFound
		}
		if err != nil {
			return err
		}
		body = out.Body
		return nil
	})
	if errors.Is(err, ErrObjectNotFound) {
		return ErrObjectNotFound
	}
	if err != nil {
		return downloadError(objectPath, err)
	}
	defer body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return downloadError(objectPath, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return downloadError(objectPath, err)
	}
	if err := f.Close(); err != nil {
		return downloadError(objectPath, err)
	}
	return nil
}

// Delete removes an object. S3 treats a missing key as deleted.
func (s *S3Storage) Delete(ctx context.Context, objectPath string) error {
	err := s.retry(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		return err
	})
	if err != nil {
		return pipelineerrors.NewStorageError(pipelineerrors.CodeDeleteFailed,
			fmt.Sprintf("delete %s failed", objectPath), err)
	}
	return nil
}

// Exists reports whether an object exists.
func (s *S3Storage) Exists(ctx context.Context, objectPath string) (bool, error) {
	var exists bool
	err := s.retry(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		switch {
		case err == nil:
			exists = true
		case notFound(err):
			exists = false
		default:
			return err
		}
		return nil
	})
	return exists, err
}

// ListObjects returns all object keys under prefix.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, pipelineerrors.NewStorageError(pipelineerrors.CodeListFailed,
				fmt.Sprintf("list %s failed", prefix), err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// notFound reports whether err means the key does not exist. HEAD responses
// carry no error body, so the status code is checked as well.
func notFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *s3types.NoSuchKey
	var missing *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &missing) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}

// retry runs op until it succeeds, the retries are spent or ctx is done.
// A missing object is final.
func (s *S3Storage) retry(ctx context.Context, op func() error) error {
	delay := s.cfg.Backoff
	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = op()
		if err == nil || errors.Is(err, ErrObjectNotFound) || attempt >= s.cfg.Retries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
