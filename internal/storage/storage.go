// Package storage provides the object storage backends that hold stage
// snapshots: the local filesystem for development and S3 for shared runs.
package storage

import (
	"context"
	"fmt"

	pipelineerrors "github.com/eventstar/eventstar/internal/errors"
)

// Sentinel errors for storage operations. They match with errors.Is by
// category and code, so wrapped variants carrying a cause still match.
var (
	ErrObjectNotFound = pipelineerrors.New(pipelineerrors.ErrCategoryStorage, pipelineerrors.CodeObjectNotFound, "object not found")
	ErrUploadFailed   = pipelineerrors.New(pipelineerrors.ErrCategoryStorage, pipelineerrors.CodeUploadFailed, "upload failed")
	ErrDownloadFailed = pipelineerrors.New(pipelineerrors.ErrCategoryStorage, pipelineerrors.CodeDownloadFailed, "download failed")
)

// ObjectStorage abstracts the object store snapshots are kept in.
type ObjectStorage interface {
	// Upload copies a local file to objectPath, replacing any existing object.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to localPath. Returns ErrObjectNotFound
	// when the object does not exist.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under prefix, slash-separated.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Backend types accepted by Open.
const (
	TypeLocal = "local"
	TypeS3    = "s3"
)

// Options selects and configures a backend.
type Options struct {
	// Type is TypeLocal or TypeS3
	Type string

	// Path is the base directory of the local backend
	Path string

	Bucket string
	S3     S3Config
}

// Open creates the backend described by opts.
func Open(ctx context.Context, opts Options) (ObjectStorage, error) {
	switch opts.Type {
	case TypeLocal, "":
		return NewLocalStorage(opts.Path)
	case TypeS3:
		if opts.Bucket == "" {
			return nil, fmt.Errorf("storage: s3 backend requires a bucket")
		}
		return NewS3Storage(ctx, opts.Bucket, opts.S3)
	default:
		return nil, fmt.Errorf("storage: unknown backend type %q", opts.Type)
	}
}

func uploadError(objectPath string, cause error) error {
	return pipelineerrors.NewStorageError(pipelineerrors.CodeUploadFailed,
		fmt.Sprintf("upload %s failed", objectPath), cause)
}

func downloadError(objectPath string, cause error) error {
	return pipelineerrors.NewStorageError(pipelineerrors.CodeDownloadFailed,
		fmt.Sprintf("download %s failed", objectPath), cause)
}
