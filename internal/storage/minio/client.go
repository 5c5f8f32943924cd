// Package minio keeps the user table as a single object in an S3-compatible bucket.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/model"
	"github.com/dtroode/sheetkeeper/internal/sheet"
)

const (
	codeNoSuchKey          = "NoSuchKey"
	codePreconditionFailed = "PreconditionFailed"
)

// Internal adapter interface to enable mocking without a real MinIO server.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// Wrapper to adapt *minio.Client to minioAPI.
type minioClientWrapper struct{ c *minio.Client }

func (w minioClientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}
func (w minioClientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}
func (w minioClientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}
func (w minioClientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := w.c.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}
func (w minioClientWrapper) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return w.c.StatObject(ctx, bucketName, objectName, opts)
}

var _ model.BlobStore = (*Client)(nil)

// Client stores the table as one object. The object's ETag is its revision.
//
// Put compares the current ETag with the base revision before uploading, so a
// writer that read a stale table is rejected; two writers racing inside that
// window are not.
type Client struct {
	api    minioAPI
	bucket string
	object string
	logger *logger.Logger
}

// Options describe how to reach the object store.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Object    string
}

// Connect dials the object store described by opts and returns a Client for the table object.
func Connect(ctx context.Context, opts Options, logger *logger.Logger) (*Client, error) {
	minioClient, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return NewClient(ctx, minioClient, opts.Bucket, opts.Object, logger)
}

// NewClient creates a new MinIO table store using a real *minio.Client instance.
func NewClient(ctx context.Context, client *minio.Client, bucket, object string, logger *logger.Logger) (*Client, error) {
	return NewClientWithAPI(ctx, minioClientWrapper{c: client}, bucket, object, logger)
}

// NewClientWithAPI allows injecting a mockable API (used in tests).
func NewClientWithAPI(ctx context.Context, api minioAPI, bucket, object string, logger *logger.Logger) (*Client, error) {
	c := &Client{
		api:    api,
		bucket: bucket,
		object: object,
		logger: logger,
	}

	err := c.ensureBucketExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return c, nil
}

// ensureBucketExists creates the bucket if it doesn't exist
func (c *Client) ensureBucketExists(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		c.logger.Info("MinIO client: bucket created", "bucket", c.bucket)
	}

	return nil
}

// Get downloads the table object. The download is pinned to the ETag seen by
// the preceding stat so data and revision always belong together.
func (c *Client) Get(ctx context.Context) (model.Blob, error) {
	info, found, err := c.stat(ctx)
	if err != nil {
		return model.Blob{}, err
	}
	if !found {
		return model.Blob{}, fmt.Errorf("%s/%s: %w", c.bucket, c.object, model.ErrNotFound)
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetMatchETag(info.ETag); err != nil {
		return model.Blob{}, fmt.Errorf("failed to set etag condition: %w", err)
	}

	obj, err := c.api.GetObject(ctx, c.bucket, c.object, opts)
	if err != nil {
		return model.Blob{}, c.transportError("get object", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return model.Blob{}, c.transportError("get object", err)
	}

	return model.Blob{Data: data, Revision: info.ETag}, nil
}

// Put uploads data if the object is still at baseRevision; an empty
// baseRevision means the object must not exist yet.
func (c *Client) Put(ctx context.Context, data []byte, baseRevision string) (string, error) {
	info, found, err := c.stat(ctx)
	if err != nil {
		return "", err
	}
	switch {
	case !found && baseRevision != "":
		return "", fmt.Errorf("%w: %s/%s was removed", model.ErrRevisionConflict, c.bucket, c.object)
	case found && info.ETag != baseRevision:
		return "", fmt.Errorf("%w: expected etag %q, object has %q", model.ErrRevisionConflict, baseRevision, info.ETag)
	}

	uploaded, err := c.api.PutObject(ctx, c.bucket, c.object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: sheet.ContentType,
	})
	if err != nil {
		return "", c.transportError("put object", err)
	}

	c.logger.Info("MinIO client: table object updated",
		"bucket", c.bucket,
		"object", c.object,
		"etag", uploaded.ETag,
		"size", len(data))

	return uploaded.ETag, nil
}

func (c *Client) stat(ctx context.Context) (minio.ObjectInfo, bool, error) {
	info, err := c.api.StatObject(ctx, c.bucket, c.object, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == codeNoSuchKey {
			return minio.ObjectInfo{}, false, nil
		}
		return minio.ObjectInfo{}, false, c.transportError("stat object", err)
	}
	return info, true, nil
}

func (c *Client) transportError(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == codePreconditionFailed {
		return fmt.Errorf("%w: %s/%s changed during %s", model.ErrRevisionConflict, c.bucket, c.object, op)
	}
	return &model.TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
}
