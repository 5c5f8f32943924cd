// Package s3 keeps the user table as one object in an S3 bucket. Writes use
// S3 conditional requests, so the revision check and the upload are a single
// atomic step on the server.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/model"
	"github.com/dtroode/sheetkeeper/internal/sheet"
)

// Options describe the bucket and object holding the table.
type Options struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Bucket       string
	Object       string
}

type s3API interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *awss3.CreateBucketInput, optFns ...func(*awss3.Options)) (*awss3.CreateBucketOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

var _ model.BlobStore = (*Client)(nil)

// Client stores the table as one object whose ETag is the revision.
type Client struct {
	api    s3API
	bucket string
	object string
	logger *logger.Logger
}

// Connect loads AWS configuration and returns a Client. Static keys are used
// when set, the default credential chain otherwise.
func Connect(ctx context.Context, opts Options, logger *logger.Logger) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return NewClientWithAPI(ctx, api, opts.Bucket, opts.Object, logger)
}

// NewClientWithAPI allows injecting a fake API (used in tests).
func NewClientWithAPI(ctx context.Context, api s3API, bucket, object string, logger *logger.Logger) (*Client, error) {
	c := &Client{api: api, bucket: bucket, object: object, logger: logger}

	if err := c.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return c, nil
}

func (c *Client) ensureBucketExists(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	if statusCode(err) != http.StatusNotFound {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if _, err := c.api.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	c.logger.Info("S3 client: bucket created", "bucket", c.bucket)

	return nil
}

// Get downloads the table object.
func (c *Client) Get(ctx context.Context) (model.Blob, error) {
	out, err := c.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.object),
	})
	if err != nil {
		if errorCode(err) == "NoSuchKey" || statusCode(err) == http.StatusNotFound {
			return model.Blob{}, fmt.Errorf("s3://%s/%s: %w", c.bucket, c.object, model.ErrNotFound)
		}
		return model.Blob{}, &model.TransportError{Op: "get object", StatusCode: statusCode(err), Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return model.Blob{}, &model.TransportError{Op: "get object", Err: err}
	}

	return model.Blob{Data: data, Revision: aws.ToString(out.ETag)}, nil
}

// Put uploads data with If-Match on baseRevision, or If-None-Match: * when
// baseRevision is empty so that only the first writer creates the object.
func (c *Client) Put(ctx context.Context, data []byte, baseRevision string) (string, error) {
	in := &awss3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.object),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(sheet.ContentType),
	}
	if baseRevision == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(baseRevision)
	}

	out, err := c.api.PutObject(ctx, in)
	if err != nil {
		switch status := statusCode(err); {
		case status == http.StatusPreconditionFailed, status == http.StatusConflict:
			return "", fmt.Errorf("%w: s3://%s/%s is no longer at %q", model.ErrRevisionConflict, c.bucket, c.object, baseRevision)
		case errorCode(err) == "NoSuchKey", status == http.StatusNotFound:
			return "", fmt.Errorf("%w: s3://%s/%s was removed", model.ErrRevisionConflict, c.bucket, c.object)
		default:
			return "", &model.TransportError{Op: "put object", StatusCode: status, Err: err}
		}
	}

	revision := aws.ToString(out.ETag)
	c.logger.Info("S3 client: table object updated",
		"bucket", c.bucket,
		"object", c.object,
		"etag", revision,
		"size", len(data))

	return revision, nil
}

func statusCode(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
