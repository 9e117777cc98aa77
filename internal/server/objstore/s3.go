// Package objstore wraps the S3-compatible object storage backend. Put and
// Delete run under a bounded retry policy; presigned URL generation is local
// signing and never contacts the backend.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sethvargo/go-retry"

	"github.com/dkarpov/filevault/internal/common"
	"github.com/dkarpov/filevault/internal/logging"
)

// s3API is the subset of *s3.Client used here; a seam for fault-injection
// tests.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// presignAPI is the subset of *s3.PresignClient used here.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4PresignedRequest, error)
}

// Options configures the client. CallTimeout bounds each individual remote
// attempt; the retry policy is on top of it.
type Options struct {
	Bucket      string
	Region      string
	Endpoint    string
	AccessKey   string
	SecretKey   string
	CallTimeout time.Duration
	MaxAttempts uint64
	BaseDelay   time.Duration
}

// Client talks to one bucket of the object storage backend.
type Client struct {
	api     s3API
	presign presignAPI
	opts    Options
	logger  logging.Logger
}

// NewClient builds an S3 client against the configured endpoint with static
// credentials (MinIO-style deployments) or the default chain when no access
// key is set.
func NewClient(ctx context.Context, opts Options, logger logging.Logger) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		api:     client,
		presign: &presignAdapter{pc: s3.NewPresignClient(client)},
		opts:    opts,
		logger:  logger.With("component", "objstore"),
	}, nil
}

// Put stores body under key, overwriting any previous object. Transient
// backend failures are retried; after the budget is exhausted the error is
// classified as common.ErrStorageUnavailable.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string) error {
	err := c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(c.opts.Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(body),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(body))),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", common.ErrStorageUnavailable, key, err)
	}
	return nil
}

// Delete removes the object under key. Deleting an absent key is a no-op on
// the backend side, so Delete is idempotent.
func (c *Client) Delete(ctx context.Context, key string) error {
	err := c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.opts.Bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", common.ErrStorageUnavailable, key, err)
	}
	return nil
}

// Exists reports whether key is present. The check is advisory: not-found is
// false, and any other failure is logged and also treated as false.
func (c *Client) Exists(ctx context.Context, key string) bool {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if !errors.As(err, &notFound) {
			c.logger.Error(ctx, "object existence check failed", "key", key, "error", err.Error())
		}
		return false
	}
	return true
}

// PresignGet returns a time-limited download URL for key. This is local
// cryptographic computation; no retry, no backend round-trip.
func (c *Client) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.opts.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presign error: %w", err)
	}
	return req.URL, nil
}

// withRetry runs fn with a per-attempt timeout under exponential backoff.
// Only transient faults are retried; see classify.
func (c *Client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := c.opts.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	base := c.opts.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := c.callContext(ctx)
		defer cancel()

		if err := fn(attemptCtx); err != nil {
			return c.classify(ctx, err)
		}
		return nil
	})
}

// classify decides retryability: caller cancellation and client faults
// (authorization, not-found, malformed request) are permanent; server faults
// and transport errors (including per-attempt timeouts) are transient.
func (c *Client) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return err
	}
	return retry.RetryableError(err)
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

// v4PresignedRequest mirrors the field of v4.PresignedHTTPRequest we consume.
type v4PresignedRequest struct {
	URL string
}

// presignAdapter narrows *s3.PresignClient to presignAPI.
type presignAdapter struct {
	pc *s3.PresignClient
}

func (a *presignAdapter) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4PresignedRequest, error) {
	req, err := a.pc.PresignGetObject(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}
	return &v4PresignedRequest{URL: req.URL}, nil
}
