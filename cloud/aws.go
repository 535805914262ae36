// Amazon S3 provider.
//
// Credentials are taken from the resolved mapping when present
// (aws_access_key_id / aws_secret_access_key) and fall back to the
// standard AWS credential chain otherwise. Custom endpoints (R2, MinIO)
// and path-style addressing are supported via the endpoint and path_style
// credential keys.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/cargohold/cargohold/credentials"
)

// S3API defines the subset of the AWS S3 client interface the provider
// uses. This allows mocking in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Presigner is the presigning subset of the S3 client, split out so
// tests can supply a canned implementation.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Connection is a Connection backed by Amazon S3 or an S3-compatible
// endpoint.
type S3Connection struct {
	// Region is the bucket region, used for public URL composition.
	Region string
	client S3API
	signer S3Presigner
}

// DialS3 builds an S3Connection from the credential mapping.
func DialS3(ctx context.Context, creds credentials.Map) (*S3Connection, error) {
	region := creds.String("region")
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if id, secret := creds.String("aws_access_key_id"), creds.String("aws_secret_access_key"); id != "" && secret != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(id, secret, creds.String("aws_session_token")),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint := creds.String("endpoint"); endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if creds.Bool("path_style") {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3Opts...)
	return &S3Connection{
		Region: region,
		client: client,
		signer: s3.NewPresignClient(client),
	}, nil
}

// NewS3ConnectionWithClient creates an S3Connection with pre-configured
// clients. This is primarily used for testing with mocks.
func NewS3ConnectionWithClient(region string, client S3API, signer S3Presigner) *S3Connection {
	return &S3Connection{Region: region, client: client, signer: signer}
}

func (c *S3Connection) Container(name string) Container {
	return &s3Container{conn: c, name: name}
}

func (c *S3Connection) CreateContainer(ctx context.Context, name string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	// us-east-1 is the one region that must not carry a location constraint.
	if c.Region != "" && c.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.Region),
		}
	}
	_, err := c.client.CreateBucket(ctx, input)
	if err != nil && !isS3BucketOwned(err) {
		return fmt.Errorf("creating S3 bucket %q: %w", name, err)
	}
	return nil
}

type s3Container struct {
	conn *S3Connection
	name string
}

func (b *s3Container) Name() string { return b.name }

func (b *s3Container) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
		Body:   body,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.Public {
		input.ACL = types.ObjectCannedACLPublicRead
	} else {
		input.ACL = types.ObjectCannedACLPrivate
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	if _, err := b.conn.client.PutObject(ctx, input); err != nil {
		if isS3BucketMissing(err) {
			return fmt.Errorf("uploading to S3 bucket %q: %w", b.name, ErrContainerNotFound)
		}
		return fmt.Errorf("uploading to S3: %w", err)
	}
	return nil
}

func (b *s3Container) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := b.conn.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	return resp.Body, nil
}

func (b *s3Container) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.conn.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking object existence in S3: %w", err)
	}
	return true, nil
}

func (b *s3Container) Delete(ctx context.Context, key string) error {
	_, err := b.conn.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting object from S3: %w", err)
	}
	return nil
}

// PublicURL composes the virtual-hosted URL for the object. us-east-1
// keeps the legacy global endpoint.
func (b *s3Container) PublicURL(key string) string {
	if b.conn.Region == "" || b.conn.Region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", b.name, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.name, b.conn.Region, key)
}

// SignedURL mints a presigned GET URL for the object.
func (b *s3Container) SignedURL(ctx context.Context, key string, expires time.Time) (string, error) {
	if b.conn.signer == nil {
		return "", ErrSignedURLsUnsupported
	}
	req, err := b.conn.signer.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = time.Until(expires)
	})
	if err != nil {
		return "", fmt.Errorf("presigning S3 URL: %w", err)
	}
	return req.URL, nil
}

// isS3BucketMissing checks whether err reports a missing bucket.
func isS3BucketMissing(err error) bool {
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket"
}

// isS3NotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" || code == "NoSuchBucket" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}

// isS3BucketOwned reports the already-exists conditions CreateBucket may
// return when the bucket is usable as-is.
func isS3BucketOwned(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "BucketAlreadyOwnedByYou" || strings.Contains(code, "BucketAlreadyExists")
	}
	return false
}

var (
	_ Connection = (*S3Connection)(nil)
	_ URLSigner  = (*s3Container)(nil)
)
