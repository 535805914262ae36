package cloud

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// mockS3Client implements S3API for testing.
type mockS3Client struct {
	putInput    *s3.PutObjectInput
	putErr      error
	getOutput   *s3.GetObjectOutput
	getErr      error
	deleteInput *s3.DeleteObjectInput
	deleteErr   error
	headErr     error
	createInput *s3.CreateBucketInput
	createErr   error
	createCalls int
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.putInput = params
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getOutput, nil
}

func (m *mockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.deleteInput = params
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.createCalls++
	m.createInput = params
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &s3.CreateBucketOutput{}, nil
}

// mockS3Presigner implements S3Presigner with a canned URL.
type mockS3Presigner struct {
	url     string
	expires time.Duration
}

func (m *mockS3Presigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	m.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: m.url}, nil
}

// apiError is a minimal smithy.APIError for error classification tests.
type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var _ smithy.APIError = (*apiError)(nil)

func TestS3PutSetsACLAndContentType(t *testing.T) {
	client := &mockS3Client{}
	conn := NewS3ConnectionWithClient("us-east-1", client, nil)
	container := conn.Container("bucket")
	ctx := context.Background()

	err := container.Put(ctx, "a/o.png", strings.NewReader("body"), PutOptions{
		ContentType: "image/png",
		Public:      true,
		Metadata:    map[string]string{"origin": "test"},
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got := aws.ToString(client.putInput.Bucket); got != "bucket" {
		t.Errorf("bucket = %q", got)
	}
	if got := aws.ToString(client.putInput.Key); got != "a/o.png" {
		t.Errorf("key = %q", got)
	}
	if got := aws.ToString(client.putInput.ContentType); got != "image/png" {
		t.Errorf("content type = %q", got)
	}
	if client.putInput.ACL != types.ObjectCannedACLPublicRead {
		t.Errorf("ACL = %q, want public-read", client.putInput.ACL)
	}
	if client.putInput.Metadata["origin"] != "test" {
		t.Errorf("metadata = %v", client.putInput.Metadata)
	}

	err = container.Put(ctx, "a/o.png", strings.NewReader("body"), PutOptions{Public: false})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if client.putInput.ACL != types.ObjectCannedACLPrivate {
		t.Errorf("ACL = %q, want private", client.putInput.ACL)
	}
}

func TestS3PutMapsMissingBucket(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"typed NoSuchBucket", &types.NoSuchBucket{}},
		{"api error code", &apiError{code: "NoSuchBucket"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &mockS3Client{putErr: tc.err}
			conn := NewS3ConnectionWithClient("us-east-1", client, nil)

			err := conn.Container("bucket").Put(context.Background(), "k", strings.NewReader("x"), PutOptions{})
			if !errors.Is(err, ErrContainerNotFound) {
				t.Errorf("Put = %v, want ErrContainerNotFound", err)
			}
		})
	}
}

func TestS3PutOtherErrorPassesThrough(t *testing.T) {
	forced := &apiError{code: "AccessDenied"}
	client := &mockS3Client{putErr: forced}
	conn := NewS3ConnectionWithClient("us-east-1", client, nil)

	err := conn.Container("bucket").Put(context.Background(), "k", strings.NewReader("x"), PutOptions{})
	if errors.Is(err, ErrContainerNotFound) {
		t.Errorf("Put = %v, must not classify AccessDenied as missing bucket", err)
	}
	if !errors.Is(err, forced) {
		t.Errorf("Put = %v, want wrapped AccessDenied", err)
	}
}

func TestS3Exists(t *testing.T) {
	ctx := context.Background()

	client := &mockS3Client{}
	conn := NewS3ConnectionWithClient("us-east-1", client, nil)
	ok, err := conn.Container("bucket").Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists = (%t, %v), want (true, nil)", ok, err)
	}

	client.headErr = &apiError{code: "NotFound"}
	ok, err = conn.Container("bucket").Exists(ctx, "k")
	if err != nil || ok {
		t.Errorf("Exists = (%t, %v) on 404, want (false, nil)", ok, err)
	}

	client.headErr = &apiError{code: "AccessDenied"}
	if _, err = conn.Container("bucket").Exists(ctx, "k"); err == nil {
		t.Error("Exists swallowed a non-404 error")
	}
}

func TestS3Get(t *testing.T) {
	client := &mockS3Client{
		getOutput: &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("object body"))},
	}
	conn := NewS3ConnectionWithClient("us-east-1", client, nil)

	body, err := conn.Container("bucket").Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(data) != "object body" {
		t.Errorf("body = %q", data)
	}
}

func TestS3Delete(t *testing.T) {
	client := &mockS3Client{}
	conn := NewS3ConnectionWithClient("us-east-1", client, nil)

	if err := conn.Container("bucket").Delete(context.Background(), "a/o.png"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := aws.ToString(client.deleteInput.Key); got != "a/o.png" {
		t.Errorf("deleted key = %q", got)
	}
}

func TestS3CreateContainerRegionConstraint(t *testing.T) {
	ctx := context.Background()

	client := &mockS3Client{}
	conn := NewS3ConnectionWithClient("us-east-1", client, nil)
	if err := conn.CreateContainer(ctx, "bucket"); err != nil {
		t.Fatalf("CreateContainer failed: %v", err)
	}
	if client.createInput.CreateBucketConfiguration != nil {
		t.Error("us-east-1 CreateBucket must not carry a location constraint")
	}

	client = &mockS3Client{}
	conn = NewS3ConnectionWithClient("eu-west-1", client, nil)
	if err := conn.CreateContainer(ctx, "bucket"); err != nil {
		t.Fatalf("CreateContainer failed: %v", err)
	}
	cfg := client.createInput.CreateBucketConfiguration
	if cfg == nil || cfg.LocationConstraint != types.BucketLocationConstraint("eu-west-1") {
		t.Errorf("location constraint = %+v, want eu-west-1", cfg)
	}
}

func TestS3CreateContainerToleratesOwnedBucket(t *testing.T) {
	client := &mockS3Client{createErr: &types.BucketAlreadyOwnedByYou{}}
	conn := NewS3ConnectionWithClient("us-east-1", client, nil)

	if err := conn.CreateContainer(context.Background(), "bucket"); err != nil {
		t.Errorf("CreateContainer on owned bucket = %v, want nil", err)
	}

	client = &mockS3Client{createErr: &apiError{code: "AccessDenied"}}
	conn = NewS3ConnectionWithClient("us-east-1", client, nil)
	if err := conn.CreateContainer(context.Background(), "bucket"); err == nil {
		t.Error("CreateContainer swallowed a real error")
	}
}

func TestS3PublicURL(t *testing.T) {
	conn := NewS3ConnectionWithClient("us-east-1", &mockS3Client{}, nil)
	if got := conn.Container("bucket").PublicURL("a/o.png"); got != "https://bucket.s3.amazonaws.com/a/o.png" {
		t.Errorf("us-east-1 PublicURL = %q", got)
	}

	conn = NewS3ConnectionWithClient("eu-west-1", &mockS3Client{}, nil)
	if got := conn.Container("bucket").PublicURL("a/o.png"); got != "https://bucket.s3.eu-west-1.amazonaws.com/a/o.png" {
		t.Errorf("regional PublicURL = %q", got)
	}
}

func TestS3SignedURL(t *testing.T) {
	signer := &mockS3Presigner{url: "https://bucket.s3.amazonaws.com/k?X-Amz-Signature=abc"}
	conn := NewS3ConnectionWithClient("us-east-1", &mockS3Client{}, signer)

	container := conn.Container("bucket")
	s, ok := container.(URLSigner)
	if !ok {
		t.Fatal("S3 container does not implement URLSigner")
	}

	u, err := s.SignedURL(context.Background(), "k", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	if u != signer.url {
		t.Errorf("SignedURL = %q", u)
	}
	if signer.expires < 59*time.Minute || signer.expires > 61*time.Minute {
		t.Errorf("presign expiry = %v, want about 1h", signer.expires)
	}
}

func TestS3SignedURLWithoutPresigner(t *testing.T) {
	conn := NewS3ConnectionWithClient("us-east-1", &mockS3Client{}, nil)
	s := conn.Container("bucket").(URLSigner)

	if _, err := s.SignedURL(context.Background(), "k", time.Now().Add(time.Hour)); !errors.Is(err, ErrSignedURLsUnsupported) {
		t.Errorf("SignedURL = %v, want ErrSignedURLsUnsupported", err)
	}
}
