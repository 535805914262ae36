// Google Cloud Storage provider.
//
// Credentials come from the mapping when present (google_json_key_path or
// google_json_key_string) and fall back to Application Default Credentials
// otherwise. Expiring URLs use V4 signing, which requires a service
// account key or an environment where the client can sign.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cargohold/cargohold/credentials"
)

// GCSAPI defines the subset of the GCS client interface the provider
// uses. This allows mocking in tests.
type GCSAPI interface {
	// NewWriter returns a writer for the given GCS object.
	NewWriter(ctx context.Context, bucket, object string, opts PutOptions) GCSWriter
	// NewReader returns a reader for the given GCS object.
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	// Delete deletes the given GCS object.
	Delete(ctx context.Context, bucket, object string) error
	// Exists reports whether the given GCS object exists.
	Exists(ctx context.Context, bucket, object string) (bool, error)
	// CreateBucket provisions the bucket in the configured project.
	CreateBucket(ctx context.Context, bucket string) error
	// SignedURL mints a V4 signed GET URL for the object.
	SignedURL(bucket, object string, expires time.Time) (string, error)
}

// GCSWriter is a writer interface for writing to GCS objects.
type GCSWriter interface {
	io.WriteCloser
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client  *gcs.Client
	project string
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string, opts PutOptions) GCSWriter {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = opts.ContentType
	if len(opts.Metadata) > 0 {
		w.Metadata = opts.Metadata
	}
	if opts.Public {
		w.PredefinedACL = "publicRead"
	}
	return w
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	err := c.client.Bucket(bucket).Object(object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (c *realGCSClient) Exists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *realGCSClient) CreateBucket(ctx context.Context, bucket string) error {
	err := c.client.Bucket(bucket).Create(ctx, c.project, nil)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 409 {
		// Bucket already exists.
		return nil
	}
	return err
}

func (c *realGCSClient) SignedURL(bucket, object string, expires time.Time) (string, error) {
	return c.client.Bucket(bucket).SignedURL(object, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: expires,
		Scheme:  gcs.SigningSchemeV4,
	})
}

// GCSConnection is a Connection backed by Google Cloud Storage.
type GCSConnection struct {
	client GCSAPI
}

// DialGCS builds a GCSConnection from the credential mapping.
func DialGCS(ctx context.Context, creds credentials.Map) (*GCSConnection, error) {
	var opts []option.ClientOption
	if path := creds.String("google_json_key_path"); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	} else if key := creds.String("google_json_key_string"); key != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(key)))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	return &GCSConnection{client: &realGCSClient{
		client:  client,
		project: creds.String("google_project"),
	}}, nil
}

// NewGCSConnectionWithClient creates a GCSConnection with a pre-configured
// client. This is primarily used for testing with mocks.
func NewGCSConnectionWithClient(client GCSAPI) *GCSConnection {
	return &GCSConnection{client: client}
}

func (c *GCSConnection) Container(name string) Container {
	return &gcsContainer{conn: c, name: name}
}

func (c *GCSConnection) CreateContainer(ctx context.Context, name string) error {
	if err := c.client.CreateBucket(ctx, name); err != nil {
		return fmt.Errorf("creating GCS bucket %q: %w", name, err)
	}
	return nil
}

type gcsContainer struct {
	conn *GCSConnection
	name string
}

func (b *gcsContainer) Name() string { return b.name }

func (b *gcsContainer) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	w := b.conn.client.NewWriter(ctx, b.name, key, opts)
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		if isGCSBucketMissing(err) {
			return fmt.Errorf("uploading to GCS bucket %q: %w", b.name, ErrContainerNotFound)
		}
		return fmt.Errorf("uploading to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if isGCSBucketMissing(err) {
			return fmt.Errorf("uploading to GCS bucket %q: %w", b.name, ErrContainerNotFound)
		}
		return fmt.Errorf("finalizing GCS upload: %w", err)
	}
	return nil
}

func (b *gcsContainer) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.conn.client.NewReader(ctx, b.name, key)
	if err != nil {
		return nil, fmt.Errorf("getting object from GCS: %w", err)
	}
	return r, nil
}

func (b *gcsContainer) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := b.conn.client.Exists(ctx, b.name, key)
	if err != nil {
		return false, fmt.Errorf("checking object existence in GCS: %w", err)
	}
	return ok, nil
}

func (b *gcsContainer) Delete(ctx context.Context, key string) error {
	if err := b.conn.client.Delete(ctx, b.name, key); err != nil {
		return fmt.Errorf("deleting object from GCS: %w", err)
	}
	return nil
}

func (b *gcsContainer) PublicURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.name, key)
}

func (b *gcsContainer) SignedURL(ctx context.Context, key string, expires time.Time) (string, error) {
	url, err := b.conn.client.SignedURL(b.name, key, expires)
	if err != nil {
		return "", fmt.Errorf("signing GCS URL: %w", err)
	}
	return url, nil
}

// isGCSBucketMissing checks whether err reports a missing bucket.
func isGCSBucketMissing(err error) bool {
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}

var (
	_ Connection = (*GCSConnection)(nil)
	_ URLSigner  = (*gcsContainer)(nil)
)
