// Package cloud defines the interface and implementations for cargohold's
// object storage layer. A Connection is dialed from a resolved credential
// mapping and hands out Container references; Containers perform the
// per-object network calls.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cargohold/cargohold/credentials"
)

// ErrContainerNotFound is the sentinel all providers map their
// container-missing failures onto. Callers use it to decide whether a
// failed write can be retried after creating the container.
var ErrContainerNotFound = errors.New("container not found")

// ErrSignedURLsUnsupported is returned by SignedURL when the connection
// lacks the material to sign URLs (e.g. Azure without a shared key).
var ErrSignedURLsUnsupported = errors.New("signed URLs not supported by this connection")

// PutOptions carries per-upload settings.
type PutOptions struct {
	// ContentType is the MIME type stored with the object.
	ContentType string
	// Public marks the object world-readable where the provider supports
	// per-object ACLs.
	Public bool
	// Metadata holds extra fields attached to the upload (custom headers
	// or provider metadata).
	Metadata map[string]string
}

// Connection is a live link to a storage provider.
type Connection interface {
	// Container returns a handle by reference. The remote container is not
	// checked for existence; a missing container surfaces as
	// ErrContainerNotFound on the first write against it.
	Container(name string) Container

	// CreateContainer provisions the container remotely. Creating a
	// container that already exists is not an error.
	CreateContainer(ctx context.Context, name string) error
}

// Container performs object operations within one remote container.
type Container interface {
	// Name returns the container name.
	Name() string

	// Put writes the object at key. A missing container is reported as an
	// error wrapping ErrContainerNotFound.
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error

	// Get returns the object body. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether the object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// PublicURL computes the provider's canonical unauthenticated URL for
	// the object. No network call is made.
	PublicURL(key string) string
}

// URLSigner is the optional capability for time-limited URLs. Containers
// that can mint signed URLs implement it; callers discover the capability
// with a type assertion and fall back to PublicURL otherwise.
type URLSigner interface {
	SignedURL(ctx context.Context, key string, expires time.Time) (string, error)
}

// Dial builds a Connection for the provider named in the credential
// mapping. Recognized providers: aws, google, azure, local, memory.
func Dial(ctx context.Context, creds credentials.Map) (Connection, error) {
	provider := strings.ToLower(creds.String("provider"))
	switch provider {
	case "aws", "s3":
		return DialS3(ctx, creds)
	case "google", "gcs", "gcp":
		return DialGCS(ctx, creds)
	case "azure", "azurerm":
		return DialAzure(ctx, creds)
	case "local":
		return NewLocalConnection(creds.String("local_root"))
	case "memory":
		return NewMemoryConnection(), nil
	case "":
		return nil, errors.New("credentials missing provider")
	default:
		return nil, fmt.Errorf("unknown storage provider %q", provider)
	}
}
