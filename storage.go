// Package cargohold adapts a file-attachment abstraction to cloud object
// storage. The hosting framework owns the attachment model (styles, path
// templates, lifecycle) and enqueues work here: pending uploads as
// (style, file) pairs and pending deletions as storage keys. cargohold
// resolves credentials, lazily binds the target container, flushes the
// queues against the storage provider, computes public and expiring URLs
// (including CDN host sharding), and copies remote objects to local paths.
//
// A Storage instance is owned by exactly one attachment and is not safe
// for concurrent use: credentials, the connection, and the container
// reference are memoized without synchronization.
package cargohold

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/cargohold/cargohold/cloud"
	"github.com/cargohold/cargohold/credentials"
)

// Attachment is the slice of the framework's attachment object cargohold
// consumes: the already-interpolated storage key for each style.
type Attachment interface {
	// Path returns the storage key for the given style. An unknown style
	// yields an empty string.
	Path(style string) string
}

// UploadFile is a pending upload's file handle. It must be seekable so a
// failed write can be retried and the handle rewound after the flush.
type UploadFile interface {
	io.ReadSeeker
	// ContentType returns the MIME type to store with the object.
	ContentType() string
}

// Options is the configuration surface consumed by Storage.
type Options struct {
	// Credentials is the storage credential source (mapping, file path,
	// open reader, or callback).
	Credentials credentials.Source

	// Environment selects the credential sub-mapping when the raw
	// credentials are keyed by environment name.
	Environment string

	// Directory names the target container, literally or via callback.
	Directory StringValue

	// Host optionally overrides URL composition. A literal host may embed
	// the %d shard token, replaced by a stable hash of the object path.
	Host StringValue

	// Public controls object visibility: a global flag or a per-style
	// mapping. Unset means public.
	Public PublicValue

	// ExtraUploadFields is merged into every upload as provider metadata.
	ExtraUploadFields FieldsValue

	// AfterFlushWrites runs after a successful FlushWrites, letting the
	// framework discard its temporary local files.
	AfterFlushWrites func()

	// Connection overrides provider dialing with a pre-built connection.
	// Tests and the CLI use this; when nil the connection is dialed from
	// the resolved credentials.
	Connection cloud.Connection
}

type writeEntry struct {
	style string
	file  UploadFile
}

// Storage binds one attachment to cloud object storage.
type Storage struct {
	att  Attachment
	opts Options

	// Memoized lazy state. Single-owner access only.
	creds     credentials.Map
	conn      cloud.Connection
	container cloud.Container

	queuedWrites  []writeEntry
	queuedDeletes []string
}

// New creates a Storage for the given attachment.
func New(att Attachment, opts Options) *Storage {
	return &Storage{att: att, opts: opts}
}

// EnqueueWrite adds a pending upload for the given style.
func (s *Storage) EnqueueWrite(style string, file UploadFile) {
	s.queuedWrites = append(s.queuedWrites, writeEntry{style: style, file: file})
}

// EnqueueDelete adds a storage key to the pending deletion queue.
func (s *Storage) EnqueueDelete(key string) {
	s.queuedDeletes = append(s.queuedDeletes, key)
}

// Credentials resolves and memoizes the credential mapping.
func (s *Storage) Credentials() (credentials.Map, error) {
	if s.creds == nil {
		m, err := credentials.Resolve(s.opts.Credentials, s.opts.Environment)
		if err != nil {
			return nil, err
		}
		s.creds = m
	}
	return s.creds, nil
}

// scheme returns the URL scheme from the credentials, defaulting to https.
func (s *Storage) scheme() string {
	creds, err := s.Credentials()
	if err != nil {
		return "https"
	}
	if sch := creds.String("scheme"); sch != "" {
		return sch
	}
	return "https"
}

// connection returns the storage connection, dialing it on first use.
func (s *Storage) connection(ctx context.Context) (cloud.Connection, error) {
	if s.conn == nil {
		if s.opts.Connection != nil {
			s.conn = s.opts.Connection
		} else {
			creds, err := s.Credentials()
			if err != nil {
				return nil, err
			}
			conn, err := cloud.Dial(ctx, creds)
			if err != nil {
				return nil, err
			}
			s.conn = conn
		}
	}
	return s.conn, nil
}

// directoryName resolves the configured container name.
func (s *Storage) directoryName() string {
	return s.opts.Directory.Resolve(s.att)
}

// Container returns the container handle, resolved lazily. The handle is
// by reference: remote existence is only forced when a write fails with a
// container-missing error.
func (s *Storage) Container(ctx context.Context) (cloud.Container, error) {
	if s.container == nil {
		conn, err := s.connection(ctx)
		if err != nil {
			return nil, err
		}
		s.container = conn.Container(s.directoryName())
	}
	return s.container, nil
}

// Exists reports whether the object for the given style is present
// remotely. A style with no path is never present.
func (s *Storage) Exists(ctx context.Context, style string) (bool, error) {
	key := s.att.Path(style)
	if key == "" {
		return false, nil
	}
	container, err := s.Container(ctx)
	if err != nil {
		return false, err
	}
	return container.Exists(ctx, key)
}

// ExtraUploadFields resolves the configured extra upload fields.
func (s *Storage) ExtraUploadFields() map[string]string {
	return s.opts.ExtraUploadFields.Resolve(s.att)
}

// localUpload adapts an *os.File for the write queue.
type localUpload struct {
	*os.File
	contentType string
}

func (f *localUpload) ContentType() string { return f.contentType }

// OpenUpload opens path as an UploadFile, deriving the content type from
// the file extension. Unknown extensions fall back to
// application/octet-stream.
func OpenUpload(path string) (UploadFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening upload %q: %w", path, err)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &localUpload{File: f, contentType: ct}, nil
}
