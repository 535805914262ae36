package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalConnection implements Connection using the local filesystem.
// Containers are directories under a configurable root; objects are files
// within them. Useful for development and as a real integration target in
// tests.
type LocalConnection struct {
	// RootDir is the base directory under which all container and object
	// data is stored.
	RootDir string
}

// NewLocalConnection creates a LocalConnection rooted at the given
// directory. It creates the root and the temp directory used for atomic
// writes if they do not exist.
func NewLocalConnection(rootDir string) (*LocalConnection, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("local provider needs a local_root credential")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root directory %q: %w", rootDir, err)
	}
	if err := os.MkdirAll(filepath.Join(rootDir, ".tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	return &LocalConnection{RootDir: rootDir}, nil
}

func (c *LocalConnection) Container(name string) Container {
	return &localContainer{conn: c, name: name}
}

func (c *LocalConnection) CreateContainer(ctx context.Context, name string) error {
	dir := filepath.Join(c.RootDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating container directory %q: %w", dir, err)
	}
	return nil
}

type localContainer struct {
	conn *LocalConnection
	name string
}

func (b *localContainer) Name() string { return b.name }

func (b *localContainer) objectPath(key string) string {
	return filepath.Join(b.conn.RootDir, b.name, key)
}

// Put writes the object using the atomic write pattern: write to a temp
// file, fsync, rename. The container directory must already exist;
// a missing container surfaces as ErrContainerNotFound so the caller can
// create it and retry.
func (b *localContainer) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	containerDir := filepath.Join(b.conn.RootDir, b.name)
	if _, err := os.Stat(containerDir); os.IsNotExist(err) {
		return fmt.Errorf("container directory %q: %w", b.name, ErrContainerNotFound)
	}

	objPath := b.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %q: %w", key, err)
	}

	tmpFile, err := os.CreateTemp(filepath.Join(b.conn.RootDir, ".tmp"), "put-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := io.Copy(tmpFile, body); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing object data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, objPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to final path: %w", err)
	}
	return nil
}

func (b *localContainer) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(b.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s/%s", b.name, key)
		}
		return nil, fmt.Errorf("opening object file %q: %w", key, err)
	}
	return f, nil
}

func (b *localContainer) Exists(ctx context.Context, key string) (bool, error) {
	info, err := os.Stat(b.objectPath(key))
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking object existence %q: %w", key, err)
}

// Delete removes the object file. Idempotent: deleting a non-existent
// file is not an error. Empty parent directories are cleaned up to the
// container root.
func (b *localContainer) Delete(ctx context.Context, key string) error {
	objPath := b.objectPath(key)
	if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing object file %q: %w", key, err)
	}

	containerDir := filepath.Join(b.conn.RootDir, b.name)
	for dir := filepath.Dir(objPath); dir != containerDir && dir != b.conn.RootDir; dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			// Directory not empty or other error: stop climbing.
			break
		}
	}
	return nil
}

// PublicURL returns a file:// URL for the object. Mostly useful for
// development; real deployments front the root directory with a web
// server and a custom host template.
func (b *localContainer) PublicURL(key string) string {
	return "file://" + b.objectPath(key)
}

// localContainer deliberately does not implement URLSigner; expiring URLs
// fall back to the public URL.
var (
	_ Connection = (*LocalConnection)(nil)
	_ Container  = (*localContainer)(nil)
)
