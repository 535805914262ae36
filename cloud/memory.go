package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryConnection implements Connection entirely in memory. It is used
// by tests and for local experimentation; containers must be created
// before writes succeed, which makes it a faithful stand-in for the
// create-and-retry flow of the real providers.
type MemoryConnection struct {
	mu         sync.Mutex
	containers map[string]map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
	public      bool
	metadata    map[string]string
}

// NewMemoryConnection creates an empty MemoryConnection.
func NewMemoryConnection() *MemoryConnection {
	return &MemoryConnection{containers: make(map[string]map[string]memoryObject)}
}

func (c *MemoryConnection) Container(name string) Container {
	return &memoryContainer{conn: c, name: name}
}

func (c *MemoryConnection) CreateContainer(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.containers[name]; !ok {
		c.containers[name] = make(map[string]memoryObject)
	}
	return nil
}

// ObjectBytes returns a stored object's bytes, for test assertions.
func (c *MemoryConnection) ObjectBytes(container, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	objs, ok := c.containers[container]
	if !ok {
		return nil, false
	}
	obj, ok := objs[key]
	return obj.data, ok
}

type memoryContainer struct {
	conn *MemoryConnection
	name string
}

func (b *memoryContainer) Name() string { return b.name }

func (b *memoryContainer) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading object data: %w", err)
	}

	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	objs, ok := b.conn.containers[b.name]
	if !ok {
		return fmt.Errorf("memory container %q: %w", b.name, ErrContainerNotFound)
	}
	objs[key] = memoryObject{
		data:        data,
		contentType: opts.ContentType,
		public:      opts.Public,
		metadata:    opts.Metadata,
	}
	return nil
}

func (b *memoryContainer) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	objs, ok := b.conn.containers[b.name]
	if !ok {
		return nil, fmt.Errorf("memory container %q: %w", b.name, ErrContainerNotFound)
	}
	obj, ok := objs[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s/%s", b.name, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (b *memoryContainer) Exists(ctx context.Context, key string) (bool, error) {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	objs, ok := b.conn.containers[b.name]
	if !ok {
		return false, nil
	}
	_, ok = objs[key]
	return ok, nil
}

func (b *memoryContainer) Delete(ctx context.Context, key string) error {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	if objs, ok := b.conn.containers[b.name]; ok {
		delete(objs, key)
	}
	return nil
}

func (b *memoryContainer) PublicURL(key string) string {
	return fmt.Sprintf("memory://%s/%s", b.name, key)
}

var (
	_ Connection = (*MemoryConnection)(nil)
	_ Container  = (*memoryContainer)(nil)
)
