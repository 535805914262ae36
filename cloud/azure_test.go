package cloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// mockAzureClient implements AzureBlobAPI for testing.
type mockAzureClient struct {
	blobs map[string][]byte
	puts  map[string]PutOptions

	uploadErr   error
	deleteErr   error
	createErr   error
	createCalls int
	sasURL      string
	sasErr      error
}

func newMockAzureClient() *mockAzureClient {
	return &mockAzureClient{
		blobs: make(map[string][]byte),
		puts:  make(map[string]PutOptions),
	}
}

func azKey(container, blob string) string { return container + "/" + blob }

func (m *mockAzureClient) UploadStream(ctx context.Context, container, blob string, body io.Reader, opts PutOptions) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.blobs[azKey(container, blob)] = data
	m.puts[azKey(container, blob)] = opts
	return nil
}

func (m *mockAzureClient) DownloadStream(ctx context.Context, container, blob string) (io.ReadCloser, error) {
	data, ok := m.blobs[azKey(container, blob)]
	if !ok {
		return nil, &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound)}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockAzureClient) DeleteBlob(ctx context.Context, container, blob string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.blobs, azKey(container, blob))
	return nil
}

func (m *mockAzureClient) BlobExists(ctx context.Context, container, blob string) (bool, error) {
	_, ok := m.blobs[azKey(container, blob)]
	return ok, nil
}

func (m *mockAzureClient) CreateContainer(ctx context.Context, container string) error {
	m.createCalls++
	return m.createErr
}

func (m *mockAzureClient) BlobSASURL(container, blob string, expires time.Time) (string, error) {
	if m.sasErr != nil {
		return "", m.sasErr
	}
	if m.sasURL != "" {
		return m.sasURL, nil
	}
	return fmt.Sprintf("https://account.blob.core.windows.net/%s/%s?sig=abc", container, blob), nil
}

func TestAzurePutStoresBlob(t *testing.T) {
	client := newMockAzureClient()
	conn := NewAzureConnectionWithClient("https://account.blob.core.windows.net", client)

	err := conn.Container("media").Put(context.Background(), "a/o.png", strings.NewReader("body"), PutOptions{
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got := string(client.blobs["media/a/o.png"]); got != "body" {
		t.Errorf("stored blob = %q", got)
	}
	if got := client.puts["media/a/o.png"].ContentType; got != "image/png" {
		t.Errorf("content type = %q", got)
	}
}

func TestAzurePutMapsMissingContainer(t *testing.T) {
	client := newMockAzureClient()
	client.uploadErr = &azcore.ResponseError{ErrorCode: string(bloberror.ContainerNotFound)}
	conn := NewAzureConnectionWithClient("https://account.blob.core.windows.net", client)

	err := conn.Container("media").Put(context.Background(), "k", strings.NewReader("x"), PutOptions{})
	if !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("Put = %v, want ErrContainerNotFound", err)
	}
}

func TestAzureDeleteIdempotent(t *testing.T) {
	client := newMockAzureClient()
	client.deleteErr = &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound)}
	conn := NewAzureConnectionWithClient("https://account.blob.core.windows.net", client)

	if err := conn.Container("media").Delete(context.Background(), "missing"); err != nil {
		t.Errorf("Delete of missing blob = %v, want nil", err)
	}
}

func TestAzureCreateContainerToleratesExisting(t *testing.T) {
	client := newMockAzureClient()
	client.createErr = &azcore.ResponseError{ErrorCode: string(bloberror.ContainerAlreadyExists)}
	conn := NewAzureConnectionWithClient("https://account.blob.core.windows.net", client)

	if err := conn.CreateContainer(context.Background(), "media"); err != nil {
		t.Errorf("CreateContainer on existing container = %v, want nil", err)
	}
	if client.createCalls != 1 {
		t.Errorf("CreateContainer called %d times, want 1", client.createCalls)
	}
}

func TestAzurePublicURL(t *testing.T) {
	conn := NewAzureConnectionWithClient("https://account.blob.core.windows.net", newMockAzureClient())
	got := conn.Container("media").PublicURL("a/o.png")
	if got != "https://account.blob.core.windows.net/media/a/o.png" {
		t.Errorf("PublicURL = %q", got)
	}
}

func TestAzureSignedURL(t *testing.T) {
	client := newMockAzureClient()
	conn := NewAzureConnectionWithClient("https://account.blob.core.windows.net", client)

	s, ok := conn.Container("media").(URLSigner)
	if !ok {
		t.Fatal("Azure container does not implement URLSigner")
	}
	u, err := s.SignedURL(context.Background(), "a/o.png", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	if !strings.Contains(u, "sig=") {
		t.Errorf("SignedURL = %q", u)
	}
}

func TestAzureSignedURLUnsupportedWithoutSharedKey(t *testing.T) {
	client := newMockAzureClient()
	client.sasErr = ErrSignedURLsUnsupported
	conn := NewAzureConnectionWithClient("https://account.blob.core.windows.net", client)

	s := conn.Container("media").(URLSigner)
	_, err := s.SignedURL(context.Background(), "a/o.png", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrSignedURLsUnsupported) {
		t.Errorf("SignedURL = %v, want ErrSignedURLsUnsupported preserved", err)
	}
}

func TestDialAzureNeedsAccount(t *testing.T) {
	_, err := DialAzure(context.Background(), map[string]any{})
	if err == nil {
		t.Error("DialAzure with no account succeeded, want error")
	}
}
