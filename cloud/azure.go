// Azure Blob Storage provider.
//
// Credentials come from the mapping: azure_storage_account_name plus
// azure_storage_access_key select shared-key auth (required for SAS
// expiring URLs); azure_storage_connection_string is also accepted; with
// neither key present the provider falls back to DefaultAzureCredential,
// in which case SignedURL reports ErrSignedURLsUnsupported.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/cargohold/cargohold/credentials"
)

// AzureBlobAPI defines the subset of the Azure Blob client interface the
// provider uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// UploadStream uploads the reader's contents to a blob, overwriting any
	// existing blob.
	UploadStream(ctx context.Context, container, blob string, body io.Reader, opts PutOptions) error
	// DownloadStream opens a blob's contents for reading.
	DownloadStream(ctx context.Context, container, blob string) (io.ReadCloser, error)
	// DeleteBlob deletes a blob.
	DeleteBlob(ctx context.Context, container, blob string) error
	// BlobExists checks if a blob exists.
	BlobExists(ctx context.Context, container, blob string) (bool, error)
	// CreateContainer provisions a container.
	CreateContainer(ctx context.Context, container string) error
	// BlobSASURL mints a read-only SAS URL for a blob, when the client was
	// built with a shared key.
	BlobSASURL(container, blob string, expires time.Time) (string, error)
}

// AzureConnection is a Connection backed by Azure Blob Storage.
type AzureConnection struct {
	// AccountURL is the storage account URL, e.g.
	// https://{account}.blob.core.windows.net.
	AccountURL string
	client     AzureBlobAPI
}

// DialAzure builds an AzureConnection from the credential mapping.
func DialAzure(ctx context.Context, creds credentials.Map) (*AzureConnection, error) {
	account := creds.String("azure_storage_account_name")
	accountURL := creds.String("azure_storage_account_url")
	if accountURL == "" {
		if account == "" && creds.String("azure_storage_connection_string") == "" {
			return nil, errors.New("azure credentials need azure_storage_account_name or azure_storage_connection_string")
		}
		accountURL = fmt.Sprintf("https://%s.blob.core.windows.net", account)
	}

	client, err := newRealAzureClient(
		accountURL,
		account,
		creds.String("azure_storage_access_key"),
		creds.String("azure_storage_connection_string"),
	)
	if err != nil {
		return nil, err
	}
	return &AzureConnection{AccountURL: accountURL, client: client}, nil
}

// NewAzureConnectionWithClient creates an AzureConnection with a
// pre-configured client. This is primarily used for testing with mocks.
func NewAzureConnectionWithClient(accountURL string, client AzureBlobAPI) *AzureConnection {
	return &AzureConnection{AccountURL: accountURL, client: client}
}

func (c *AzureConnection) Container(name string) Container {
	return &azureContainer{conn: c, name: name}
}

func (c *AzureConnection) CreateContainer(ctx context.Context, name string) error {
	err := c.client.CreateContainer(ctx, name)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("creating Azure container %q: %w", name, err)
	}
	return nil
}

type azureContainer struct {
	conn *AzureConnection
	name string
}

func (b *azureContainer) Name() string { return b.name }

func (b *azureContainer) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	if err := b.conn.client.UploadStream(ctx, b.name, key, body, opts); err != nil {
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return fmt.Errorf("uploading to Azure container %q: %w", b.name, ErrContainerNotFound)
		}
		return fmt.Errorf("uploading to Azure Blob: %w", err)
	}
	return nil
}

func (b *azureContainer) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.conn.client.DownloadStream(ctx, b.name, key)
	if err != nil {
		return nil, fmt.Errorf("getting object from Azure Blob: %w", err)
	}
	return r, nil
}

func (b *azureContainer) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := b.conn.client.BlobExists(ctx, b.name, key)
	if err != nil {
		return false, fmt.Errorf("checking blob existence in Azure: %w", err)
	}
	return ok, nil
}

func (b *azureContainer) Delete(ctx context.Context, key string) error {
	err := b.conn.client.DeleteBlob(ctx, b.name, key)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil // Idempotent: treat as success
		}
		return fmt.Errorf("deleting blob from Azure: %w", err)
	}
	return nil
}

func (b *azureContainer) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", b.conn.AccountURL, b.name, key)
}

func (b *azureContainer) SignedURL(ctx context.Context, key string, expires time.Time) (string, error) {
	url, err := b.conn.client.BlobSASURL(b.name, key, expires)
	if err != nil {
		if errors.Is(err, ErrSignedURLsUnsupported) {
			return "", err
		}
		return "", fmt.Errorf("signing Azure SAS URL: %w", err)
	}
	return url, nil
}

var (
	_ Connection = (*AzureConnection)(nil)
	_ URLSigner  = (*azureContainer)(nil)
)
