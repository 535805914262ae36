package cloud

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// realAzureClient wraps the official Azure SDK client to satisfy
// AzureBlobAPI. canSign records whether the client holds a shared key,
// which SAS generation requires.
type realAzureClient struct {
	client  *azblob.Client
	canSign bool
}

// newRealAzureClient creates a real Azure Blob client. Shared-key and
// connection-string auth are preferred; without either it falls back to
// DefaultAzureCredential (env vars, managed identity, Azure CLI).
func newRealAzureClient(accountURL, account, accessKey, connectionString string) (*realAzureClient, error) {
	if account != "" && accessKey != "" {
		cred, err := azblob.NewSharedKeyCredential(account, accessKey)
		if err != nil {
			return nil, fmt.Errorf("creating Azure shared key credential: %w", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(accountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client with shared key: %w", err)
		}
		return &realAzureClient{client: client, canSign: true}, nil
	}

	if connectionString != "" {
		client, err := azblob.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client from connection string: %w", err)
		}
		return &realAzureClient{client: client, canSign: true}, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure Blob client: %w", err)
	}
	return &realAzureClient{client: client}, nil
}

func (c *realAzureClient) UploadStream(ctx context.Context, container, blobName string, body io.Reader, opts PutOptions) error {
	uploadOpts := &azblob.UploadStreamOptions{}
	if opts.ContentType != "" {
		uploadOpts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &opts.ContentType}
	}
	if len(opts.Metadata) > 0 {
		meta := make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			meta[k] = &v
		}
		uploadOpts.Metadata = meta
	}
	// Azure has no per-blob ACL; visibility is a container-level setting,
	// so opts.Public is not applied here.
	_, err := c.client.UploadStream(ctx, container, blobName, body, uploadOpts)
	return err
}

func (c *realAzureClient) DownloadStream(ctx context.Context, container, blobName string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, container, blobName, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *realAzureClient) DeleteBlob(ctx context.Context, container, blobName string) error {
	_, err := c.client.DeleteBlob(ctx, container, blobName, nil)
	return err
}

func (c *realAzureClient) BlobExists(ctx context.Context, container, blobName string) (bool, error) {
	_, err := c.client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *realAzureClient) CreateContainer(ctx context.Context, container string) error {
	_, err := c.client.CreateContainer(ctx, container, nil)
	return err
}

func (c *realAzureClient) BlobSASURL(container, blobName string, expires time.Time) (string, error) {
	if !c.canSign {
		return "", ErrSignedURLsUnsupported
	}
	blobClient := c.client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName)
	return blobClient.GetSASURL(
		sas.BlobPermissions{Read: true},
		expires,
		&blob.GetSASURLOptions{},
	)
}

var _ AzureBlobAPI = (*realAzureClient)(nil)
