package transport

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"hostbackup/internal/engine"
)

// AzureTransport stores artifacts as block blobs in an Azure container.
type AzureTransport struct {
	serviceURL    azblob.ServiceURL
	containerName string
	prefix        string
}

// NewAzureTransport creates an Azure Blob transport from destination
// configuration.
func NewAzureTransport(config *AzureConfig) (*AzureTransport, error) {
	if config == nil {
		return nil, engine.NewValidationError("azure transport configuration is required", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, engine.NewTransportError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, engine.NewTransportError("failed to parse Azure service URL", err)
	}

	return &AzureTransport{
		serviceURL:    azblob.NewServiceURL(*serviceURL, pipeline),
		containerName: config.ContainerName,
		prefix:        normalizePrefix(config.Prefix),
	}, nil
}

// Upload streams a local file to the container.
func (t *AzureTransport) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return engine.NewTransportError("failed to open local file", err)
	}
	defer f.Close()

	blobURL := t.blobURL(remotePath)
	_, err = azblob.UploadFileToBlockBlob(ctx, f, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/octet-stream",
		},
	})
	if err != nil {
		return engine.NewTransportError(fmt.Sprintf("failed to upload %s to Azure", remotePath), err)
	}
	return nil
}

// Download streams a blob from the container to a local file.
func (t *AzureTransport) Download(ctx context.Context, remotePath, localPath string) error {
	blobURL := t.blobURL(remotePath)

	downloadResponse, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return engine.NewNotFoundError("file not found at destination: "+remotePath, err)
		}
		return engine.NewTransportError(fmt.Sprintf("failed to download %s from Azure", remotePath), err)
	}

	body := downloadResponse.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20})
	defer body.Close()

	return writeLocalFile(localPath, body)
}

// ListFiles lists blobs directly under a name prefix.
func (t *AzureTransport) ListFiles(ctx context.Context, remotePath string) ([]FileInfo, error) {
	prefix := t.blobName(remotePath)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	containerURL := t.serviceURL.NewContainerURL(t.containerName)

	var files []FileInfo
	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResponse, err := containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: prefix,
		})
		if err != nil {
			return nil, engine.NewTransportError("failed to list blobs in Azure", err)
		}

		for _, blob := range listResponse.Segment.BlobItems {
			var size int64
			if blob.Properties.ContentLength != nil {
				size = *blob.Properties.ContentLength
			}
			files = append(files, FileInfo{
				File:  path.Base(blob.Name),
				Size:  size,
				MTime: blob.Properties.LastModified,
			})
		}

		marker = listResponse.NextMarker
	}
	return files, nil
}

// FileExists reports whether a blob exists in the container.
func (t *AzureTransport) FileExists(ctx context.Context, remotePath string) (bool, error) {
	_, err := t.blobURL(remotePath).GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err == nil {
		return true, nil
	}
	if isAzureNotFound(err) {
		return false, nil
	}
	return false, engine.NewTransportError("failed to check blob in Azure", err)
}

// Delete removes a blob. An absent blob reports success.
func (t *AzureTransport) Delete(ctx context.Context, remotePath string) error {
	_, err := t.blobURL(remotePath).Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil && !isAzureNotFound(err) {
		return engine.NewTransportError(fmt.Sprintf("failed to delete %s from Azure", remotePath), err)
	}
	return nil
}

// TestConnection verifies the container is reachable with the configured
// credentials.
func (t *AzureTransport) TestConnection(ctx context.Context) error {
	containerURL := t.serviceURL.NewContainerURL(t.containerName)
	if _, err := containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{}); err != nil {
		return engine.NewTransportError("Azure container is not reachable", err)
	}
	return nil
}

func (t *AzureTransport) blobName(remotePath string) string {
	return t.prefix + strings.TrimPrefix(remotePath, "/")
}

func (t *AzureTransport) blobURL(remotePath string) azblob.BlockBlobURL {
	return t.serviceURL.NewContainerURL(t.containerName).NewBlockBlobURL(t.blobName(remotePath))
}

func isAzureNotFound(err error) bool {
	if stgErr, ok := err.(azblob.StorageError); ok {
		switch stgErr.ServiceCode() {
		case azblob.ServiceCodeBlobNotFound, azblob.ServiceCodeContainerNotFound:
			return true
		}
	}
	return false
}
