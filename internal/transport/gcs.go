package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"hostbackup/internal/engine"
)

// GCSTransport stores artifacts as objects in a Google Cloud Storage bucket.
type GCSTransport struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSTransport creates a GCS transport from destination configuration.
func NewGCSTransport(ctx context.Context, config *GCSConfig) (*GCSTransport, error) {
	if config == nil {
		return nil, engine.NewValidationError("gcs transport configuration is required", nil)
	}

	var client *storage.Client
	var err error

	if config.CredentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(config.CredentialsPath))
	} else {
		// Default credentials from environment or metadata server
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, engine.NewTransportError("failed to create GCS client", err)
	}

	return &GCSTransport{
		client: client,
		bucket: config.Bucket,
		prefix: normalizePrefix(config.Prefix),
	}, nil
}

// Upload streams a local file to the bucket.
func (t *GCSTransport) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return engine.NewTransportError("failed to open local file", err)
	}
	defer f.Close()

	object := t.client.Bucket(t.bucket).Object(t.key(remotePath))
	w := object.NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return engine.NewTransportError(fmt.Sprintf("failed to write %s to GCS", remotePath), err)
	}
	if err := w.Close(); err != nil {
		return engine.NewTransportError(fmt.Sprintf("failed to upload %s to GCS", remotePath), err)
	}
	return nil
}

// Download streams an object from the bucket to a local file.
func (t *GCSTransport) Download(ctx context.Context, remotePath, localPath string) error {
	object := t.client.Bucket(t.bucket).Object(t.key(remotePath))
	r, err := object.NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return engine.NewNotFoundError("file not found at destination: "+remotePath, err)
		}
		return engine.NewTransportError(fmt.Sprintf("failed to download %s from GCS", remotePath), err)
	}
	defer r.Close()

	return writeLocalFile(localPath, r)
}

// ListFiles lists objects directly under a key prefix.
func (t *GCSTransport) ListFiles(ctx context.Context, remotePath string) ([]FileInfo, error) {
	prefix := t.key(remotePath)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	it := t.client.Bucket(t.bucket).Objects(ctx, &storage.Query{
		Prefix:    prefix,
		Delimiter: "/",
	})

	var files []FileInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, engine.NewTransportError("failed to list objects in GCS", err)
		}
		if attrs.Name == "" {
			// Synthetic directory entry
			continue
		}
		files = append(files, FileInfo{
			File:  path.Base(attrs.Name),
			Size:  attrs.Size,
			MTime: attrs.Updated,
		})
	}
	return files, nil
}

// FileExists reports whether an object exists in the bucket.
func (t *GCSTransport) FileExists(ctx context.Context, remotePath string) (bool, error) {
	_, err := t.client.Bucket(t.bucket).Object(t.key(remotePath)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if err == storage.ErrObjectNotExist {
		return false, nil
	}
	return false, engine.NewTransportError("failed to check object in GCS", err)
}

// Delete removes an object. An absent object reports success.
func (t *GCSTransport) Delete(ctx context.Context, remotePath string) error {
	err := t.client.Bucket(t.bucket).Object(t.key(remotePath)).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return engine.NewTransportError(fmt.Sprintf("failed to delete %s from GCS", remotePath), err)
	}
	return nil
}

// TestConnection verifies the bucket is reachable.
func (t *GCSTransport) TestConnection(ctx context.Context) error {
	if _, err := t.client.Bucket(t.bucket).Attrs(ctx); err != nil {
		return engine.NewTransportError("GCS bucket is not reachable", err)
	}
	return nil
}

func (t *GCSTransport) key(remotePath string) string {
	return t.prefix + strings.TrimPrefix(remotePath, "/")
}
