package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"hostbackup/internal/engine"
)

// FileInfo describes one remote file.
type FileInfo struct {
	File  string    `json:"file"`
	Size  int64     `json:"size"`
	MTime time.Time `json:"mtime"`
}

// Transport provides uniform file operations against one destination.
// Delete of an already-absent file succeeds: the retention pruner treats
// "confirmed absent" the same as "deleted".
type Transport interface {
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	ListFiles(ctx context.Context, remotePath string) ([]FileInfo, error)
	FileExists(ctx context.Context, remotePath string) (bool, error)
	Delete(ctx context.Context, remotePath string) error
	TestConnection(ctx context.Context) error
}

// LocalPather is implemented by transports whose remote files are directly
// addressable on the local filesystem, letting restores skip the download.
type LocalPather interface {
	LocalPath(remotePath string) string
}

// writeLocalFile drains r into localPath, creating parent directories and
// removing the partial file on failure.
func writeLocalFile(localPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0700); err != nil {
		return engine.NewTransportError("failed to create local directory", err)
	}
	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return engine.NewTransportError("failed to create local file", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(localPath)
		return engine.NewTransportError("failed to write local file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(localPath)
		return engine.NewTransportError("failed to finalize local file", err)
	}
	return nil
}

// Type identifies a destination's transport implementation.
type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
	TypeGCS   Type = "gcs"
	TypeAzure Type = "azure"
)

// Destination is a named storage target. Owned by the platform; the engine
// only resolves and validates it.
type Destination struct {
	ID      string       `yaml:"id" json:"id"`
	Name    string       `yaml:"name" json:"name"`
	Type    Type         `yaml:"type" json:"type"`
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Encrypt bool         `yaml:"encrypt,omitempty" json:"encrypt,omitempty"`
	Local   *LocalConfig `yaml:"local,omitempty" json:"local,omitempty"`
	S3      *S3Config    `yaml:"s3,omitempty" json:"s3,omitempty"`
	GCS     *GCSConfig   `yaml:"gcs,omitempty" json:"gcs,omitempty"`
	Azure   *AzureConfig `yaml:"azure,omitempty" json:"azure,omitempty"`
}

// LocalConfig configures a local filesystem destination.
type LocalConfig struct {
	BasePath    string      `yaml:"base_path" json:"base_path"`
	Permissions os.FileMode `yaml:"permissions,omitempty" json:"permissions,omitempty"`
}

// S3Config configures an Amazon S3 destination.
type S3Config struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// GCSConfig configures a Google Cloud Storage destination.
type GCSConfig struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	CredentialsPath string `yaml:"credentials_path,omitempty" json:"credentials_path,omitempty"`
	Prefix          string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// AzureConfig configures an Azure Blob Storage destination.
type AzureConfig struct {
	AccountName   string `yaml:"account_name" json:"account_name"`
	AccountKey    string `yaml:"account_key" json:"account_key"`
	ContainerName string `yaml:"container_name" json:"container_name"`
	Prefix        string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// Validate checks that the destination carries the configuration block its
// type requires.
func (d *Destination) Validate() error {
	if d.ID == "" {
		return engine.NewValidationError("destination id cannot be empty", nil)
	}
	switch d.Type {
	case TypeLocal:
		if d.Local == nil || d.Local.BasePath == "" {
			return engine.NewValidationError(fmt.Sprintf("destination %s: local base_path is required", d.ID), nil)
		}
	case TypeS3:
		if d.S3 == nil || d.S3.Bucket == "" || d.S3.Region == "" {
			return engine.NewValidationError(fmt.Sprintf("destination %s: s3 bucket and region are required", d.ID), nil)
		}
	case TypeGCS:
		if d.GCS == nil || d.GCS.Bucket == "" {
			return engine.NewValidationError(fmt.Sprintf("destination %s: gcs bucket is required", d.ID), nil)
		}
	case TypeAzure:
		if d.Azure == nil || d.Azure.AccountName == "" || d.Azure.ContainerName == "" {
			return engine.NewValidationError(fmt.Sprintf("destination %s: azure account_name and container_name are required", d.ID), nil)
		}
	default:
		return engine.NewValidationError(fmt.Sprintf("destination %s: unsupported type %q", d.ID, d.Type), nil)
	}
	return nil
}
