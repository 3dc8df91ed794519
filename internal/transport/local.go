package transport

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"hostbackup/internal/engine"
)

// LocalTransport copies files under a destination-configured base path.
// Artifacts are written owner-only.
type LocalTransport struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalTransport creates a local filesystem transport.
func NewLocalTransport(config *LocalConfig) (*LocalTransport, error) {
	if config == nil || config.BasePath == "" {
		return nil, engine.NewValidationError("local transport requires a base path", nil)
	}

	perms := config.Permissions
	if perms == 0 {
		perms = 0600
	}

	if err := os.MkdirAll(config.BasePath, 0700); err != nil {
		return nil, engine.NewTransportError("failed to create local destination directory", err)
	}

	return &LocalTransport{basePath: config.BasePath, permissions: perms}, nil
}

// LocalPath maps a remote path to its location under the base path.
func (t *LocalTransport) LocalPath(remotePath string) string {
	return filepath.Join(t.basePath, filepath.FromSlash(remotePath))
}

// Upload copies a local file into the destination tree.
func (t *LocalTransport) Upload(ctx context.Context, localPath, remotePath string) error {
	dst := t.LocalPath(remotePath)
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return engine.NewTransportError("failed to create destination directory", err)
	}
	return t.copyFile(localPath, dst)
}

// Download copies a destination file out to a local path.
func (t *LocalTransport) Download(ctx context.Context, remotePath, localPath string) error {
	src := t.LocalPath(remotePath)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return engine.NewNotFoundError("file not found at destination: "+remotePath, err)
		}
		return engine.NewTransportError("failed to stat destination file", err)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0700); err != nil {
		return engine.NewTransportError("failed to create local directory", err)
	}
	return t.copyFile(src, localPath)
}

// ListFiles lists regular files directly under a destination directory.
func (t *LocalTransport) ListFiles(ctx context.Context, remotePath string) ([]FileInfo, error) {
	dir := t.LocalPath(remotePath)
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engine.NewTransportError("failed to list destination directory", err)
	}

	var files []FileInfo
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			File:  d.Name(),
			Size:  info.Size(),
			MTime: info.ModTime(),
		})
	}
	return files, nil
}

// FileExists reports whether a destination file exists.
func (t *LocalTransport) FileExists(ctx context.Context, remotePath string) (bool, error) {
	_, err := os.Stat(t.LocalPath(remotePath))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, engine.NewTransportError("failed to stat destination file", err)
}

// Delete removes a destination file. Deleting an absent file succeeds.
func (t *LocalTransport) Delete(ctx context.Context, remotePath string) error {
	if err := os.Remove(t.LocalPath(remotePath)); err != nil && !os.IsNotExist(err) {
		return engine.NewTransportError("failed to delete destination file", err)
	}
	return nil
}

// TestConnection verifies the base path is writable.
func (t *LocalTransport) TestConnection(ctx context.Context) error {
	probe := filepath.Join(t.basePath, ".hostbackup-probe")
	if err := os.WriteFile(probe, []byte("ok"), t.permissions); err != nil {
		return engine.NewTransportError("destination base path is not writable", err)
	}
	os.Remove(probe)
	return nil
}

func (t *LocalTransport) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return engine.NewTransportError("failed to open source file", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, t.permissions)
	if err != nil {
		return engine.NewTransportError("failed to create target file", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return engine.NewTransportError("failed to copy file", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return engine.NewTransportError("failed to finalize target file", err)
	}
	return nil
}
