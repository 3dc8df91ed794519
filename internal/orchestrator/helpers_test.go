package orchestrator

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"hostbackup/internal/engine"
	"hostbackup/internal/manifest"
	"hostbackup/internal/schedule"
	"hostbackup/internal/transport"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// fakeResolver hands out one fixed destination and transport.
type fakeResolver struct {
	dest *transport.Destination
	tr   transport.Transport
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, id string) (*transport.Destination, transport.Transport, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.dest, f.tr, nil
}

// memTransport keeps uploaded files in memory and can be told to fail
// deletes or uploads of specific remote paths.
type memTransport struct {
	mu          sync.Mutex
	files       map[string][]byte
	failDelete  map[string]bool
	failUpload  map[string]bool
	deleteCalls []string
}

func newMemTransport() *memTransport {
	return &memTransport{
		files:      make(map[string][]byte),
		failDelete: make(map[string]bool),
		failUpload: make(map[string]bool),
	}
}

func (m *memTransport) Upload(ctx context.Context, localPath, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpload[remotePath] {
		return engine.NewTransportError("upload refused: "+remotePath, nil)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return engine.NewTransportError("cannot read local file", err)
	}
	m.files[remotePath] = data
	return nil
}

func (m *memTransport) Download(ctx context.Context, remotePath, localPath string) error {
	m.mu.Lock()
	data, ok := m.files[remotePath]
	m.mu.Unlock()
	if !ok {
		return engine.NewNotFoundError("file not found at destination: "+remotePath, nil)
	}
	return os.WriteFile(localPath, data, 0600)
}

func (m *memTransport) ListFiles(ctx context.Context, remotePath string) ([]transport.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []transport.FileInfo
	for name, data := range m.files {
		if filepath.Dir(name) == remotePath {
			out = append(out, transport.FileInfo{File: filepath.Base(name), Size: int64(len(data))})
		}
	}
	return out, nil
}

func (m *memTransport) FileExists(ctx context.Context, remotePath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[remotePath]
	return ok, nil
}

func (m *memTransport) Delete(ctx context.Context, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, remotePath)
	if m.failDelete[remotePath] {
		return engine.NewTransportError("delete refused: "+remotePath, nil)
	}
	delete(m.files, remotePath)
	return nil
}

func (m *memTransport) TestConnection(ctx context.Context) error { return nil }

func (m *memTransport) stored() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.files {
		names = append(names, name)
	}
	return names
}

// fakePackager writes a minimal gzipped account archive into the work area.
// Accounts in failFor fail packaging.
type fakePackager struct {
	mu      sync.Mutex
	failFor map[string]bool
	calls   []string
	seq     int
}

func (p *fakePackager) Package(ctx context.Context, account, workDir string, opts engine.PackageOptions) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, account)
	p.seq++
	seq := p.seq
	fail := p.failFor[account]
	p.mu.Unlock()

	if fail {
		return "", engine.NewToolError("packager exited with status 1", nil)
	}

	path := filepath.Join(workDir, fmt.Sprintf("backup-%s-%d.tar.gz", account, seq))
	if err := writeAccountArchive(path, account); err != nil {
		return "", err
	}
	return path, nil
}

// fakeDBTool writes a small dump file, or fails.
type fakeDBTool struct {
	fail bool
}

func (d *fakeDBTool) DumpDatabases(ctx context.Context, account, workDir string) (string, error) {
	if d.fail {
		return "", engine.NewToolError("dump tool exited with status 1", nil)
	}
	path := filepath.Join(workDir, fmt.Sprintf("db-%s.sql", account))
	return path, os.WriteFile(path, []byte("CREATE DATABASE "+account+"_blog;\n"), 0600)
}

// fakeAccountRestorer records the restore it was asked to perform.
type fakeAccountRestorer struct {
	mu      sync.Mutex
	fail    bool
	account string
	archive string
	opts    engine.RestoreOptions
	called  bool
}

func (r *fakeAccountRestorer) Restore(ctx context.Context, account, archivePath string, opts engine.RestoreOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.called = true
	r.account = account
	r.archive = archivePath
	r.opts = opts
	if r.fail {
		return engine.NewToolError("restore tool exited with status 1", nil)
	}
	return nil
}

// fakeDBRestorer records database restore invocations.
type fakeDBRestorer struct {
	fail    bool
	account string
	dump    string
	called  bool
}

func (r *fakeDBRestorer) RestoreFile(ctx context.Context, account, dumpPath string) error {
	r.called = true
	r.account = account
	r.dump = dumpPath
	if r.fail {
		return engine.NewToolError("db restore failed", nil)
	}
	return nil
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	backups  []*engine.JobResult
	restores []*engine.RestoreResult
}

func (n *fakeNotifier) NotifyBackup(result *engine.JobResult, scheduleID string) {
	n.backups = append(n.backups, result)
}

func (n *fakeNotifier) NotifyRestore(result *engine.RestoreResult) {
	n.restores = append(n.restores, result)
}

// writeAccountArchive produces a gzipped tar with the single-top-level-dir
// layout the verifier expects.
func writeAccountArchive(path, account string) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)

	entries := []string{
		account + "/",
		account + "/homedir/index.html",
		account + "/meta.json",
	}
	for _, name := range entries {
		payload := []byte{}
		mode := int64(0755)
		typeflag := byte(tar.TypeDir)
		if name[len(name)-1] != '/' {
			payload = []byte("data for " + name)
			mode = 0644
			typeflag = tar.TypeReg
		}
		hdr := &tar.Header{
			Name:     name,
			Mode:     mode,
			Size:     int64(len(payload)),
			Typeflag: typeflag,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if len(payload) > 0 {
			if _, err := tw.Write(payload); err != nil {
				return err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0600)
}

func newManifestStore(t *testing.T) *manifest.Store {
	t.Helper()
	st, err := manifest.NewStore(filepath.Join(t.TempDir(), "manifests"))
	require.NoError(t, err)
	return st
}

func newScheduleStore(t *testing.T, schedules ...*schedule.Schedule) *schedule.Store {
	t.Helper()
	st := schedule.NewStore(filepath.Join(t.TempDir(), "schedules.json"))
	for _, s := range schedules {
		require.NoError(t, st.Put(s))
	}
	return st
}

func localDest(id string) *transport.Destination {
	return &transport.Destination{ID: id, Name: id, Type: transport.TypeLocal, Enabled: true}
}
