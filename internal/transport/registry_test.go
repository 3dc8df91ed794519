package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"hostbackup/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyListACL struct {
	denied map[string]bool
}

func (a denyListACL) CanUseDestination(user, destID string) bool {
	return !a.denied[user+":"+destID]
}

func writeDestinationsFile(t *testing.T, dir string, content string) string {
	t.Helper()
	path := filepath.Join(dir, "destinations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func testDestinationsYAML(base string) string {
	return `- id: local-disk
  name: Local disk
  type: local
  enabled: true
  local:
    base_path: ` + base + `
- id: offsite-s3
  name: Offsite S3
  type: s3
  enabled: false
  s3:
    bucket: backups
    region: us-east-1
    access_key: AKIA
    secret_key: secret
`
}

func TestRegistry_ListAndGet(t *testing.T) {
	dir := t.TempDir()
	path := writeDestinationsFile(t, dir, testDestinationsYAML(filepath.Join(dir, "store")))
	r := NewRegistry(path, nil, nil)

	dests, err := r.List()
	require.NoError(t, err)
	require.Len(t, dests, 2)
	assert.Equal(t, "local-disk", dests[0].ID)
	assert.Equal(t, TypeS3, dests[1].Type)

	d, err := r.Get("offsite-s3")
	require.NoError(t, err)
	assert.Equal(t, "backups", d.S3.Bucket)

	_, err = r.Get("nope")
	assert.True(t, engine.IsErrorType(err, engine.ErrorTypeNotFound))
}

func TestRegistry_MissingFileIsEmpty(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "nope.yaml"), nil, nil)

	dests, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, dests)
	assert.False(t, r.IsEnabled("anything"))
}

func TestRegistry_IsEnabled(t *testing.T) {
	dir := t.TempDir()
	path := writeDestinationsFile(t, dir, testDestinationsYAML(filepath.Join(dir, "store")))
	r := NewRegistry(path, nil, nil)

	assert.True(t, r.IsEnabled("local-disk"))
	assert.False(t, r.IsEnabled("offsite-s3"))
	assert.False(t, r.IsEnabled("missing"))
}

func TestRegistry_ListForUser(t *testing.T) {
	dir := t.TempDir()
	path := writeDestinationsFile(t, dir, testDestinationsYAML(filepath.Join(dir, "store")))
	acl := denyListACL{denied: map[string]bool{"bob:offsite-s3": true}}
	r := NewRegistry(path, acl, nil)

	dests, err := r.ListForUser("bob")
	require.NoError(t, err)
	require.Len(t, dests, 1)
	assert.Equal(t, "local-disk", dests[0].ID)

	dests, err = r.ListForUser("alice")
	require.NoError(t, err)
	assert.Len(t, dests, 2)
}

func TestRegistry_ResolveLocalAndCache(t *testing.T) {
	dir := t.TempDir()
	path := writeDestinationsFile(t, dir, testDestinationsYAML(filepath.Join(dir, "store")))
	r := NewRegistry(path, nil, nil)
	ctx := context.Background()

	d, tr, err := r.Resolve(ctx, "local-disk")
	require.NoError(t, err)
	assert.Equal(t, "local-disk", d.ID)
	require.NotNil(t, tr)
	_, isLocal := tr.(*LocalTransport)
	assert.True(t, isLocal)

	// Same instance on the second resolve.
	_, tr2, err := r.Resolve(ctx, "local-disk")
	require.NoError(t, err)
	assert.Same(t, tr, tr2)
}

func TestRegistry_ResolveInvalidDestination(t *testing.T) {
	dir := t.TempDir()
	path := writeDestinationsFile(t, dir, `- id: broken
  type: local
  enabled: true
`)
	r := NewRegistry(path, nil, nil)

	_, _, err := r.Resolve(context.Background(), "broken")
	assert.True(t, engine.IsErrorType(err, engine.ErrorTypeValidation))
}
