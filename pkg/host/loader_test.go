package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "docs.yaml", `
name: docs
path: /docs
upstream: http://docs.internal:8080
login:
  method: form
  realm: corp
  login_page: /auth/login
constraints:
  - name: admin
    paths: ["/admin/*"]
    roles: ["admin"]
    require_auth: true
`)

	app, err := LoadFile(filepath.Join(dir, "docs.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "docs", app.Name)
	assert.Equal(t, "/docs", app.Path)
	assert.Equal(t, "FORM", app.Login.Method)
	assert.Equal(t, "corp", app.Login.Realm)
	require.Len(t, app.Constraints, 1)
	assert.True(t, app.Constraints[0].Protected())
}

func TestLoadFileInvalid(t *testing.T) {
	dir := t.TempDir()

	t.Run("malformed yaml", func(t *testing.T) {
		writeManifest(t, dir, "bad.yaml", "name: [unclosed")
		_, err := LoadFile(filepath.Join(dir, "bad.yaml"))
		assert.Error(t, err)
	})

	t.Run("missing upstream is allowed", func(t *testing.T) {
		writeManifest(t, dir, "static.yaml", "name: static\npath: /static\n")
		app, err := LoadFile(filepath.Join(dir, "static.yaml"))
		require.NoError(t, err)
		assert.Empty(t, app.Upstream)
	})

	t.Run("missing name", func(t *testing.T) {
		writeManifest(t, dir, "anon.yaml", "path: /anon\n")
		_, err := LoadFile(filepath.Join(dir, "anon.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "root.yaml", "name: root\npath: /\nupstream: http://root:8080\n")
	writeManifest(t, dir, "docs.yml", "name: docs\npath: /docs\nupstream: http://docs:8080\n")
	writeManifest(t, dir, "wiki.yaml", "name: wiki\npath: /docs/wiki\nupstream: http://wiki:8080\n")
	writeManifest(t, dir, "notes.txt", "not a manifest")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	apps, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, apps, 3)

	// Longest prefix first so AppFor can take the first match.
	assert.Equal(t, "wiki", apps[0].Name)
	assert.Equal(t, "docs", apps[1].Name)
	assert.Equal(t, "root", apps[2].Name)
}

func TestLoadDirDuplicatePath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a.yaml", "name: a\npath: /app\nupstream: http://a:8080\n")
	writeManifest(t, dir, "b.yaml", "name: b\npath: /app\nupstream: http://b:8080\n")

	_, err := LoadDir(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate app path")
}

func TestLoadDirDuplicateName(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a.yaml", "name: app\npath: /a\nupstream: http://a:8080\n")
	writeManifest(t, dir, "b.yaml", "name: app\npath: /b\nupstream: http://b:8080\n")

	_, err := LoadDir(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate app name")
}

func TestLoadDirPropagatesManifestError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "good.yaml", "name: good\npath: /good\nupstream: http://good:8080\n")
	writeManifest(t, dir, "bad.yaml", "path: /bad\n")

	_, err := LoadDir(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestAppFor(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "root.yaml", "name: root\npath: /\nupstream: http://root:8080\n")
	writeManifest(t, dir, "docs.yaml", "name: docs\npath: /docs\nupstream: http://docs:8080\n")
	writeManifest(t, dir, "wiki.yaml", "name: wiki\npath: /docs/wiki\nupstream: http://wiki:8080\n")

	apps, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{"/docs/wiki/page", "wiki"},
		{"/docs/wiki", "wiki"},
		{"/docs/index.html", "docs"},
		{"/docsx", "root"},
		{"/anything/else", "root"},
	}

	for _, tt := range tests {
		app := AppFor(apps, tt.path)
		require.NotNil(t, app, "AppFor(%q)", tt.path)
		assert.Equal(t, tt.want, app.Name, "AppFor(%q)", tt.path)
	}
}

func TestAppForNoCatchAll(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "docs.yaml", "name: docs\npath: /docs\nupstream: http://docs:8080\n")

	apps, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Nil(t, AppFor(apps, "/other"))
}
