package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFileSystem_FileExists(t *testing.T) {
	fs := NewDefaultFileSystem()
	dir := t.TempDir()

	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	exists, err := fs.FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = fs.FileExists(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDefaultFileSystem_ReadFile(t *testing.T) {
	fs := NewDefaultFileSystem()
	dir := t.TempDir()

	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, []byte("0.42 0.37 0.30"), 0o600))

	content, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.42 0.37 0.30", string(content))

	_, err = fs.ReadFile(filepath.Join(dir, "absent"))
	assert.Error(t, err)
}

func TestDefaultFileSystem_IsDir(t *testing.T) {
	fs := NewDefaultFileSystem()
	dir := t.TempDir()

	isDir, err := fs.IsDir(dir)
	require.NoError(t, err)
	assert.True(t, isDir)

	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	isDir, err = fs.IsDir(path)
	require.NoError(t, err)
	assert.False(t, isDir)
}

func TestMockFileSystem_ReadFile(t *testing.T) {
	fs := NewMockFileSystem()
	fs.AddFile("/etc/privgate/policy.toml", 0o644, []byte("[session]\n"))

	content, err := fs.ReadFile("/etc/privgate/policy.toml")
	require.NoError(t, err)
	assert.Equal(t, "[session]\n", string(content))

	_, err = fs.ReadFile("/etc/privgate/missing.toml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMockFileSystem_ReadFileErr(t *testing.T) {
	fs := NewMockFileSystem()
	fs.AddFile("/proc/loadavg", 0o444, []byte("1.00 0.80 0.60 1/123 456"))
	fs.ReadFileErr = os.ErrPermission

	_, err := fs.ReadFile("/proc/loadavg")
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestMockFileSystem_Symlinks(t *testing.T) {
	fs := NewMockFileSystem()
	fs.AddFile("/usr/bin/clamscan.real", 0o755, nil)
	fs.AddSymlink("/usr/bin/clamscan", "/usr/bin/clamscan.real")

	target, err := fs.Readlink("/usr/bin/clamscan")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/clamscan.real", target)

	info, err := fs.Lstat("/usr/bin/clamscan")
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	_, err = fs.Readlink("/usr/bin/clamscan.real")
	assert.Error(t, err)
}

func TestMockFileSystem_AddFileCreatesParents(t *testing.T) {
	fs := NewMockFileSystem()
	fs.AddFile("/etc/privgate/high-security", 0o644, nil)

	isDir, err := fs.IsDir("/etc/privgate")
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestContainsPathTraversalSegment(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"clean absolute path", "/usr/bin/rkhunter", false},
		{"traversal in middle", "/usr/bin/../sbin/init", true},
		{"leading traversal", "../etc/shadow", true},
		{"bare traversal", "..", true},
		{"dots inside filename", "/data/archive..zip", false},
		{"empty path", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsPathTraversalSegment(tt.path))
		})
	}
}
