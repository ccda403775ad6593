package common

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"
)

const (
	// DefaultDirPerm represents default directory permissions (rwxr-xr-x)
	DefaultDirPerm = 0o755

	// SymlinkPerm represents default symlink permissions (rwxrwxrwx)
	// In real system, permission of symlink is never used, but permission of
	// target file/directory is used for permission check on system calls.
	SymlinkPerm = 0o777
)

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	files map[string]*MockFileInfo
	// contents maps file path to file body for ReadFile
	contents map[string][]byte
	// symlinks maps symlink path to target path for Readlink
	symlinks map[string]string
	// ReadFileErr, when set, is returned by every ReadFile call
	ReadFileErr error
}

// MockFileInfo implements fs.FileInfo for testing
type MockFileInfo struct {
	name      string
	size      int64
	mode      os.FileMode
	modTime   time.Time
	isDir     bool
	isSymlink bool
	uid       uint32
	gid       uint32
}

// Name returns the base name of the file
func (m *MockFileInfo) Name() string { return m.name }

// Size returns the length in bytes
func (m *MockFileInfo) Size() int64 { return m.size }

// Mode returns the file mode bits
func (m *MockFileInfo) Mode() os.FileMode {
	if m.isSymlink {
		return m.mode | os.ModeSymlink
	}
	return m.mode
}

// ModTime returns the modification time
func (m *MockFileInfo) ModTime() time.Time { return m.modTime }

// IsDir reports whether m describes a directory
func (m *MockFileInfo) IsDir() bool { return m.isDir }

// Sys returns the underlying data source (syscall.Stat_t for mock)
func (m *MockFileInfo) Sys() any {
	return &syscall.Stat_t{
		Uid: m.uid,
		Gid: m.gid,
	}
}

// NewMockFileSystem creates a new MockFileSystem
func NewMockFileSystem() *MockFileSystem {
	fs := &MockFileSystem{
		files:    make(map[string]*MockFileInfo),
		contents: make(map[string][]byte),
		symlinks: make(map[string]string),
	}

	// Add root directory by default (owned by root with secure permissions)
	fs.AddDirWithOwner("/", 0o755, 0, 0)

	return fs
}

// FileExists checks if a file or directory exists in the mock filesystem
func (m *MockFileSystem) FileExists(path string) (bool, error) {
	path = filepath.Clean(path)
	_, exists := m.files[path]
	return exists, nil
}

// IsDir checks if the path is a directory in the mock filesystem
func (m *MockFileSystem) IsDir(path string) (bool, error) {
	path = filepath.Clean(path)

	info, exists := m.files[path]
	if !exists {
		return false, os.ErrNotExist
	}

	return info.IsDir(), nil
}

// Lstat returns file information for the given path
func (m *MockFileSystem) Lstat(path string) (fs.FileInfo, error) {
	path = filepath.Clean(path)

	info, exists := m.files[path]
	if !exists {
		return nil, os.ErrNotExist
	}

	return info, nil
}

// ReadFile returns the registered contents for the given path
func (m *MockFileSystem) ReadFile(path string) ([]byte, error) {
	if m.ReadFileErr != nil {
		return nil, m.ReadFileErr
	}

	path = filepath.Clean(path)

	content, exists := m.contents[path]
	if !exists {
		return nil, os.ErrNotExist
	}

	return content, nil
}

// Readlink returns the registered target for the given symlink path
func (m *MockFileSystem) Readlink(path string) (string, error) {
	path = filepath.Clean(path)

	target, exists := m.symlinks[path]
	if !exists {
		return "", os.ErrInvalid
	}

	return target, nil
}

// GetFiles returns all files in the mock filesystem (for testing)
func (m *MockFileSystem) GetFiles() []string {
	var files []string
	for path := range m.files {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// AddFile adds a file to the mock filesystem (for testing)
func (m *MockFileSystem) AddFile(path string, mode os.FileMode, content []byte) {
	path = filepath.Clean(path)

	// Create parent directories if they don't exist
	m.addParents(filepath.Dir(path))

	m.files[path] = &MockFileInfo{
		name:      filepath.Base(path),
		size:      int64(len(content)),
		mode:      mode,
		modTime:   time.Now(),
		isDir:     false,
		isSymlink: false,
		uid:       0,
		gid:       0,
	}
	m.contents[path] = content
}

// AddDir adds a directory to the mock filesystem (for testing)
func (m *MockFileSystem) AddDir(path string, mode os.FileMode) {
	m.AddDirWithOwner(path, mode, 0, 0)
}

// AddDirWithOwner adds a directory with specified owner to the mock filesystem (for testing)
func (m *MockFileSystem) AddDirWithOwner(path string, mode os.FileMode, uid, gid uint32) {
	path = filepath.Clean(path)

	m.files[path] = &MockFileInfo{
		name:      filepath.Base(path),
		mode:      mode | os.ModeDir, // Add directory flag to mode
		modTime:   time.Now(),
		isDir:     true,
		isSymlink: false,
		uid:       uid,
		gid:       gid,
	}
}

// AddSymlink adds a symbolic link to the mock filesystem (for testing)
func (m *MockFileSystem) AddSymlink(linkPath, targetPath string) {
	linkPath = filepath.Clean(linkPath)
	targetPath = filepath.Clean(targetPath)

	m.addParents(filepath.Dir(linkPath))

	m.symlinks[linkPath] = targetPath
	m.files[linkPath] = &MockFileInfo{
		name:      filepath.Base(linkPath),
		mode:      SymlinkPerm,
		modTime:   time.Now(),
		isDir:     false,
		isSymlink: true,
		uid:       0,
		gid:       0,
	}
}

func (m *MockFileSystem) addParents(dir string) {
	if dir == "." || dir == "/" || dir == "" {
		return
	}
	if _, exists := m.files[dir]; exists {
		return
	}
	m.addParents(filepath.Dir(dir))
	m.AddDir(dir, DefaultDirPerm)
}

var _ FileSystem = (*MockFileSystem)(nil)
