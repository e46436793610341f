package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"orbnet/pkg/optimize"
)

// FileStorage implements Storage on the local filesystem
type FileStorage struct {
	basePath string
	buffers  *optimize.BytePool
}

// NewFileStorage creates a file storage rooted at basePath
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &FileStorage{
		basePath: basePath,
		buffers:  optimize.NewBytePool(32 * 1024),
	}, nil
}

// Save writes data to a temporary file and renames it into place so a crash
// mid-write never leaves a truncated snapshot behind.
func (fs *FileStorage) Save(ctx context.Context, name string, data io.Reader) error {
	finalPath := filepath.Join(fs.basePath, name)
	tmpPath := finalPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	buf := fs.buffers.Get()
	_, copyErr := io.CopyBuffer(file, data, buf)
	fs.buffers.Put(buf)

	closeErr := file.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot data: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize snapshot file: %w", err)
	}

	return nil
}

// Load opens a snapshot file for reading
func (fs *FileStorage) Load(ctx context.Context, name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(fs.basePath, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	return file, nil
}

// List returns files with the given prefix, skipping in-flight temp files
func (fs *FileStorage) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".tmp") {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			files = append(files, name)
		}
	}

	return files, nil
}

// Delete removes a snapshot file
func (fs *FileStorage) Delete(ctx context.Context, name string) error {
	return os.Remove(filepath.Join(fs.basePath, name))
}
