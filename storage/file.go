package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

type FilePhotoArchive struct {
	Dir string
}

func NewFilePhotoArchive(dir string) *FilePhotoArchive {
	return &FilePhotoArchive{Dir: dir}
}

func (a *FilePhotoArchive) Save(ctx context.Context, userID int64, photo []byte) (string, error) {
	key := photoKey(userID, time.Now())
	path := filepath.Join(a.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create photo dir: %w", err)
	}
	if err := os.WriteFile(path, photo, 0o644); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	return key, nil
}

func (a *FilePhotoArchive) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(a.Dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}
