// Package storage keeps raw meal photos and provides in-memory stores for tests and the console.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// PhotoArchive stores the raw bytes of analysed photos.
type PhotoArchive interface {
	Save(ctx context.Context, userID int64, photo []byte) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
}

// photoKey builds "<user>/<yyyy-mm-dd>/<uuid>.jpg".
func photoKey(userID int64, now time.Time) string {
	return fmt.Sprintf("%d/%s/%s.jpg", userID, now.Format("2006-01-02"), uuid.NewString())
}

// TestPhotoArchive is a simple in-memory implementation for testing
type TestPhotoArchive struct {
	mu     sync.Mutex
	photos map[string][]byte
	err    error
}

func NewTestPhotoArchive() *TestPhotoArchive {
	return &TestPhotoArchive{photos: make(map[string][]byte)}
}

func NewTestPhotoArchiveWithError() *TestPhotoArchive {
	return &TestPhotoArchive{photos: make(map[string][]byte), err: errors.New("archive unavailable")}
}

func (a *TestPhotoArchive) Save(ctx context.Context, userID int64, photo []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := photoKey(userID, time.Now())
	a.photos[key] = append([]byte(nil), photo...)
	return key, nil
}

func (a *TestPhotoArchive) Load(ctx context.Context, key string) ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.photos[key]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (a *TestPhotoArchive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.photos)
}
