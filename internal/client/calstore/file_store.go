package calstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openmined/calsync/internal/fileio"
	"github.com/openmined/calsync/internal/utils"
)

type FileStore struct {
	path    string
	retrier *fileio.Retrier
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string, retrier *fileio.Retrier) (*FileStore, error) {
	if err := utils.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("create calendar directory: %w", err)
	}
	return &FileStore{path: path, retrier: retrier}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Exists() bool {
	return utils.FileExists(s.path)
}

func (s *FileStore) ModTime() (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	return s.retrier.ReadFile(ctx, s.path)
}

func (s *FileStore) Save(ctx context.Context, data []byte) error {
	return s.retrier.WriteFile(ctx, s.path, data)
}

func (s *FileStore) SaveNotice(ctx context.Context, data []byte) error {
	return s.Save(ctx, data)
}
