// Package calstore reads and writes the local side of a sync entry: either a
// single calendar file or a directory holding one file per event.
package calstore

import (
	"context"
	"os"
	"time"

	"github.com/openmined/calsync/internal/fileio"
	"github.com/openmined/calsync/internal/utils"
)

const DefaultPattern = "*.ics"

// Store is the local calendar of one entry.
type Store interface {
	Path() string
	Exists() bool
	// ModTime is the freshness stamp used for local change detection.
	ModTime() (time.Time, error)
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	// SaveNotice writes a one-off calendar without disturbing other content
	// more than needed.
	SaveNotice(ctx context.Context, data []byte) error
}

type Option func(*options)

type options struct {
	pattern string
}

// WithPattern sets the member file pattern of a directory store.
func WithPattern(pattern string) Option {
	return func(o *options) {
		if pattern != "" {
			o.pattern = pattern
		}
	}
}

// New picks the store for path. An existing directory, or a path written with
// a trailing separator, becomes a DirStore (created if missing); anything else
// is a FileStore.
func New(path string, retrier *fileio.Retrier, opts ...Option) (Store, error) {
	o := &options{pattern: DefaultPattern}
	for _, opt := range opts {
		opt(o)
	}

	isDir := utils.HasTrailingSeparator(path)
	resolved, err := utils.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		isDir = true
	}

	if isDir {
		return NewDirStore(resolved, retrier, o.pattern)
	}
	return NewFileStore(resolved, retrier)
}
