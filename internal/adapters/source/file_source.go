package source

import (
	"context"
	"os"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

// FileSource replays a saved upstream response from disk. The file is read
// again on every Fetch so it can be swapped between cycles.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &domain.FetchError{Op: "read " + s.path, Err: err}
	}
	return decodeSnapshot("read "+s.path, body)
}

var _ ports.Source = (*FileSource)(nil)
