package sources

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/panorama-game/rating-server/internal/ranking"
)

// fileSource reads a players document from the local filesystem.
// The document may be YAML or JSON.
type fileSource struct {
	path string
}

var _ RankingSource = (*fileSource)(nil)

// NewFileSource creates a source reading the players document at path
func NewFileSource(path string) RankingSource {
	return &fileSource{path: path}
}

// Name returns the source name
func (*fileSource) Name() string {
	return "file"
}

// FetchAll reads and parses the whole file on every call
func (s *fileSource) FetchAll(ctx context.Context) ([]ranking.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, ranking.NewDataAccessError(s.Name(), err)
	}

	//nolint:gosec // path comes from operator configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ranking.NewDataAccessError(s.Name(), fmt.Errorf("file not found: %s", s.path))
		}
		return nil, ranking.NewDataAccessError(s.Name(), fmt.Errorf("failed to read file %s: %w", s.path, err))
	}

	records, err := decodeYAMLPlayers(data)
	if errors.Is(err, errDocument) {
		return nil, ranking.NewDataAccessError(s.Name(), fmt.Errorf("failed to parse %s: %w", s.path, err))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	return records, nil
}
