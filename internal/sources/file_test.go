package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panorama-game/rating-server/internal/ranking"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestFileSource_FetchAll(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fileName string
		content  string
		expected []ranking.Record
	}{
		{
			name:     "yaml document",
			fileName: "players.yaml",
			content: `players:
  - {nickname: A, rating: 1500, matches_number: 10, login: loginA, id: 1}
  - {nickname: B, rating: 1400, matches_number: 5, login: loginB, id: 2}`,
			expected: []ranking.Record{
				ranking.NewRecord("A", 1500, 10, "loginA", 1),
				ranking.NewRecord("B", 1400, 5, "loginB", 2),
			},
		},
		{
			name:     "json document",
			fileName: "players.json",
			content:  `{"players": [{"nickname": "C", "rating": 1400, "matches_number": 20, "login": "loginC", "id": 3}]}`,
			expected: []ranking.Record{
				ranking.NewRecord("C", 1400, 20, "loginC", 3),
			},
		},
		{
			name:     "missing fields stay nil",
			fileName: "partial.yaml",
			content:  `players: [{nickname: D, id: 4}]`,
			expected: []ranking.Record{
				{Nickname: ptr("D"), ID: ptr(int64(4))},
			},
		},
		{
			name:     "empty document",
			fileName: "empty.yaml",
			content:  `players: []`,
			expected: []ranking.Record{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			source := NewFileSource(writeFile(t, tt.fileName, tt.content))
			assert.Equal(t, "file", source.Name())

			records, err := source.FetchAll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, records)
		})
	}
}

func TestFileSource_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		ctx     func() context.Context
		wantErr string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.yaml") },
			ctx:     context.Background,
			wantErr: "file not found",
		},
		{
			name:    "invalid document",
			path:    func(t *testing.T) string { return writeFile(t, "bad.yaml", "players: [") },
			ctx:     context.Background,
			wantErr: "failed to parse",
		},
		{
			name: "cancelled context",
			path: func(t *testing.T) string { return writeFile(t, "ok.yaml", "players: []") },
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: "context canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewFileSource(tt.path(t)).FetchAll(tt.ctx())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var dae *ranking.DataAccessError
			require.True(t, errors.As(err, &dae))
			assert.Equal(t, "file", dae.Source)
		})
	}
}

func TestFileSource_MalformedRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		wantIndex int
		wantField string
	}{
		{
			name: "yaml rating is text",
			content: `players:
  - {nickname: A, rating: 1500, matches_number: 10, login: loginA, id: 1}
  - {nickname: B, rating: abc, matches_number: 5, login: loginB, id: 2}`,
			wantIndex: 1,
			wantField: "rating",
		},
		{
			name:      "json id is text",
			content:   `{"players": [{"nickname": "C", "rating": 1400, "matches_number": 20, "login": "loginC", "id": "three"}]}`,
			wantIndex: 0,
			wantField: "id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewFileSource(writeFile(t, "players.yaml", tt.content)).FetchAll(context.Background())
			require.Error(t, err)

			var malformed *ranking.MalformedRecordError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.wantIndex, malformed.Index)
			assert.Equal(t, tt.wantField, malformed.Field)
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
