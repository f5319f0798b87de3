package versions

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionInfo(t *testing.T) {
	t.Parallel()

	noVCS := func() (string, string) { return "", "" }
	withVCS := func() (string, string) { return "0123456789abcdef", "2024-05-01T12:00:00Z" }

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
		vcs       func() (string, string)
		expected  VersionInfo
	}{
		{
			name:      "release build",
			version:   "v1.4.0",
			commit:    "abcdef12",
			buildDate: "2024-05-01T12:00:00Z",
			vcs:       withVCS,
			expected: VersionInfo{
				Version:   "v1.4.0",
				Commit:    "abcdef12",
				BuildDate: "2024-05-01 12:00:00 UTC",
			},
		},
		{
			name:      "dev build named after VCS revision",
			version:   "dev",
			commit:    unknownStr,
			buildDate: unknownStr,
			vcs:       withVCS,
			expected: VersionInfo{
				Version:   "build-01234567",
				Commit:    "0123456789abcdef",
				BuildDate: "2024-05-01 12:00:00 UTC",
			},
		},
		{
			name:      "dev build without VCS information",
			version:   "dev",
			commit:    unknownStr,
			buildDate: unknownStr,
			vcs:       noVCS,
			expected: VersionInfo{
				Version:   "dev",
				Commit:    unknownStr,
				BuildDate: unknownStr,
			},
		},
		{
			name:      "unparseable build date kept as is",
			version:   "v2.0.0",
			commit:    "deadbeef",
			buildDate: "yesterday",
			vcs:       noVCS,
			expected: VersionInfo{
				Version:   "v2.0.0",
				Commit:    "deadbeef",
				BuildDate: "yesterday",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := versionInfo(tt.version, tt.commit, tt.buildDate, tt.vcs)

			tt.expected.GoVersion = runtime.Version()
			tt.expected.Platform = runtime.GOOS + "/" + runtime.GOARCH
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	assert.Contains(t, UserAgent(), "rating-server/")
}
