package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillFromVCS(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-01-15T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	t.Run("fills empty fields", func(t *testing.T) {
		i := Info{Version: "dev"}
		i.fillFromVCS(settings)
		assert.Equal(t, "0123456789abcdef", i.CommitHash)
		assert.Equal(t, "2026-01-15T10:00:00Z", i.BuildTime)
		assert.True(t, i.Modified)
		assert.Equal(t, "0123456", i.Short())
	})

	t.Run("ldflags win", func(t *testing.T) {
		i := Info{CommitHash: "feedface", BuildTime: "yesterday"}
		i.fillFromVCS(settings)
		assert.Equal(t, "feedface", i.CommitHash)
		assert.Equal(t, "yesterday", i.BuildTime)
	})
}

func TestInfoString(t *testing.T) {
	tagged := Info{Version: "1.4.0", CommitHash: "0123456789", BuildTime: "2026-01-15"}
	assert.Equal(t, "catalog v1.4.0 (commit 0123456, built 2026-01-15)", tagged.String())

	sv, err := tagged.Semver()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), sv.Minor())

	dev := Info{Version: "dev", CommitHash: "abc", BuildTime: "unknown", Modified: true}
	assert.Equal(t, "catalog dev (commit abc, built unknown, modified)", dev.String())
	_, err = dev.Semver()
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.CommitHash)
	assert.NotEmpty(t, info.BuildTime)
	assert.Contains(t, info.Platform, "/")
}
