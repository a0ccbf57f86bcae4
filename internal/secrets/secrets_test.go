// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingDirReturnsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestLoadReadsTrimmedValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, BraveSearchAPIKey), []byte("  tok-123\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty"), []byte("   \n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	s, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{BraveSearchAPIKey: "tok-123"}, s)
}

func TestResolvePrefersLoadedOverEnv(t *testing.T) {
	t.Setenv("KA_TEST_KEY", "from-env")

	got := Resolve(map[string]string{BraveSearchAPIKey: "from-file"}, BraveSearchAPIKey, "KA_TEST_KEY")
	assert.Equal(t, "from-file", got)

	got = Resolve(map[string]string{}, BraveSearchAPIKey, "KA_TEST_KEY")
	assert.Equal(t, "from-env", got)

	got = Resolve(nil, BraveSearchAPIKey, "KA_TEST_UNSET")
	assert.Equal(t, "", got)
}
