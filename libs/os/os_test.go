package os_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	tpfos "github.com/cellfuzz/txpoolfuzz/libs/os"
)

func TestEnsureDir(t *testing.T) {
	tmp := t.TempDir()

	dir := filepath.Join(tmp, "a", "b")
	require.NoError(t, tpfos.EnsureDir(dir, 0o700))
	require.True(t, tpfos.IsDir(dir))
	require.NoError(t, tpfos.EnsureDir(dir, 0o700))

	file := filepath.Join(tmp, "file")
	require.NoError(t, os.WriteFile(file, []byte{}, 0o600))
	require.Error(t, tpfos.EnsureDir(file, 0o700))
	require.True(t, tpfos.FileExists(file))
	require.False(t, tpfos.IsDir(file))
	require.False(t, tpfos.FileExists(filepath.Join(tmp, "missing")))
}
