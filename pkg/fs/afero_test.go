package fs_test

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recdb/pkg/fs"
)

func Test_Afero_WriteFileAtomic_Leaves_No_Temp_Files_When_Rename_Succeeds(t *testing.T) {
	t.Parallel()

	mem := afero.NewMemMapFs()
	fsys := fs.NewAfero(mem)

	require.NoError(t, fsys.MkdirAll("/data", 0o755))
	require.NoError(t, fsys.WriteFileAtomic("/data/store.json", []byte("v1"), 0o644))
	require.NoError(t, fsys.WriteFileAtomic("/data/store.json", []byte("v2"), 0o644))

	got, err := fsys.ReadFile("/data/store.json")
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))

	names, err := afero.ReadDir(mem, "/data")
	require.NoError(t, err)
	require.Len(t, names, 1)
	require.Equal(t, "store.json", names[0].Name())
}

func Test_Afero_OpenFile_Appends_When_O_APPEND_Given(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMemory()

	for _, chunk := range []string{"a", "b", "c"} {
		f, err := fsys.OpenFile("/log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		require.NoError(t, err)

		_, err = f.Write([]byte(chunk))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	got, err := fsys.ReadFile("/log")
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func Test_Afero_Access_Uses_Owner_Permission_Bits(t *testing.T) {
	t.Parallel()

	mem := afero.NewMemMapFs()
	fsys := fs.NewAfero(mem)

	require.NoError(t, afero.WriteFile(mem, "/ro", []byte("x"), 0o444))

	require.NoError(t, fsys.Access("/ro", fs.AccessRead))
	require.ErrorIs(t, fsys.Access("/ro", fs.AccessWrite), fs.ErrPermission)

	_, err := fsys.Stat("/missing")
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func Test_Chaos_Fails_Only_Matching_Paths_When_Match_Set(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewMemory(), 1, fs.ChaosConfig{
		WriteFailRate: 1,
		Match:         func(path string) bool { return path == "/bad" },
	})

	require.NoError(t, chaos.WriteFileAtomic("/good", []byte("ok"), 0o644))

	err := chaos.WriteFileAtomic("/bad", []byte("no"), 0o644)
	require.Error(t, err)
	require.Equal(t, int64(1), chaos.Injected())

	exists, err := chaos.Exists("/bad")
	require.NoError(t, err)
	require.False(t, exists)

	chaos.SetMode(fs.ChaosModeNoOp)
	require.NoError(t, chaos.WriteFileAtomic("/bad", []byte("now"), 0o644))
}

func Test_Chaos_File_Write_Fails_When_WriteFailRate_Is_One(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewMemory(), 7, fs.ChaosConfig{})

	f, err := chaos.OpenFile("/wal", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	require.NoError(t, err)

	chaos.SetConfig(fs.ChaosConfig{WriteFailRate: 1})

	_, err = f.Write([]byte("frame"))
	require.Error(t, err)
	require.NoError(t, f.Close())
}
