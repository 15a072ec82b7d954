package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.bin")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	end, err := f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(5), end)

	_, err = f.Seek(1, io.SeekStart)
	require.NoError(t, err)
	b, err := io.ReadAll(io.LimitReader(f, 3))
	require.NoError(t, err)
	assert.Equal(t, "ell", string(b))
	require.NoError(t, f.Close())

	require.NoError(t, lfs.Truncate(fpath, 2))
	info, err := lfs.Stat(fpath)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size())

	renamed := filepath.Join(dir, "renamed.bin")
	require.NoError(t, lfs.Rename(fpath, renamed))
	require.NoError(t, lfs.Remove(renamed))
	_, err = lfs.Stat(renamed)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_CloseFailsAfterDurableWrite(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("shard", Fault{FailOnClose: true})

	fpath := filepath.Join(tmp, "shard-000.vec")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	err = f.Close()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInjected))
	assert.Equal(t, 1, ffs.Fired("shard"))

	b, err := os.ReadFile(fpath)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
}

func TestFaultyFS_TornWrite(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("torn", Fault{FailAfterBytes: 5})

	fpath := filepath.Join(tmp, "torn.bin")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	n, err := f.Write([]byte("hel"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.Write([]byte("lo world"))
	require.Error(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, f.Close())

	b, err := os.ReadFile(fpath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestFaultyFS_TimesAndReset(t *testing.T) {
	tmp := t.TempDir()
	custom := errors.New("disk on fire")
	ffs := NewFaultyFS(nil)
	ffs.AddRule("x.bin", Fault{FailOnSync: true, Times: 2, Err: custom})

	fpath := filepath.Join(tmp, "x.bin")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	assert.ErrorIs(t, f.Sync(), custom)
	assert.ErrorIs(t, f.Sync(), custom)
	assert.NoError(t, f.Sync())

	ffs.Reset()
	ffs.AddRule("x.bin", Fault{FailOnSeek: true, FailOnRead: true})
	g, err := ffs.OpenFile(fpath, os.O_RDONLY, 0)
	require.NoError(t, err)
	_, err = g.Seek(0, io.SeekEnd)
	assert.ErrorIs(t, err, ErrInjected)
	_, err = g.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrInjected)
	require.NoError(t, g.Close())
}

func TestFaultyFS_OpenAndRename(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("locked", Fault{FailOnOpen: true, FailOnRename: true})

	_, err := ffs.OpenFile(filepath.Join(tmp, "locked.bin"), os.O_CREATE|os.O_RDWR, 0o644)
	assert.ErrorIs(t, err, ErrInjected)

	src := filepath.Join(tmp, "a.bin")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
	assert.ErrorIs(t, ffs.Rename(src, filepath.Join(tmp, "locked.bin")), ErrInjected)
	assert.NoError(t, ffs.Rename(src, filepath.Join(tmp, "b.bin")))
}

func TestExcludeFromBackup(t *testing.T) {
	assert.NoError(t, ExcludeFromBackup(t.TempDir()))
}
