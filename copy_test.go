package scratchdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTree creates files under root from relative path -> content.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}
}

// requireTreeEqual checks that every expected relative path exists under root
// with the given content, and that nothing else does.
func requireTreeEqual(t *testing.T, root string, files map[string]string) {
	t.Helper()
	found := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		rel = filepath.ToSlash(rel)
		content, ok := files[rel]
		require.True(t, ok, "unexpected file %s", rel)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, content, string(data), "content mismatch for %s", rel)
		found++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, len(files), found)
}

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	dir, err := New("dst", WithBaseDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })
	return dir
}

func TestCopyReplicatesTree(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"a.txt":           "hello",
		"sub/b.txt":       "world",
		"sub/deep/c.bin":  "\x00\x01\x02",
		"other/empty.txt": "",
	}
	writeTree(t, src, files)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "emptydir"), 0o750))

	dir := newTestDir(t)
	require.NoError(t, dir.Copy(context.Background(), src))

	requireTreeEqual(t, dir.Path(), files)
	require.DirExists(t, filepath.Join(dir.Path(), "emptydir"))
}

func TestCopySkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	src := t.TempDir()
	files := map[string]string{
		"a.txt":     "hello",
		"sub/b.txt": "world",
	}
	writeTree(t, src, files)
	require.NoError(t, os.Symlink(filepath.Join(src, "a.txt"), filepath.Join(src, "link-to-file")))
	require.NoError(t, os.Symlink(filepath.Join(src, "sub"), filepath.Join(src, "link-to-dir")))

	dir := newTestDir(t)
	require.NoError(t, dir.Copy(context.Background(), src))

	requireTreeEqual(t, dir.Path(), files)
	require.NoFileExists(t, filepath.Join(dir.Path(), "link-to-file"))
	require.NoDirExists(t, filepath.Join(dir.Path(), "link-to-dir"))
}

func TestCopyDoesNotFollowCyclicSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	src := t.TempDir()
	writeTree(t, src, map[string]string{"sub/b.txt": "world"})
	// cycle: src/sub/loop -> src
	require.NoError(t, os.Symlink(src, filepath.Join(src, "sub", "loop")))

	dir := newTestDir(t)
	require.NoError(t, dir.Copy(context.Background(), src))

	requireTreeEqual(t, dir.Path(), map[string]string{"sub/b.txt": "world"})
}

func TestCopyIntoClosedHandleFails(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello"})

	dir, err := New("dst", WithBaseDir(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, dir.Close())

	err = dir.Copy(context.Background(), src)
	require.Error(t, err)
	require.True(t, IsKind(err, KindCopy))
	require.Contains(t, err.Error(), dir.Path())
}

func TestCopyMissingSourceFails(t *testing.T) {
	dir := newTestDir(t)
	err := dir.Copy(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	require.True(t, IsKind(err, KindCopy))
}

func TestCopyNonDirectorySourceFails(t *testing.T) {
	src := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	dir := newTestDir(t)
	err := dir.Copy(context.Background(), src)
	require.Error(t, err)
	require.True(t, IsKind(err, KindCopy))
}

func TestCopySymlinkSourceFails(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(target, link))

	dir := newTestDir(t)
	err := dir.Copy(context.Background(), link)
	require.Error(t, err)
	require.True(t, IsKind(err, KindCopy))
}

func TestCopyFailureLeavesPartialState(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":         "hello",
		"z_dir/inner.txt": "inner",
	})

	dir := newTestDir(t)
	// Occupy the destination path the traversal needs for z_dir with a
	// regular file, so the mkdir mid-copy fails deterministically.
	require.NoError(t, os.WriteFile(filepath.Join(dir.Path(), "z_dir"), []byte("in the way"), 0o600))

	err := dir.Copy(context.Background(), src)
	require.Error(t, err)
	require.True(t, IsKind(err, KindCopy))
	require.Contains(t, err.Error(), "z_dir")

	// non-atomicity is a contract: a.txt was copied before the failure and stays
	data, err := os.ReadFile(filepath.Join(dir.Path(), "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestCopyUnreadableFileFails(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	src := t.TempDir()
	writeTree(t, src, map[string]string{"secret.txt": "x"})
	require.NoError(t, os.Chmod(filepath.Join(src, "secret.txt"), 0o000))

	dir := newTestDir(t)
	err := dir.Copy(context.Background(), src)
	require.Error(t, err)
	require.True(t, IsKind(err, KindCopy))
	require.Contains(t, err.Error(), "secret.txt")
}

func TestCopyWithConcurrency(t *testing.T) {
	src := t.TempDir()
	files := make(map[string]string, 60)
	for i := range 20 {
		files[fmt.Sprintf("f%02d.txt", i)] = fmt.Sprintf("content-%d", i)
		files[fmt.Sprintf("sub/f%02d.txt", i)] = fmt.Sprintf("nested-%d", i)
		files[fmt.Sprintf("sub/deep/f%02d.txt", i)] = fmt.Sprintf("deep-%d", i)
	}
	writeTree(t, src, files)

	dir := newTestDir(t)
	require.NoError(t, dir.Copy(context.Background(), src, WithConcurrency(8)))
	requireTreeEqual(t, dir.Path(), files)
}

func TestCopyWithConcurrencyFailsFast(t *testing.T) {
	src := t.TempDir()
	files := make(map[string]string, 30)
	for i := range 30 {
		files[fmt.Sprintf("f%02d.txt", i)] = "x"
	}
	writeTree(t, src, files)
	writeTree(t, src, map[string]string{"zz_last/inner.txt": "inner"})

	dir := newTestDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir.Path(), "zz_last"), []byte("in the way"), 0o600))

	err := dir.Copy(context.Background(), src, WithConcurrency(4))
	require.Error(t, err)
	require.True(t, IsKind(err, KindCopy))
}

func TestCopyHonorsContextCancellation(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := newTestDir(t)
	err := dir.Copy(ctx, src)
	require.Error(t, err)
	require.True(t, IsKind(err, KindCopy))
	require.ErrorIs(t, err, context.Canceled)
}

func TestCopySameSourceTwiceSucceeds(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"sub/a.txt":      "v1",
		"sub/deep/b.txt": "nested",
	})

	dir := newTestDir(t)
	require.NoError(t, dir.Copy(context.Background(), src))

	// The second pass meets every directory it needs already in place.
	writeTree(t, src, map[string]string{"sub/a.txt": "v2"})
	require.NoError(t, dir.Copy(context.Background(), src))

	requireTreeEqual(t, dir.Path(), map[string]string{
		"sub/a.txt":      "v2",
		"sub/deep/b.txt": "nested",
	})
}

func TestCopyCanBeRepeatedIntoSameHandle(t *testing.T) {
	first := t.TempDir()
	writeTree(t, first, map[string]string{"a/one.txt": "1"})
	second := t.TempDir()
	writeTree(t, second, map[string]string{"b/two.txt": "2"})

	dir := newTestDir(t)
	require.NoError(t, dir.Copy(context.Background(), first))
	require.NoError(t, dir.Copy(context.Background(), second))

	requireTreeEqual(t, dir.Path(), map[string]string{
		"a/one.txt": "1",
		"b/two.txt": "2",
	})
}
