package zipper

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osputil/osputil"
	"github.com/osputil/osputil/internal/metrics"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// readArchive returns the entries of the archive at path, keyed by name,
// using the standard library reader.
func readArchive(t *testing.T, path string) (names []string, content map[string]string) {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	content = make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		names = append(names, f.Name)
		content[f.Name] = string(b)
	}
	return names, content
}

func TestOpenCreatesEmptyArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.zip")
	z, err := Open(path)
	require.NoError(t, err)
	defer z.Close()

	assert.Equal(t, path, z.Path())
	assert.False(t, z.OverwriteFlag())
	names, _ := readArchive(t, path)
	assert.Empty(t, names)
}

func TestAddToZipExcludePath(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	src := writeFile(t, filepath.Join(dir, "data1.txt"), "hello zip")

	z, err := Open(archive)
	require.NoError(t, err)
	require.NoError(t, z.AddToZip(src, true, DefaultCompression))

	names, content := readArchive(t, archive)
	assert.Equal(t, []string{"data1.txt"}, names)
	assert.Equal(t, "hello zip", content["data1.txt"])
}

func TestAddToZipFullPath(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	src := writeFile(t, filepath.Join(dir, "dataDir", "data2.txt"), "nested")

	z, err := Open(archive)
	require.NoError(t, err)
	require.NoError(t, z.AddToZip(src, false, BestSpeed))

	want := strings.TrimLeft(filepath.ToSlash(src), "/")
	names, content := readArchive(t, archive)
	assert.Equal(t, []string{want}, names)
	assert.Equal(t, "nested", content[want])
}

func TestAddToZipDuplicate(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	first := writeFile(t, filepath.Join(dir, "one", "data.txt"), "first")
	second := writeFile(t, filepath.Join(dir, "two", "data.txt"), "second")

	z, err := Open(archive)
	require.NoError(t, err)
	require.NoError(t, z.Add(first))

	err = z.Add(second)
	require.Error(t, err)
	assert.True(t, osputil.IsAlreadyExists(err))
	_, content := readArchive(t, archive)
	assert.Equal(t, "first", content["data.txt"], "the first entry is left intact")

	z.SetOverwriteFlag(true)
	assert.True(t, z.OverwriteFlag())
	require.NoError(t, z.Add(second))
	names, content := readArchive(t, archive)
	assert.Equal(t, []string{"data.txt"}, names)
	assert.Equal(t, "second", content["data.txt"])
}

func TestOverwriteKeepsEntryOrder(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	a := writeFile(t, filepath.Join(dir, "a.txt"), "a")
	b := writeFile(t, filepath.Join(dir, "b.txt"), "b")
	c := writeFile(t, filepath.Join(dir, "c.txt"), "c")

	z, err := Open(archive, WithOverwrite(true))
	require.NoError(t, err)
	require.NoError(t, z.AddAll(context.Background(), []string{a, b, c}, true, BestCompression))
	require.NoError(t, os.WriteFile(b, []byte("b2"), 0o644))
	require.NoError(t, z.Add(b))

	names, content := readArchive(t, archive)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names)
	assert.Equal(t, "b2", content["b.txt"])
	assert.Equal(t, "c", content["c.txt"])
}

func TestOpenAppendsToExisting(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	a := writeFile(t, filepath.Join(dir, "a.txt"), "a")
	b := writeFile(t, filepath.Join(dir, "b.txt"), "b")

	z, err := Open(archive)
	require.NoError(t, err)
	require.NoError(t, z.Add(a))
	require.NoError(t, z.Close())

	z, err = Open(archive)
	require.NoError(t, err)
	require.NoError(t, z.Add(b))

	names, _ := readArchive(t, archive)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestAddToZipErrors(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	src := writeFile(t, filepath.Join(dir, "a.txt"), "a")
	z, err := Open(archive)
	require.NoError(t, err)

	t.Run("NotFound", func(t *testing.T) {
		err := z.Add(filepath.Join(dir, "missing.txt"))
		assert.True(t, osputil.IsNotFound(err))
	})
	t.Run("EmptyPath", func(t *testing.T) {
		err := z.Add("")
		assert.True(t, osputil.IsInvalidArgument(err))
	})
	t.Run("NUL", func(t *testing.T) {
		err := z.Add("a\x00b")
		assert.True(t, osputil.IsInvalidArgument(err))
	})
	t.Run("LongComponent", func(t *testing.T) {
		err := z.Add(filepath.Join(dir, strings.Repeat("x", 300)))
		assert.True(t, osputil.IsInvalidArgument(err))
	})
	t.Run("LongPath", func(t *testing.T) {
		err := z.Add(strings.Repeat("a/", 2100))
		assert.True(t, osputil.IsInvalidArgument(err))
	})
	t.Run("Directory", func(t *testing.T) {
		err := z.Add(dir)
		assert.True(t, osputil.IsInvalidArgument(err))
	})
	t.Run("Level", func(t *testing.T) {
		err := z.AddToZip(src, true, Level(42))
		assert.True(t, osputil.IsInvalidArgument(err))
	})

	// Failed calls leave the archive usable.
	require.NoError(t, z.Add(src))
	names, _ := readArchive(t, archive)
	assert.Equal(t, []string{"a.txt"}, names)

	t.Run("Closed", func(t *testing.T) {
		require.NoError(t, z.Close())
		require.NoError(t, z.Close())
		err := z.Add(src)
		assert.True(t, osputil.IsIO(err))
	})
}

func TestNoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	src := writeFile(t, filepath.Join(dir, "a.txt"), "a")
	z, err := Open(archive)
	require.NoError(t, err)
	require.NoError(t, z.Add(src))
	require.Error(t, z.Add(src))

	matches, err := filepath.Glob(filepath.Join(dir, ".a.zip.*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("Empty", func(t *testing.T) {
		_, err := Open("")
		assert.True(t, osputil.IsInvalidArgument(err))
	})
	t.Run("Directory", func(t *testing.T) {
		_, err := Open(dir)
		assert.True(t, osputil.IsInvalidArgument(err))
	})
	t.Run("MissingParent", func(t *testing.T) {
		_, err := Open(filepath.Join(dir, "no", "such", "a.zip"))
		assert.True(t, osputil.IsInvalidArgument(err))
	})
	t.Run("NotAZip", func(t *testing.T) {
		path := writeFile(t, filepath.Join(dir, "plain.zip"), "not a zip")
		_, err := Open(path)
		assert.True(t, osputil.IsIO(err))
	})
}

func TestDeniedPrefixes(t *testing.T) {
	dir := t.TempDir()
	shared := filepath.Join(dir, "shared")
	denied := SharedDenylist(shared)
	require.Len(t, denied, 2)

	_, err := Open(filepath.Join(shared, "data", "a.zip"), WithDeniedPrefixes(denied...))
	assert.True(t, osputil.IsIllegalAccess(err))
	assert.True(t, osputil.IsIO(err))

	_, err = Open(filepath.Join(shared, "trusted"), WithDeniedPrefixes(denied...))
	assert.True(t, osputil.IsIllegalAccess(err))

	// Siblings sharing a name prefix are allowed.
	require.NoError(t, os.MkdirAll(filepath.Join(shared, "database"), 0o755))
	z, err := Open(filepath.Join(shared, "database", "a.zip"), WithDeniedPrefixes(denied...))
	require.NoError(t, err)

	src := writeFile(t, filepath.Join(shared, "data", "x.txt"), "x")
	err = z.Add(src)
	assert.True(t, osputil.IsIllegalAccess(err))

	assert.Nil(t, SharedDenylist(""))
}

func TestZipperLoggingAndMetrics(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	rec := metrics.New()
	z, err := Open(filepath.Join(dir, "a.zip"),
		WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithMetrics(rec),
	)
	require.NoError(t, err)
	src := writeFile(t, filepath.Join(dir, "a.txt"), "abc")
	require.NoError(t, z.Add(src))
	require.Error(t, z.Add(src))

	assert.Contains(t, buf.String(), "zip archive created")
	assert.Contains(t, buf.String(), "zip entry added")
	assert.Contains(t, buf.String(), "zip entry rejected")

	const want = `
# HELP osputil_zip_bytes_total Uncompressed bytes written into zip archives.
# TYPE osputil_zip_bytes_total counter
osputil_zip_bytes_total 3
# HELP osputil_zip_entries_total Total number of zip entries added.
# TYPE osputil_zip_entries_total counter
osputil_zip_entries_total{result="error"} 1
osputil_zip_entries_total{result="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(want),
		"osputil_zip_entries_total", "osputil_zip_bytes_total"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"", DefaultCompression},
		{"default", DefaultCompression},
		{"speed", BestSpeed},
		{"fastest", BestSpeed},
		{"best", BestCompression},
		{"none", NoCompression},
		{"5", Level(5)},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, got.Valid())
	}
	_, err := ParseLevel("max")
	assert.True(t, osputil.IsInvalidArgument(err))

	assert.Equal(t, "best", BestCompression.String())
	assert.Equal(t, "level-5", Level(5).String())
	assert.False(t, Level(10).Valid())
	assert.False(t, Level(-2).Valid())
}

func TestEntryName(t *testing.T) {
	name, err := entryName("/Test/data.txt", false)
	require.NoError(t, err)
	assert.Equal(t, "Test/data.txt", name)

	name, err = entryName("/Test/data.txt", true)
	require.NoError(t, err)
	assert.Equal(t, "data.txt", name)

	name, err = entryName("./dir/../data.txt", false)
	require.NoError(t, err)
	assert.Equal(t, "data.txt", name)

	_, err = entryName("../data.txt", false)
	assert.True(t, osputil.IsInvalidArgument(err))
}
