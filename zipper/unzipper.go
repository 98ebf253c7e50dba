package zipper

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/osputil/osputil"
)

// Entry describes one member of a zip archive.
type Entry struct {
	Name             string
	ArchiveName      string
	Comment          string
	CompressedSize   int64
	UncompressedSize int64
	CRC32            uint32
	Method           uint16
	Modified         time.Time
	IsDirectory      bool
}

func newEntry(archive string, f *zip.File) Entry {
	return Entry{
		Name:             f.Name,
		ArchiveName:      archive,
		Comment:          f.Comment,
		CompressedSize:   int64(f.CompressedSize64),
		UncompressedSize: int64(f.UncompressedSize64),
		CRC32:            f.CRC32,
		Method:           f.Method,
		Modified:         f.Modified,
		IsDirectory:      isDir(f),
	}
}

func isDir(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
}

// FileUnzipper reads and extracts a zip archive.
type FileUnzipper struct {
	path string
	r    *zip.ReadCloser
	opts *options
}

// OpenReader opens the zip archive at path.
func OpenReader(path string, opts ...Option) (*FileUnzipper, error) {
	const op = "open"
	o := newOptions(opts)
	if err := o.checkAllowed(op, path); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fsError(op, path, err, osputil.ErrNotFound)
	}
	r, err := zip.OpenReader(path)
	if err != nil && !(r != nil && errors.Is(err, zip.ErrInsecurePath)) {
		return nil, osputil.NewError(op, path, osputil.ErrIO, err)
	}
	return &FileUnzipper{path: path, r: r, opts: o}, nil
}

// Close closes the archive.
func (u *FileUnzipper) Close() error {
	return u.r.Close()
}

// EntryCount returns the number of entries in the archive.
func (u *FileUnzipper) EntryCount() int { return len(u.r.File) }

// FileCount returns the number of file entries in the archive.
func (u *FileUnzipper) FileCount() int {
	return u.EntryCount() - u.DirectoryCount()
}

// DirectoryCount returns the number of directory entries in the archive.
func (u *FileUnzipper) DirectoryCount() int {
	n := 0
	for _, f := range u.r.File {
		if isDir(f) {
			n++
		}
	}
	return n
}

// Entries returns all entries in archive order.
func (u *FileUnzipper) Entries() []Entry {
	entries := make([]Entry, len(u.r.File))
	for i, f := range u.r.File {
		entries[i] = newEntry(u.path, f)
	}
	return entries
}

// Entry returns the entry with the given name. Directory names end in "/".
func (u *FileUnzipper) Entry(name string) (Entry, error) {
	if name == "" {
		return Entry{}, osputil.Errorf("entry", u.path, osputil.ErrInvalidArgument, "empty entry name")
	}
	for _, f := range u.r.File {
		if f.Name == name {
			return newEntry(u.path, f), nil
		}
	}
	return Entry{}, osputil.Errorf("entry", name, osputil.ErrNotFound, "no such entry in %s", u.path)
}

// EntryAt returns the i-th entry in archive order.
func (u *FileUnzipper) EntryAt(i int) (Entry, error) {
	if i < 0 || i >= len(u.r.File) {
		return Entry{}, osputil.Errorf("entry", u.path, osputil.ErrInvalidArgument, "index %d out of range [0, %d)", i, len(u.r.File))
	}
	return newEntry(u.path, u.r.File[i]), nil
}

// UnzipTo extracts every entry under dir, creating it if needed.
func (u *FileUnzipper) UnzipTo(ctx context.Context, dir string) error {
	return u.extract(ctx, dir, u.r.File)
}

// UnzipEntryTo extracts a single entry under dir. If name is a directory
// entry (ending in "/"), the directory and everything beneath it are
// extracted. A leading "/" is ignored, so "/docs/" matches "docs/" and "/"
// extracts the whole archive.
func (u *FileUnzipper) UnzipEntryTo(ctx context.Context, dir, name string) error {
	if name == "" {
		return osputil.Errorf("unzip", u.path, osputil.ErrInvalidArgument, "empty entry name")
	}
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return u.extract(ctx, dir, u.r.File)
	}
	var files []*zip.File
	for _, f := range u.r.File {
		if f.Name == name || (strings.HasSuffix(name, "/") && strings.HasPrefix(f.Name, name)) {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return osputil.Errorf("unzip", name, osputil.ErrNotFound, "no such entry in %s", u.path)
	}
	return u.extract(ctx, dir, files)
}

func (u *FileUnzipper) extract(ctx context.Context, dir string, files []*zip.File) error {
	const op = "unzip"
	if err := ctx.Err(); err != nil {
		return osputil.NewError(op, u.path, osputil.ErrSystem, err)
	}
	if err := u.opts.checkAllowed(op, dir); err != nil {
		return err
	}
	// Resolve every target before writing anything.
	targets := make([]string, len(files))
	last := make(map[string]int, len(files))
	for i, f := range files {
		t, err := safeJoin(dir, f.Name)
		if err != nil {
			return err
		}
		targets[i] = t
		last[t] = i
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fsError(op, dir, err, osputil.ErrInvalidArgument)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.workers)
	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		target := targets[i]
		// Of entries sharing a target, only the last one in archive order is written.
		if last[target] != i {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := extractFile(f, target); err != nil {
				return err
			}
			u.opts.metrics.ObserveExtract()
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return osputil.NewError(op, u.path, osputil.ErrSystem, err)
		}
		return err
	}
	u.opts.log.Debug("zip archive extracted", "archive", u.path, "dir", dir, "entries", len(files))
	return nil
}

// safeJoin joins an entry name to dir, rejecting names that escape it.
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(filepath.Clean(dir), target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", osputil.Errorf("unzip", name, osputil.ErrInvalidArgument, "entry escapes destination directory")
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	const op = "unzip"
	if isDir(f) {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fsError(op, target, err, osputil.ErrIO)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fsError(op, target, err, osputil.ErrIO)
	}
	rc, err := f.Open()
	if err != nil {
		return osputil.NewError(op, f.Name, osputil.ErrIO, err)
	}
	defer rc.Close()
	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fsError(op, target, err, osputil.ErrIO)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return osputil.NewError(op, f.Name, osputil.ErrIO, err)
	}
	if err := out.Close(); err != nil {
		return fsError(op, target, err, osputil.ErrIO)
	}
	return nil
}
