package zipper

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"

	"github.com/osputil/osputil"
)

// FileZipper appends files to a zip archive on disk.
//
// Each AddToZip writes a complete new archive next to the original and
// renames it into place, so the archive on disk is valid after every call,
// including failed ones.
//
// A FileZipper is not safe for concurrent use.
type FileZipper struct {
	path      string
	mode      os.FileMode
	overwrite bool
	closed    bool
	opts      *options
}

// Open opens the zip archive at path for appending, creating an empty
// archive if none exists.
func Open(path string, opts ...Option) (*FileZipper, error) {
	const op = "construct"
	o := newOptions(opts)
	if err := o.checkAllowed(op, path); err != nil {
		return nil, err
	}
	z := &FileZipper{path: path, mode: 0o644, overwrite: o.overwrite, opts: o}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, osputil.Errorf(op, path, osputil.ErrInvalidArgument, "path is a directory")
		}
		z.mode = info.Mode().Perm()
		r, err := zip.OpenReader(path)
		if err != nil {
			return nil, osputil.NewError(op, path, osputil.ErrIO, err)
		}
		n := len(r.File)
		_ = r.Close()
		o.log.Debug("zip archive opened", "path", path, "entries", n)
	case errors.Is(err, os.ErrNotExist):
		if err := createEmpty(path); err != nil {
			return nil, fsError(op, path, err, osputil.ErrInvalidArgument)
		}
		o.log.Debug("zip archive created", "path", path)
	default:
		return nil, fsError(op, path, err, osputil.ErrInvalidArgument)
	}
	return z, nil
}

func createEmpty(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if err := zip.NewWriter(f).Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// Path returns the archive path.
func (z *FileZipper) Path() string { return z.path }

// OverwriteFlag reports whether AddToZip replaces entries with the same name.
func (z *FileZipper) OverwriteFlag() bool { return z.overwrite }

// SetOverwriteFlag sets whether AddToZip replaces entries with the same
// name. The default is false.
func (z *FileZipper) SetOverwriteFlag(flag bool) { z.overwrite = flag }

// Add adds the file at path under its base name with default compression.
func (z *FileZipper) Add(path string) error {
	return z.AddToZip(path, true, DefaultCompression)
}

// AddToZip adds the file at path to the archive. With excludePath the entry
// is named after the file's base name, otherwise after the full path as
// given. An existing entry with the same name is replaced only if the
// overwrite flag is set; otherwise ErrAlreadyExists is returned and the
// archive is left unchanged.
func (z *FileZipper) AddToZip(path string, excludePath bool, level Level) (err error) {
	const op = "add"
	var size int64
	defer func() {
		z.opts.metrics.ObserveEntry(size, err)
		if err != nil {
			z.opts.log.Debug("zip entry rejected", "archive", z.path, "source", path, "error", err)
		}
	}()
	if z.closed {
		return osputil.Errorf(op, z.path, osputil.ErrIO, "zipper is closed")
	}
	if !level.Valid() {
		return osputil.Errorf(op, path, osputil.ErrInvalidArgument, "invalid compression level %d", int(level))
	}
	if err := z.opts.checkAllowed(op, path); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fsError(op, path, err, osputil.ErrNotFound)
	}
	if info.IsDir() {
		return osputil.Errorf(op, path, osputil.ErrInvalidArgument, "path is a directory")
	}
	name, err := entryName(path, excludePath)
	if err != nil {
		return err
	}
	if err := z.rewrite(name, path, info, level); err != nil {
		return err
	}
	size = info.Size()
	z.opts.log.Debug("zip entry added", "archive", z.path, "entry", name, "size", size, "level", level.String())
	return nil
}

// rewrite copies the archive into a temporary file with the new entry
// added or replaced, then renames it over the archive.
func (z *FileZipper) rewrite(name, src string, info os.FileInfo, level Level) error {
	const op = "add"
	r, err := zip.OpenReader(z.path)
	if err != nil {
		return osputil.NewError(op, z.path, osputil.ErrIO, err)
	}
	defer r.Close()

	exists := false
	for _, f := range r.File {
		if f.Name == name {
			exists = true
			break
		}
	}
	if exists && !z.overwrite {
		return osputil.Errorf(op, name, osputil.ErrAlreadyExists, "entry exists in %s", z.path)
	}

	tmp := filepath.Join(filepath.Dir(z.path), "."+filepath.Base(z.path)+"."+uuid.NewString()+".tmp")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, z.mode)
	if err != nil {
		return fsError(op, z.path, err, osputil.ErrIO)
	}
	committed := false
	defer func() {
		if !committed {
			_ = out.Close()
			_ = os.Remove(tmp)
		}
	}()

	w := zip.NewWriter(out)
	w.RegisterCompressor(zip.Deflate, func(dst io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(dst, int(level))
	})
	w.SetComment(r.Comment)
	written := false
	for _, f := range r.File {
		if f.Name == name {
			// Replace the first occurrence in place and drop any others.
			if !written {
				if err := writeEntry(w, name, src, info); err != nil {
					return err
				}
				written = true
			}
			continue
		}
		if err := w.Copy(f); err != nil {
			return osputil.NewError(op, z.path, osputil.ErrIO, err)
		}
	}
	if !written {
		if err := writeEntry(w, name, src, info); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return osputil.NewError(op, z.path, osputil.ErrIO, err)
	}
	if err := out.Sync(); err != nil {
		return osputil.NewError(op, z.path, osputil.ErrIO, err)
	}
	if err := out.Close(); err != nil {
		return osputil.NewError(op, z.path, osputil.ErrIO, err)
	}
	_ = r.Close()
	if err := os.Rename(tmp, z.path); err != nil {
		_ = os.Remove(tmp)
		committed = true
		return fsError(op, z.path, err, osputil.ErrIO)
	}
	committed = true
	return nil
}

func writeEntry(w *zip.Writer, name, src string, info os.FileInfo) error {
	const op = "add"
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return osputil.NewError(op, src, osputil.ErrSystem, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	dst, err := w.CreateHeader(hdr)
	if err != nil {
		return osputil.NewError(op, src, osputil.ErrIO, err)
	}
	f, err := os.Open(src)
	if err != nil {
		return fsError(op, src, err, osputil.ErrNotFound)
	}
	defer f.Close()
	if _, err := io.Copy(dst, f); err != nil {
		return osputil.NewError(op, src, osputil.ErrIO, err)
	}
	return nil
}

// AddAll adds every path with the given settings, stopping at the first
// failure or when ctx is done. Entries added before a failure are kept.
func (z *FileZipper) AddAll(ctx context.Context, paths []string, excludePath bool, level Level) error {
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return osputil.NewError("add", p, osputil.ErrSystem, err)
		}
		if err := z.AddToZip(p, excludePath, level); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the zipper. Further AddToZip calls fail with ErrIO.
// Close is idempotent.
func (z *FileZipper) Close() error {
	if !z.closed {
		z.closed = true
		z.opts.log.LogAttrs(context.Background(), slog.LevelDebug, "zip archive closed", slog.String("path", z.path))
	}
	return nil
}
