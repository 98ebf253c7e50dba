package zipper

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/osputil/osputil"
)

// Limits applied to caller supplied paths.
const (
	maxPathLen = 4096
	maxNameLen = 255
)

// SharedDenylist returns the data and trusted directories under an
// application's shared root, which are never valid archive locations.
func SharedDenylist(sharedRoot string) []string {
	if sharedRoot == "" {
		return nil
	}
	return []string{
		filepath.Join(sharedRoot, "data"),
		filepath.Join(sharedRoot, "trusted"),
	}
}

// validatePath rejects empty, overlong and NUL-containing paths.
func validatePath(op, p string) error {
	switch {
	case p == "":
		return osputil.Errorf(op, p, osputil.ErrInvalidArgument, "empty path")
	case len(p) > maxPathLen:
		return osputil.Errorf(op, "", osputil.ErrInvalidArgument, "path exceeds %d bytes", maxPathLen)
	case strings.IndexByte(p, 0) >= 0:
		return osputil.Errorf(op, "", osputil.ErrInvalidArgument, "path contains NUL")
	}
	for _, name := range strings.Split(filepath.ToSlash(p), "/") {
		if len(name) > maxNameLen {
			return osputil.Errorf(op, p, osputil.ErrInvalidArgument, "path component exceeds %d bytes", maxNameLen)
		}
	}
	return nil
}

// checkAllowed validates p and rejects it if it lies under a denied prefix.
func (o *options) checkAllowed(op, p string) error {
	if err := validatePath(op, p); err != nil {
		return err
	}
	if len(o.denied) == 0 {
		return nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return osputil.NewError(op, p, osputil.ErrInvalidArgument, err)
	}
	for _, prefix := range o.denied {
		if prefix == "" {
			continue
		}
		if under(abs, prefix) {
			return osputil.Errorf(op, p, osputil.ErrIllegalAccess, "path under %s is not permitted", prefix)
		}
	}
	return nil
}

// under reports whether p equals dir or is inside it.
func under(p, dir string) bool {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	if p == dir {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}

// entryName returns the archive entry name for a source file. With
// excludePath only the base name is kept. Otherwise the path is stored as
// given, minus any volume or leading separator, so "/Test/data.txt"
// extracts to "<dir>/Test/data.txt".
func entryName(src string, excludePath bool) (string, error) {
	if excludePath {
		return filepath.Base(src), nil
	}
	name := filepath.ToSlash(strings.TrimPrefix(src, filepath.VolumeName(src)))
	name = strings.TrimLeft(path.Clean(name), "/")
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return "", osputil.Errorf("add", src, osputil.ErrInvalidArgument, "path cannot be stored as an entry name")
	}
	return name, nil
}

// fsError maps a file system error to an osputil error kind.
// notExist is the kind used for fs.ErrNotExist.
func fsError(op, p string, err error, notExist error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return osputil.NewError(op, p, notExist, err)
	case errors.Is(err, fs.ErrPermission):
		return osputil.NewError(op, p, osputil.ErrIllegalAccess, err)
	case errors.Is(err, syscall.ENAMETOOLONG), errors.Is(err, syscall.ENOTDIR), errors.Is(err, syscall.EINVAL):
		return osputil.NewError(op, p, osputil.ErrInvalidArgument, err)
	default:
		return osputil.NewError(op, p, osputil.ErrIO, err)
	}
}
