package osputil

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the kind of a failure.
var (
	// ErrInvalidArgument is returned when a required input is missing or malformed.
	ErrInvalidArgument = errors.New("osputil: invalid argument")

	// ErrNotFound is returned when a source file or archive entry does not exist.
	ErrNotFound = errors.New("osputil: not found")

	// ErrAlreadyExists is returned when an archive entry with the same name
	// exists and overwriting is disabled.
	ErrAlreadyExists = errors.New("osputil: already exists")

	// ErrIllegalAccess is returned when a path is not permitted or access is
	// denied by the operating system. It also matches ErrIO.
	ErrIllegalAccess = errors.New("osputil: illegal access")

	// ErrIO is returned on an unexpected device or file system failure.
	ErrIO = errors.New("osputil: i/o failure")

	// ErrSystem is returned when a lower layer fails unexpectedly.
	ErrSystem = errors.New("osputil: system failure")
)

// Error describes a failed operation.
type Error struct {
	Op   string // Operation (e.g. "select", "construct", "add")
	Path string // Table name or file path involved, if any
	Kind error  // One of the sentinel errors above
	Err  error  // Underlying cause, if any
}

// Error returns the error string.
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error.
// Illegal access failures are also reported as I/O failures.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return e.Kind == ErrIllegalAccess && target == ErrIO
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns a new Error of the given kind.
func NewError(op, path string, kind, err error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// Errorf returns a new Error of the given kind whose cause is built from format.
func Errorf(op, path string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsInvalidArgument returns true if the error is an invalid argument failure.
func IsInvalidArgument(err error) bool {
	return err != nil && errors.Is(err, ErrInvalidArgument)
}

// IsNotFound returns true if the error is a not found failure.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

// IsAlreadyExists returns true if the error is a duplicate entry failure.
func IsAlreadyExists(err error) bool {
	return err != nil && errors.Is(err, ErrAlreadyExists)
}

// IsIllegalAccess returns true if the error is a denied path or permission failure.
func IsIllegalAccess(err error) bool {
	return err != nil && errors.Is(err, ErrIllegalAccess)
}

// IsIO returns true if the error is an I/O failure, including illegal access.
func IsIO(err error) bool {
	return err != nil && errors.Is(err, ErrIO)
}

// IsSystem returns true if the error is a system failure.
func IsSystem(err error) bool {
	return err != nil && errors.Is(err, ErrSystem)
}

// KindOf returns the sentinel kind of err, or nil if err is not an *Error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
