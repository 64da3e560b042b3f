package staging

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrPosixUnsupported is returned by a Prober that cannot read POSIX
// permission bits on the current filesystem.
var ErrPosixUnsupported = errors.New("posix permissions not supported")

// PermissionError is a failure to determine the permissions of a staged file.
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("detecting permissions of %s: %v", e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// Capabilities are what the current process may do with a file.
type Capabilities struct {
	Read    bool
	Write   bool
	Execute bool
}

// Prober inspects files on disk.
type Prober interface {
	// PosixMode returns the permission bits, or ErrPosixUnsupported.
	PosixMode(path string, info fs.FileInfo) (fs.FileMode, error)
	Capabilities(path string) (Capabilities, error)
}

// DefaultProber is the Prober for the host filesystem.
var DefaultProber Prober = hostProber{}

// InferMode derives permission bits from capabilities when POSIX bits are
// unavailable: readable grants read to everyone, writable grants write to
// owner and group, executable files and all directories grant execute to
// everyone.
func InferMode(c Capabilities, isDir bool) fs.FileMode {
	var mode fs.FileMode
	if c.Read {
		mode |= 0o444
	}
	if c.Write {
		mode |= 0o220
	}
	if c.Execute || isDir {
		mode |= 0o111
	}

	return mode
}

// Permissions returns the permission bits an entry gets inside the image.
func Permissions(p Prober, e Entry) (fs.FileMode, error) {
	mode, err := p.PosixMode(e.Path, e.Info)
	if err == nil {
		return mode.Perm(), nil
	}
	if !errors.Is(err, ErrPosixUnsupported) {
		return 0, &PermissionError{Path: e.Path, Err: err}
	}

	c, err := p.Capabilities(e.Path)
	if err != nil {
		return 0, &PermissionError{Path: e.Path, Err: err}
	}

	return InferMode(c, e.Info.IsDir()), nil
}
