//go:build unix

package staging

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

type hostProber struct{}

func (hostProber) PosixMode(_ string, info fs.FileInfo) (fs.FileMode, error) {
	return info.Mode().Perm(), nil
}

func (hostProber) Capabilities(path string) (Capabilities, error) {
	var c Capabilities

	for _, check := range []struct {
		mode uint32
		dst  *bool
	}{
		{unix.R_OK, &c.Read},
		{unix.W_OK, &c.Write},
		{unix.X_OK, &c.Execute},
	} {
		err := unix.Access(path, check.mode)
		switch {
		case err == nil:
			*check.dst = true
		case errors.Is(err, unix.EACCES), errors.Is(err, unix.EROFS):
		default:
			return Capabilities{}, err
		}
	}

	return c, nil
}
