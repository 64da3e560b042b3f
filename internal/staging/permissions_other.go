//go:build !unix

package staging

import (
	"io/fs"
	"os"
)

type hostProber struct{}

func (hostProber) PosixMode(string, fs.FileInfo) (fs.FileMode, error) {
	return 0, ErrPosixUnsupported
}

func (hostProber) Capabilities(path string) (Capabilities, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Capabilities{}, err
	}

	c := Capabilities{Write: info.Mode().Perm()&0o200 != 0}
	if info.IsDir() {
		_, err = os.ReadDir(path)
	} else {
		var f *os.File
		if f, err = os.Open(path); err == nil {
			err = f.Close()
		}
	}
	c.Read = err == nil

	return c, nil
}
