// Package staging checks and reads the layerN directories that back copy
// instructions. It is shared by all build backends.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"layercake.run/internal/conventions"
	"layercake.run/internal/instructions"
)

const layerDirPrefix = "layer"

// ValidateContext makes sure contextDir exists and the staged layerN
// directories below it are exactly those the copies need, each non-empty.
func ValidateContext(contextDir string, copies []instructions.Copy) error {
	info, err := os.Stat(contextDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return conventions.NewConfigurationError(contextDir, "build context directory does not exist")
	case err != nil:
		return &conventions.ConfigurationError{Subject: contextDir, Reason: "reading build context directory", Err: err}
	case !info.IsDir():
		return conventions.NewConfigurationError(contextDir, "build context is not a directory")
	}

	staged, err := StagedOrdinals(contextDir)
	if err != nil {
		return err
	}

	wanted := sets.New[int]()
	for _, c := range copies {
		wanted.Insert(c.Ordinal)
	}

	if missing := sets.List(wanted.Difference(staged)); len(missing) > 0 {
		return conventions.NewConfigurationError(
			filepath.Join(contextDir, instructions.LayerDirName(missing[0])),
			"%s is not an existing folder", instructions.LayerDirName(missing[0]))
	}
	if extra := sets.List(staged.Difference(wanted)); len(extra) > 0 {
		return conventions.NewConfigurationError(
			filepath.Join(contextDir, instructions.LayerDirName(extra[0])),
			"%s is staged but no copy instruction uses it", instructions.LayerDirName(extra[0]))
	}

	for _, ordinal := range sets.List(wanted) {
		dir := filepath.Join(contextDir, instructions.LayerDirName(ordinal))
		entries, err := os.ReadDir(dir)
		if err != nil {
			return &conventions.ConfigurationError{Subject: dir, Reason: "reading staged layer", Err: err}
		}
		if len(entries) == 0 {
			return conventions.NewConfigurationError(dir, "%s is empty", instructions.LayerDirName(ordinal))
		}
	}

	return nil
}

// StagedOrdinals returns the ordinals of all layerN directories in contextDir.
func StagedOrdinals(contextDir string) (sets.Set[int], error) {
	entries, err := os.ReadDir(contextDir)
	if err != nil {
		return nil, &conventions.ConfigurationError{Subject: contextDir, Reason: "listing staged layers", Err: err}
	}

	res := sets.New[int]()
	for _, e := range entries {
		ordinal, ok := parseLayerDirName(e.Name())
		if !ok {
			continue
		}
		if !e.IsDir() {
			return nil, conventions.NewConfigurationError(
				filepath.Join(contextDir, e.Name()), "%s is not an existing folder", e.Name())
		}
		res.Insert(ordinal)
	}

	return res, nil
}

func parseLayerDirName(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, layerDirPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || strconv.Itoa(n) != digits {
		return 0, false
	}

	return n, true
}

// Entry is one filesystem object of a staged layer.
type Entry struct {
	// Path is the absolute path on disk.
	Path string
	// Target is the absolute path inside the image, e.g. "/app/run.sh".
	Target string
	Info   fs.FileInfo
	// Link is the symlink target for symlinks.
	Link string
}

// Entries walks a staged layer directory and returns every directory,
// regular file and symlink below it, sorted by Target.
func Entries(layerDir string) ([]Entry, error) {
	var res []Entry

	err := filepath.WalkDir(layerDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == layerDir {
			return nil
		}

		rel, err := filepath.Rel(layerDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		entry := Entry{
			Path:   path,
			Target: "/" + filepath.ToSlash(rel),
			Info:   info,
		}

		switch {
		case info.Mode().IsDir(), info.Mode().IsRegular():
		case info.Mode()&fs.ModeSymlink != 0:
			if entry.Link, err = os.Readlink(path); err != nil {
				return err
			}
		default:
			return conventions.NewConfigurationError(path, "unsupported file type %s", info.Mode().Type())
		}

		res = append(res, entry)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking staged layer %s: %w", layerDir, err)
	}

	return res, nil
}
