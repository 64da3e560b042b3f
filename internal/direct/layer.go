package direct

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"layercake.run/internal/instructions"
	"layercake.run/internal/staging"
)

// Entries get a fixed modification time so equal inputs produce equal layers.
var entryModTime = time.Unix(1, 0).UTC()

// writeLayerTar writes the entries of one staged layer as an uncompressed tar
// stream rooted at "/".
func writeLayerTar(w io.Writer, entries []staging.Entry, owner *instructions.Owner, prober staging.Prober) error {
	tw := tar.NewWriter(w)

	for _, e := range entries {
		mode, err := staging.Permissions(prober, e)
		if err != nil {
			return err
		}

		hdr := &tar.Header{
			Name:    strings.TrimPrefix(e.Target, "/"),
			Mode:    int64(mode),
			ModTime: entryModTime,
			Format:  tar.FormatPAX,
		}
		if owner != nil {
			hdr.Uid, hdr.Gid = owner.UID, owner.GID
		}

		switch {
		case e.Info.IsDir():
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
		case e.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Link
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = e.Info.Size()
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing tar header for %s: %w", e.Target, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if err := copyFile(tw, e.Path); err != nil {
				return fmt.Errorf("writing %s: %w", e.Target, err)
			}
		}
	}

	return tw.Close()
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)

	return err
}

// buildLayer turns the staged directory of c into a layer backed by a tar
// file below scratchDir.
func buildLayer(layerDir, scratchDir string, c instructions.Copy, prober staging.Prober) (v1.Layer, error) {
	entries, err := staging.Entries(layerDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(scratchDir, c.ContentDir+".tar")

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := writeLayerTar(f, entries, c.Owner, prober); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return tarball.LayerFromFile(path)
}
