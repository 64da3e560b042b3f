package conventions

import (
	"github.com/google/go-containerregistry/pkg/name"

	"layercake.run/internal/instructions"
)

// BaseImage is a resolved base image. When ArchivePath is set the base is
// read from that local archive, otherwise Reference is pulled.
type BaseImage struct {
	Reference   string
	ArchivePath string
	// Project is set when the base is a sibling project's image.
	Project string
	// Sibling is the sibling's build context when Project is set.
	Sibling *BuildContext
}

func (b BaseImage) IsLocal() bool { return b.ArchivePath != "" }

func (b BaseImage) IsProject() bool { return b.Project != "" }

// ResolveBase turns a From instruction into a BaseImage. A sibling built for
// the host architecture is taken from its local archive; a sibling built for
// another architecture cannot have been produced locally and is referenced by
// its published tag. sibling must describe the sibling project for target
// and is ignored for external images.
func ResolveBase(from instructions.From, sibling *BuildContext, target, host Architecture) (BaseImage, error) {
	if !from.IsProject() {
		if _, err := name.ParseReference(from.Image); err != nil {
			return BaseImage{}, &ConfigurationError{Subject: from.Image, Reason: "invalid base image reference", Err: err}
		}

		return BaseImage{Reference: from.Image}, nil
	}

	if sibling == nil {
		return BaseImage{}, NewConfigurationError(from.Project, "base project is not part of the workspace")
	}
	if sibling.Arch != target {
		return BaseImage{}, NewConfigurationError(from.Project,
			"base project context is for %s but target architecture is %s", sibling.Arch, target)
	}

	ref, err := sibling.Reference()
	if err != nil {
		return BaseImage{}, err
	}

	base := BaseImage{
		Reference: ref.String(),
		Project:   from.Project,
		Sibling:   sibling,
	}
	if target == host {
		base.ArchivePath = sibling.ArchivePath()
	}

	return base, nil
}

// BuildRequest is everything a backend needs to compile one image.
type BuildRequest struct {
	Model   *instructions.Model
	Context BuildContext
	Base    BaseImage
}
