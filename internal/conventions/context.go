package conventions

import (
	"path"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/google/go-containerregistry/pkg/name"

	"layercake.run/internal/instructions"
)

const (
	outputDirName     = "layercake"
	contextDirName    = "context"
	dockerfileName    = "Dockerfile"
	archiveName       = "image.tar"
	baseArchiveName   = "base.tar"
	buildInfoName     = "build-info.json"
	importMarkerName  = "import.marker"
	layerCacheDirName = "layers"
	defaultVersion    = "latest"
)

// Identity names a project's image independently of architecture.
type Identity struct {
	Registry  string
	Namespace string
	Name      string
	Version   string
}

// Repository is the image repository without tag, e.g.
// "registry.example.com/team/app".
func (i Identity) Repository() string {
	return path.Join(i.Registry, i.Namespace, i.Name)
}

// TagFor is the tag of the image built for arch.
func (i Identity) TagFor(arch Architecture) string {
	v := i.Version
	if v == "" {
		v = defaultVersion
	}

	return v + "-" + string(arch)
}

// ReferenceFor is the validated image reference of the image built for arch.
func (i Identity) ReferenceFor(arch Architecture) (name.Tag, error) {
	ref := i.Repository() + ":" + i.TagFor(arch)

	tag, err := name.NewTag(ref)
	if err != nil {
		return name.Tag{}, &ConfigurationError{Subject: ref, Reason: "invalid image reference", Err: err}
	}

	return tag, nil
}

// DefaultCacheRoot is the per-user cache directory shared by all projects.
func DefaultCacheRoot() string {
	return filepath.Join(xdg.CacheHome, outputDirName)
}

// BuildContext derives every location a build of one project for one
// architecture reads or writes. Equal inputs always derive equal paths.
type BuildContext struct {
	Identity   Identity
	Arch       Architecture
	ProjectDir string
	CacheRoot  string
}

// NewBuildContext returns a BuildContext. An empty cacheRoot selects
// DefaultCacheRoot.
func NewBuildContext(projectDir string, id Identity, arch Architecture, cacheRoot string) BuildContext {
	if cacheRoot == "" {
		cacheRoot = DefaultCacheRoot()
	}

	return BuildContext{
		Identity:   id,
		Arch:       arch,
		ProjectDir: filepath.Clean(projectDir),
		CacheRoot:  filepath.Clean(cacheRoot),
	}
}

// OutputDir holds all build outputs for this architecture.
func (c BuildContext) OutputDir() string {
	return filepath.Join(c.ProjectDir, "build", outputDirName, string(c.Arch))
}

// ContextDir is the staging root holding the layerN directories. It is also
// the working directory of the build.
func (c BuildContext) ContextDir() string {
	return filepath.Join(c.OutputDir(), contextDirName)
}

// ContextDirName is the name of ContextDir relative to its parent.
func (c BuildContext) ContextDirName() string {
	return contextDirName
}

func (c BuildContext) LayerDir(ordinal int) string {
	return filepath.Join(c.ContextDir(), instructions.LayerDirName(ordinal))
}

// DockerfilePath lives in the parent of ContextDir.
func (c BuildContext) DockerfilePath() string {
	return filepath.Join(c.OutputDir(), dockerfileName)
}

func (c BuildContext) ArchivePath() string {
	return filepath.Join(c.OutputDir(), archiveName)
}

// BaseArchivePath is where a pulled external base image is stored.
func (c BuildContext) BaseArchivePath() string {
	return filepath.Join(c.OutputDir(), baseArchiveName)
}

func (c BuildContext) BuildInfoPath() string {
	return filepath.Join(c.OutputDir(), buildInfoName)
}

func (c BuildContext) ImportMarkerPath() string {
	return filepath.Join(c.OutputDir(), importMarkerName)
}

// LayerCacheDir is shared by all projects using the same cache root.
func (c BuildContext) LayerCacheDir() string {
	return filepath.Join(c.CacheRoot, layerCacheDirName)
}

func (c BuildContext) Reference() (name.Tag, error) {
	return c.Identity.ReferenceFor(c.Arch)
}

// Tag is the full image reference as string.
func (c BuildContext) Tag() string {
	return c.Identity.Repository() + ":" + c.Identity.TagFor(c.Arch)
}
