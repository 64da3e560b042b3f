// Package buildfile loads the workspace file and the per-project image
// definitions that describe what layercake builds.
package buildfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"layercake.run/internal/conventions"
)

const (
	WorkspaceFileName  = "layercake.yaml"
	DefinitionFileName = "image.yaml"
)

var ErrProjectNotFound = errors.New("project not found in workspace")

// Workspace is the content of a layercake.yaml file.
type Workspace struct {
	// Registry all project images are tagged and pushed to.
	Registry  string `json:"registry,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	// Version is shared by all projects; "latest" when empty.
	Version string `json:"version,omitempty"`
	// CacheDir overrides the per-user layer cache root. Relative paths are
	// resolved against the workspace directory.
	CacheDir string    `json:"cacheDir,omitempty"`
	Projects []Project `json:"projects"`

	// Root is the directory the workspace file was loaded from.
	Root string `json:"-"`
}

type Project struct {
	Name string `json:"name"`
	// Dir is relative to the workspace root.
	Dir string `json:"dir"`
}

// LoadWorkspace reads and validates the workspace file at path.
func LoadWorkspace(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workspace: %w", err)
	}

	var ws Workspace
	if err := yaml.UnmarshalStrict(data, &ws); err != nil {
		return nil, &conventions.ConfigurationError{Subject: path, Reason: "invalid workspace file", Err: err}
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	ws.Root = abs

	if err := ws.validate(path); err != nil {
		return nil, err
	}

	return &ws, nil
}

func (w *Workspace) validate(path string) error {
	if len(w.Projects) == 0 {
		return conventions.NewConfigurationError(path, "no projects defined")
	}

	seen := map[string]struct{}{}
	for i, p := range w.Projects {
		switch {
		case p.Name == "":
			return conventions.NewConfigurationError(path, "projects[%d] has no name", i)
		case p.Dir == "":
			return conventions.NewConfigurationError(path, "project %s has no dir", p.Name)
		}
		if _, ok := seen[p.Name]; ok {
			return conventions.NewConfigurationError(path, "project %s is defined twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	return nil
}

func (w *Workspace) Project(name string) (Project, error) {
	for _, p := range w.Projects {
		if p.Name == name {
			return p, nil
		}
	}

	return Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
}

func (w *Workspace) ProjectDir(p Project) string {
	if filepath.IsAbs(p.Dir) {
		return filepath.Clean(p.Dir)
	}

	return filepath.Join(w.Root, p.Dir)
}

func (w *Workspace) Identity(p Project) conventions.Identity {
	return conventions.Identity{
		Registry:  w.Registry,
		Namespace: w.Namespace,
		Name:      p.Name,
		Version:   w.Version,
	}
}

// CacheRoot returns the configured cache root or "" for the default one.
func (w *Workspace) CacheRoot() string {
	switch {
	case w.CacheDir == "":
		return ""
	case filepath.IsAbs(w.CacheDir):
		return w.CacheDir
	default:
		return filepath.Join(w.Root, w.CacheDir)
	}
}

// BuildContext derives the build context of project p for arch.
func (w *Workspace) BuildContext(p Project, arch conventions.Architecture) conventions.BuildContext {
	return conventions.NewBuildContext(w.ProjectDir(p), w.Identity(p), arch, w.CacheRoot())
}

// Definition loads the image definition of p rendered for arch.
func (w *Workspace) Definition(p Project, arch conventions.Architecture) (*Definition, error) {
	return LoadDefinition(filepath.Join(w.ProjectDir(p), DefinitionFileName), TemplateData{
		Architecture: string(arch),
		Project:      p.Name,
		Version:      w.Version,
	})
}
