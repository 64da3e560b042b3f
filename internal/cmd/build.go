package cmd

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"layercake.run/internal/buildfile"
	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
)

func NewBuild(ws *buildfile.Workspace, opts ...BuildOption) *Build {
	var cfg BuildConfig

	cfg.Option(opts...)
	cfg.Default()

	return &Build{
		cfg: cfg,
		ws:  ws,
	}
}

// Build compiles workspace projects with the backend their definition asks for.
type Build struct {
	cfg BuildConfig
	ws  *buildfile.Workspace
}

type BuildConfig struct {
	Log      logr.Logger
	Backends map[buildinfo.Builder]Backend
	HostArch conventions.Architecture
}

func (c *BuildConfig) Option(opts ...BuildOption) {
	for _, opt := range opts {
		opt.ConfigureBuild(c)
	}
}

func (c *BuildConfig) Default() {
	if c.Log.GetSink() == nil {
		c.Log = logr.Discard()
	}
	if c.Backends == nil {
		c.Backends = map[buildinfo.Builder]Backend{}
	}
	if c.HostArch == "" {
		// Unsupported hosts only ever see cross-architecture builds.
		c.HostArch, _ = conventions.HostArchitecture()
	}
}

type BuildOption interface {
	ConfigureBuild(*BuildConfig)
}

// ProjectResult is the outcome of building one project for one architecture.
type ProjectResult struct {
	Project string
	Arch    conventions.Architecture
	Archive string
	buildinfo.BuildResult
}

// BuildProject builds project for every requested architecture, one after
// another. With WithDependencies, sibling base projects are built first for
// architectures the host can consume locally.
func (b *Build) BuildProject(ctx context.Context, project string, opts ...BuildProjectOption) ([]ProjectResult, error) {
	var cfg BuildProjectConfig

	cfg.Option(opts...)

	targets, err := resolveTargets(b.ws, project, cfg.Architectures, b.cfg.HostArch)
	if err != nil {
		return nil, err
	}

	var results []ProjectResult
	for _, t := range targets {
		res, err := b.buildTarget(ctx, t, cfg, map[string]bool{})
		results = append(results, res...)
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

// buildTarget builds t after its dependencies when requested. visiting holds
// the projects on the current dependency path.
func (b *Build) buildTarget(ctx context.Context, t target, cfg BuildProjectConfig, visiting map[string]bool) ([]ProjectResult, error) {
	if visiting[t.Project.Name] {
		return nil, conventions.NewConfigurationError(t.Project.Name, "base projects form a cycle")
	}
	visiting[t.Project.Name] = true
	defer delete(visiting, t.Project.Name)

	from, err := t.Model.Base()
	if err != nil {
		return nil, &conventions.ConfigurationError{Subject: t.Project.Name, Reason: "invalid base", Err: err}
	}
	sibling, err := siblingContext(b.ws, from, t.Arch)
	if err != nil {
		return nil, err
	}

	var results []ProjectResult
	if sibling != nil && cfg.WithDependencies && t.Arch == b.cfg.HostArch {
		siblingProject, err := b.ws.Project(from.Project)
		if err != nil {
			return nil, err
		}
		dep, err := loadTarget(b.ws, siblingProject, t.Arch)
		if err != nil {
			return nil, err
		}
		// Dependencies use their own builder.
		depCfg := cfg
		depCfg.Builder = ""
		depResults, err := b.buildTarget(ctx, dep, depCfg, visiting)
		results = append(results, depResults...)
		if err != nil {
			return results, err
		}
	}

	base, err := conventions.ResolveBase(from, sibling, t.Arch, b.cfg.HostArch)
	if err != nil {
		return results, err
	}

	kind, err := b.builderFor(t, cfg)
	if err != nil {
		return results, err
	}
	backend, ok := b.cfg.Backends[kind]
	if !ok {
		return results, fmt.Errorf("%w: no backend configured for builder %s", ErrInvalidArgs, kind)
	}

	log := b.cfg.Log.WithValues("project", t.Project.Name, "arch", t.Arch, "builder", kind)
	log.Info("building", "base", base.Reference, "localBase", base.IsLocal())

	res, err := backend.Compile(ctx, conventions.BuildRequest{
		Model:   t.Model,
		Context: t.Context,
		Base:    base,
	})
	if err != nil {
		return results, fmt.Errorf("building %s for %s: %w", t.Project.Name, t.Arch, err)
	}

	return append(results, ProjectResult{
		Project:     t.Project.Name,
		Arch:        t.Arch,
		Archive:     t.Context.ArchivePath(),
		BuildResult: res,
	}), nil
}

func (b *Build) builderFor(t target, cfg BuildProjectConfig) (buildinfo.Builder, error) {
	if cfg.Builder == "" {
		return t.Definition.BuilderKind()
	}

	override := buildfile.Definition{Builder: cfg.Builder}
	kind, err := override.BuilderKind()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}

	return kind, nil
}

type BuildProjectConfig struct {
	Architectures    []string
	Builder          string
	WithDependencies bool
}

func (c *BuildProjectConfig) Option(opts ...BuildProjectOption) {
	for _, opt := range opts {
		opt.ConfigureBuildProject(c)
	}
}

type BuildProjectOption interface {
	ConfigureBuildProject(*BuildProjectConfig)
}

// ResultsTable lists build results for printing.
func ResultsTable(results []ProjectResult) *DefaultTable {
	table := NewDefaultTable(
		WithHeaders{"Project", "Arch", "Builder", "Tag", "Image ID"},
	)

	for _, r := range results {
		table.AddRow(
			Field{Name: "Project", Value: r.Project},
			Field{Name: "Arch", Value: r.Arch},
			Field{Name: "Builder", Value: r.Builder},
			Field{Name: "Tag", Value: r.Tag},
			Field{Name: "Image ID", Value: r.ImageID},
		)
	}

	return table
}
