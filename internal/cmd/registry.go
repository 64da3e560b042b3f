package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"layercake.run/internal/buildfile"
	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
)

func NewRegistry(ws *buildfile.Workspace, opts ...RegistryOption) *Registry {
	var cfg RegistryConfig

	cfg.Option(opts...)
	cfg.Default()

	return &Registry{
		cfg: cfg,
		ws:  ws,
	}
}

// Registry moves project images between the workspace and registries.
type Registry struct {
	cfg RegistryConfig
	ws  *buildfile.Workspace
}

type RegistryConfig struct {
	Log      logr.Logger
	Puller   BasePuller
	Pusher   ImagePusher
	Results  *buildinfo.Store
	HostArch conventions.Architecture
}

func (c *RegistryConfig) Option(opts ...RegistryOption) {
	for _, opt := range opts {
		opt.ConfigureRegistry(c)
	}
}

func (c *RegistryConfig) Default() {
	if c.Log.GetSink() == nil {
		c.Log = logr.Discard()
	}
	if c.Results == nil {
		c.Results = buildinfo.NewStore()
	}
	if c.HostArch == "" {
		c.HostArch, _ = conventions.HostArchitecture()
	}
}

type RegistryOption interface {
	ConfigureRegistry(*RegistryConfig)
}

// PulledBase is the outcome of pulling a project's base for one architecture.
type PulledBase struct {
	Project   string
	Arch      conventions.Architecture
	Reference string
	Digest    string
	Archive   string
}

// PullBase pulls the external base image of project into its base archive
// for each architecture.
func (r *Registry) PullBase(ctx context.Context, project string, archs []string) ([]PulledBase, error) {
	if r.cfg.Puller == nil {
		return nil, fmt.Errorf("%w: no puller configured", ErrInvalidArgs)
	}

	targets, err := resolveTargets(r.ws, project, archs, r.cfg.HostArch)
	if err != nil {
		return nil, err
	}

	var res []PulledBase
	for _, t := range targets {
		from, err := t.Model.Base()
		if err != nil {
			return res, &conventions.ConfigurationError{Subject: t.Project.Name, Reason: "invalid base", Err: err}
		}
		if from.IsProject() {
			return res, conventions.NewConfigurationError(t.Project.Name,
				"base is the workspace project %s, build it instead of pulling", from.Project)
		}

		dst := t.Context.BaseArchivePath()
		r.cfg.Log.Info("pulling base", "project", t.Project.Name, "arch", t.Arch, "ref", from.Image)
		digest, err := r.cfg.Puller.Pull(ctx, from.Image, t.Arch, dst)
		if err != nil {
			return res, fmt.Errorf("pulling base of %s for %s: %w", t.Project.Name, t.Arch, err)
		}

		res = append(res, PulledBase{
			Project:   t.Project.Name,
			Arch:      t.Arch,
			Reference: from.Image,
			Digest:    digest,
			Archive:   dst,
		})
	}

	return res, nil
}

// PushProject pushes the built archives of project under their tags.
func (r *Registry) PushProject(ctx context.Context, project string, archs []string) ([]ProjectResult, error) {
	if r.cfg.Pusher == nil {
		return nil, fmt.Errorf("%w: no pusher configured", ErrInvalidArgs)
	}

	targets, err := resolveTargets(r.ws, project, archs, r.cfg.HostArch)
	if err != nil {
		return nil, err
	}

	var res []ProjectResult
	for _, t := range targets {
		built, err := r.cfg.Results.Get(t.Context.BuildInfoPath())
		if errors.Is(err, buildinfo.ErrNotFound) {
			return res, &conventions.ConfigurationError{
				Subject: t.Project.Name, Reason: "project has not been built for " + string(t.Arch), Err: err,
			}
		}
		if err != nil {
			return res, err
		}

		r.cfg.Log.Info("pushing", "project", t.Project.Name, "arch", t.Arch, "tag", built.Tag)
		if _, err := r.cfg.Pusher.Push(ctx, t.Context.ArchivePath(), built.Tag); err != nil {
			return res, fmt.Errorf("pushing %s for %s: %w", t.Project.Name, t.Arch, err)
		}

		res = append(res, ProjectResult{
			Project:     t.Project.Name,
			Arch:        t.Arch,
			Archive:     t.Context.ArchivePath(),
			BuildResult: built,
		})
	}

	return res, nil
}

func PulledTable(pulled []PulledBase) *DefaultTable {
	table := NewDefaultTable(
		WithHeaders{"Project", "Arch", "Reference", "Digest"},
	)

	for _, p := range pulled {
		table.AddRow(
			Field{Name: "Project", Value: p.Project},
			Field{Name: "Arch", Value: p.Arch},
			Field{Name: "Reference", Value: p.Reference},
			Field{Name: "Digest", Value: p.Digest},
		)
	}

	return table
}
