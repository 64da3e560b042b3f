package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"layercake.run/internal/buildfile"
	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
	"layercake.run/internal/daemon"
)

func NewImport(ws *buildfile.Workspace, importer Importer, opts ...ImportOption) *Import {
	var cfg ImportConfig

	cfg.Option(opts...)
	cfg.Default()

	return &Import{
		cfg:      cfg,
		ws:       ws,
		importer: importer,
	}
}

// Import loads built project images into the local daemon.
type Import struct {
	cfg      ImportConfig
	ws       *buildfile.Workspace
	importer Importer
}

type ImportConfig struct {
	Log      logr.Logger
	Results  *buildinfo.Store
	HostArch conventions.Architecture
}

func (c *ImportConfig) Option(opts ...ImportOption) {
	for _, opt := range opts {
		opt.ConfigureImport(c)
	}
}

func (c *ImportConfig) Default() {
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

type ImportOption interface {
	ConfigureImport(*ImportConfig)
}

// ImportProject imports the images of project built for archs. Without archs
// the host architecture is imported, the only one a local daemon can run.
func (i *Import) ImportProject(ctx context.Context, project string, archs []string) ([]ProjectResult, error) {
	if len(archs) == 0 {
		archs = []string{string(i.cfg.HostArch)}
	}

	targets, err := resolveTargets(i.ws, project, archs, i.cfg.HostArch)
	if err != nil {
		return nil, err
	}

	results := make([]ProjectResult, 0, len(targets))
	for _, t := range targets {
		res, err := i.cfg.Results.Get(t.Context.BuildInfoPath())
		if errors.Is(err, buildinfo.ErrNotFound) {
			return results, &conventions.ConfigurationError{
				Subject: t.Project.Name, Reason: "project has not been built for " + string(t.Arch), Err: err,
			}
		}
		if err != nil {
			return results, err
		}

		i.cfg.Log.Info("importing", "project", t.Project.Name, "arch", t.Arch, "tag", res.Tag)
		if err := i.importer.Import(ctx, daemon.Request{
			Archive: t.Context.ArchivePath(),
			ImageID: res.ImageID,
			Tag:     res.Tag,
			Marker:  t.Context.ImportMarkerPath(),
		}); err != nil {
			return results, fmt.Errorf("importing %s for %s: %w", t.Project.Name, t.Arch, err)
		}

		results = append(results, ProjectResult{
			Project:     t.Project.Name,
			Arch:        t.Arch,
			Archive:     t.Context.ArchivePath(),
			BuildResult: res,
		})
	}

	return results, nil
}
