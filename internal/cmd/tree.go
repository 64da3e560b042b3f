package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/disiqueira/gotree"
	"github.com/go-logr/logr"

	"layercake.run/internal/buildfile"
	"layercake.run/internal/conventions"
	"layercake.run/internal/instructions"
)

func NewTree(ws *buildfile.Workspace, opts ...TreeOption) *Tree {
	var cfg TreeConfig

	cfg.Option(opts...)
	cfg.Default()

	return &Tree{
		cfg: cfg,
		ws:  ws,
	}
}

// Tree renders the build plan of a project without building it.
type Tree struct {
	cfg TreeConfig
	ws  *buildfile.Workspace
}

type TreeConfig struct {
	Log      logr.Logger
	HostArch conventions.Architecture
}

func (c *TreeConfig) Option(opts ...TreeOption) {
	for _, opt := range opts {
		opt.ConfigureTree(c)
	}
}

func (c *TreeConfig) Default() {
	if c.Log.GetSink() == nil {
		c.Log = logr.Discard()
	}
	if c.HostArch == "" {
		c.HostArch, _ = conventions.HostArchitecture()
	}
}

type TreeOption interface {
	ConfigureTree(*TreeConfig)
}

// RenderProject returns one tree per architecture of project, showing the
// resolved base, the layer steps in order and the image configuration.
func (t *Tree) RenderProject(_ context.Context, project string, archs []string) (string, error) {
	targets, err := resolveTargets(t.ws, project, archs, t.cfg.HostArch)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, tg := range targets {
		tree, err := t.renderTarget(tg)
		if err != nil {
			return "", err
		}
		out.WriteString(tree.Print())
	}

	return out.String(), nil
}

func (t *Tree) renderTarget(tg target) (gotree.Tree, error) {
	t.cfg.Log.V(1).Info("rendering plan", "project", tg.Project.Name, "arch", tg.Arch)

	kind, err := tg.Definition.BuilderKind()
	if err != nil {
		return nil, err
	}
	from, err := tg.Model.Base()
	if err != nil {
		return nil, &conventions.ConfigurationError{Subject: tg.Project.Name, Reason: "invalid base", Err: err}
	}
	sibling, err := siblingContext(t.ws, from, tg.Arch)
	if err != nil {
		return nil, err
	}
	base, err := conventions.ResolveBase(from, sibling, tg.Arch, t.cfg.HostArch)
	if err != nil {
		return nil, err
	}

	tree := gotree.New(fmt.Sprintf("%s\nBuilder %s", tg.Context.Tag(), kind))

	switch {
	case base.IsLocal():
		tree.Add(fmt.Sprintf("From project %s (archive %s)", base.Project, base.ArchivePath))
	case base.IsProject():
		tree.Add(fmt.Sprintf("From project %s (%s)", base.Project, base.Reference))
	default:
		tree.Add("From " + base.Reference)
	}

	layers := tree.Add("Layers")
	if err := tg.Model.ForEachLayer(
		func(r instructions.Run) error {
			layers.Add("RUN " + strings.Join(r.Commands, " && "))
			return nil
		},
		func(c instructions.Copy) error {
			line := fmt.Sprintf("COPY %s /", c.ContentDir)
			if c.Owner != nil {
				line += " as " + c.Owner.String()
			}
			layers.Add(line)
			return nil
		},
	); err != nil {
		return nil, err
	}

	config := tree.Add("Config")
	if mt, ok := tg.Model.MaintainerInfo(); ok {
		config.Add("Maintainer " + mt.String())
	}
	tg.Model.EnvVars().Each(func(k, v string) { config.Add(fmt.Sprintf("Env %s=%s", k, v)) })
	changing := tg.Model.ChangingLabels()
	tg.Model.Labels().Each(func(k, v string) {
		line := fmt.Sprintf("Label %s=%s", k, v)
		if _, ok := changing.Get(k); ok {
			line += " (changing)"
		}
		config.Add(line)
	})
	if argv, ok := tg.Model.EntrypointArgv(); ok {
		config.Add(fmt.Sprintf("Entrypoint %q", argv))
	}
	if argv, ok := tg.Model.CmdArgv(); ok {
		config.Add(fmt.Sprintf("Cmd %q", argv))
	}
	if wd, ok := tg.Model.WorkdirPath(); ok {
		config.Add("Workdir " + wd)
	}
	for _, p := range tg.Model.ExposedPorts() {
		config.Add("Expose " + p.String())
	}

	return tree, nil
}
