package cmd

import (
	"fmt"

	"layercake.run/internal/buildfile"
	"layercake.run/internal/conventions"
	"layercake.run/internal/instructions"
)

// target is one project for one architecture with its rendered definition.
type target struct {
	Project    buildfile.Project
	Arch       conventions.Architecture
	Context    conventions.BuildContext
	Definition *buildfile.Definition
	Model      *instructions.Model
}

// resolveTargets loads project for the requested architectures. Without
// requested architectures the ones declared by the project are used.
func resolveTargets(ws *buildfile.Workspace, project string, requested []string, host conventions.Architecture) ([]target, error) {
	p, err := ws.Project(project)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}

	archs, err := conventions.ParseArchitectures(requested)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	if len(archs) == 0 {
		def, err := ws.Definition(p, host)
		if err != nil {
			return nil, err
		}
		if archs, err = def.TargetArchitectures(host); err != nil {
			return nil, err
		}
	}

	res := make([]target, 0, len(archs))
	for _, arch := range archs {
		t, err := loadTarget(ws, p, arch)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}

	return res, nil
}

func loadTarget(ws *buildfile.Workspace, p buildfile.Project, arch conventions.Architecture) (target, error) {
	def, err := ws.Definition(p, arch)
	if err != nil {
		return target{}, err
	}
	m, err := def.Model()
	if err != nil {
		return target{}, err
	}

	return target{
		Project:    p,
		Arch:       arch,
		Context:    ws.BuildContext(p, arch),
		Definition: def,
		Model:      m,
	}, nil
}

// siblingContext returns the build context of the project named by from for
// arch, or nil for external bases.
func siblingContext(ws *buildfile.Workspace, from instructions.From, arch conventions.Architecture) (*conventions.BuildContext, error) {
	if !from.IsProject() {
		return nil, nil
	}

	p, err := ws.Project(from.Project)
	if err != nil {
		return nil, &conventions.ConfigurationError{Subject: from.Project, Reason: "unknown base project", Err: err}
	}
	bctx := ws.BuildContext(p, arch)

	return &bctx, nil
}
