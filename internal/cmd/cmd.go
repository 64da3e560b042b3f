package cmd

import (
	"context"
	"errors"

	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
	"layercake.run/internal/daemon"
)

var ErrInvalidArgs = errors.New("arguments invalid")

// Backend compiles one image for one architecture.
type Backend interface {
	Compile(ctx context.Context, req conventions.BuildRequest) (buildinfo.BuildResult, error)
}

// BasePuller fetches an external base image into a local archive.
type BasePuller interface {
	Pull(ctx context.Context, ref string, arch conventions.Architecture, dst string) (string, error)
}

// ImagePusher uploads an image archive to a registry.
type ImagePusher interface {
	Push(ctx context.Context, src, ref string) (string, error)
}

// Importer makes a built image available in the local daemon.
type Importer interface {
	Import(ctx context.Context, req daemon.Request) error
}
