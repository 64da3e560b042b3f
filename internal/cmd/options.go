package cmd

import (
	"github.com/go-logr/logr"

	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
)

type WithArchitectures []string

func (w WithArchitectures) ConfigureBuildProject(c *BuildProjectConfig) {
	c.Architectures = append(c.Architectures, w...)
}

type WithBackend struct {
	Builder buildinfo.Builder
	Backend Backend
}

func (w WithBackend) ConfigureBuild(c *BuildConfig) {
	if c.Backends == nil {
		c.Backends = map[buildinfo.Builder]Backend{}
	}
	c.Backends[w.Builder] = w.Backend
}

type WithBuilder string

func (w WithBuilder) ConfigureBuildProject(c *BuildProjectConfig) {
	c.Builder = string(w)
}

type WithDependencies bool

func (w WithDependencies) ConfigureBuildProject(c *BuildProjectConfig) {
	c.WithDependencies = bool(w)
}

type WithHeaders []string

func (w WithHeaders) ConfigureTable(c *TableConfig) {
	c.Headers = []string(w)
}

// WithHostArch overrides the detected host architecture.
type WithHostArch conventions.Architecture

func (w WithHostArch) ConfigureBuild(c *BuildConfig) {
	c.HostArch = conventions.Architecture(w)
}

func (w WithHostArch) ConfigureImport(c *ImportConfig) {
	c.HostArch = conventions.Architecture(w)
}

func (w WithHostArch) ConfigureRegistry(c *RegistryConfig) {
	c.HostArch = conventions.Architecture(w)
}

func (w WithHostArch) ConfigureTree(c *TreeConfig) {
	c.HostArch = conventions.Architecture(w)
}

type WithLog struct{ Log logr.Logger }

func (w WithLog) ConfigureBuild(c *BuildConfig) {
	c.Log = w.Log
}

func (w WithLog) ConfigureImport(c *ImportConfig) {
	c.Log = w.Log
}

func (w WithLog) ConfigureRegistry(c *RegistryConfig) {
	c.Log = w.Log
}

func (w WithLog) ConfigureTree(c *TreeConfig) {
	c.Log = w.Log
}

type WithPuller struct{ Puller BasePuller }

func (w WithPuller) ConfigureRegistry(c *RegistryConfig) {
	c.Puller = w.Puller
}

type WithPusher struct{ Pusher ImagePusher }

func (w WithPusher) ConfigureRegistry(c *RegistryConfig) {
	c.Pusher = w.Pusher
}

type WithResults struct{ Results *buildinfo.Store }

func (w WithResults) ConfigureImport(c *ImportConfig) {
	c.Results = w.Results
}

func (w WithResults) ConfigureRegistry(c *RegistryConfig) {
	c.Results = w.Results
}
