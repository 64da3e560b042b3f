// Package daemon loads built image archives into a local docker daemon.
package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"layercake.run/internal/metrics"
	"layercake.run/internal/process"
)

// Daemon is the subset of a local image daemon used for imports.
type Daemon interface {
	ImageExists(ctx context.Context, id string) (bool, error)
	Load(ctx context.Context, archive io.Reader) error
	Tag(ctx context.Context, id, tag string) error
}

func NewDockerCLI(opts ...DockerCLIOption) *DockerCLI {
	var cfg DockerCLIConfig

	cfg.Option(opts...)
	cfg.Default()

	return &DockerCLI{cfg: cfg}
}

// DockerCLI talks to the daemon through the docker command line client.
type DockerCLI struct {
	cfg DockerCLIConfig
}

type DockerCLIConfig struct {
	Log    logr.Logger
	Runner process.Runner
	Docker string
	Env    map[string]string
}

func (c *DockerCLIConfig) Option(opts ...DockerCLIOption) {
	for _, opt := range opts {
		opt.ConfigureDockerCLI(c)
	}
}

func (c *DockerCLIConfig) Default() {
	if c.Log.GetSink() == nil {
		c.Log = logr.Discard()
	}
	if c.Runner == nil {
		c.Runner = process.NewExecRunner(process.WithLog{Log: c.Log})
	}
	if c.Docker == "" {
		c.Docker = "docker"
	}
	if c.Env == nil {
		c.Env = map[string]string{}
	}
}

type DockerCLIOption interface {
	ConfigureDockerCLI(*DockerCLIConfig)
}

type WithRunner struct{ Runner process.Runner }

func (w WithRunner) ConfigureDockerCLI(c *DockerCLIConfig) {
	c.Runner = w.Runner
}

type WithDocker string

func (w WithDocker) ConfigureDockerCLI(c *DockerCLIConfig) {
	c.Docker = string(w)
}

type WithEnv map[string]string

func (w WithEnv) ConfigureDockerCLI(c *DockerCLIConfig) {
	c.Env = map[string]string(w)
}

// ImageExists reports whether the daemon knows an image with the given id.
// A failing inspect is taken as absence.
func (d *DockerCLI) ImageExists(ctx context.Context, id string) (bool, error) {
	var out bytes.Buffer

	err := d.cfg.Runner.Run(ctx, d.command("docker inspect", nil, &out,
		"image", "inspect", "--format={{.Id}}", id))

	var exitErr *process.ExitError
	switch {
	case errors.As(err, &exitErr):
		d.cfg.Log.V(1).Info("image not present in daemon", "id", id, "exitCode", exitErr.ExitCode)
		return false, nil
	case err != nil:
		return false, err
	}

	return strings.Trim(strings.TrimSpace(out.String()), `'"`) != "", nil
}

func (d *DockerCLI) Load(ctx context.Context, archive io.Reader) error {
	return d.cfg.Runner.Run(ctx, d.command("docker load", archive, nil, "load"))
}

func (d *DockerCLI) Tag(ctx context.Context, id, tag string) error {
	return d.cfg.Runner.Run(ctx, d.command("docker tag", nil, nil, "tag", id, tag))
}

func (d *DockerCLI) command(step string, stdin io.Reader, stdout io.Writer, args ...string) process.Command {
	return process.Command{
		Step:   step,
		Name:   d.cfg.Docker,
		Args:   args,
		Env:    d.cfg.Env,
		Stdin:  stdin,
		Stdout: stdout,
	}
}

// Request describes one image to make available under a local tag.
type Request struct {
	// Archive is the image archive to load when the daemon lacks ImageID.
	Archive string
	ImageID string
	Tag     string
	// Marker is written with the tag once the import is complete.
	Marker string
}

func NewImporter(daemon Daemon, opts ...ImporterOption) *Importer {
	var cfg ImporterConfig

	cfg.Option(opts...)
	cfg.Default()

	return &Importer{cfg: cfg, daemon: daemon}
}

// Importer makes built images available in a local daemon.
type Importer struct {
	cfg    ImporterConfig
	daemon Daemon
}

type ImporterConfig struct {
	Log      logr.Logger
	Recorder *metrics.Recorder
}

func (c *ImporterConfig) Option(opts ...ImporterOption) {
	for _, opt := range opts {
		opt.ConfigureImporter(c)
	}
}

func (c *ImporterConfig) Default() {
	if c.Log.GetSink() == nil {
		c.Log = logr.Discard()
	}
}

type ImporterOption interface {
	ConfigureImporter(*ImporterConfig)
}

type WithLog struct{ Log logr.Logger }

func (w WithLog) ConfigureImporter(c *ImporterConfig) {
	c.Log = w.Log
}

func (w WithLog) ConfigureDockerCLI(c *DockerCLIConfig) {
	c.Log = w.Log
}

type WithRecorder struct{ Recorder *metrics.Recorder }

func (w WithRecorder) ConfigureImporter(c *ImporterConfig) {
	c.Recorder = w.Recorder
}

// Import loads req.Archive unless the daemon already has req.ImageID, then
// tags the image and writes the marker. Importing twice loads once.
func (i *Importer) Import(ctx context.Context, req Request) error {
	log := i.cfg.Log.WithValues("tag", req.Tag, "imageId", req.ImageID)

	exists, err := i.daemon.ImageExists(ctx, req.ImageID)
	if err != nil {
		return fmt.Errorf("checking for image %s: %w", req.ImageID, err)
	}

	if exists {
		log.Info("image already present in daemon, skipping load")
	} else {
		if err := i.load(ctx, req.Archive); err != nil {
			return err
		}
		log.Info("loaded image archive", "archive", req.Archive)
	}
	i.cfg.Recorder.RecordImport(!exists)

	if err := i.daemon.Tag(ctx, req.ImageID, req.Tag); err != nil {
		return fmt.Errorf("tagging image %s as %s: %w", req.ImageID, req.Tag, err)
	}

	if req.Marker == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(req.Marker), 0o755); err != nil {
		return fmt.Errorf("creating import marker directory: %w", err)
	}
	if err := os.WriteFile(req.Marker, []byte(req.Tag+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing import marker: %w", err)
	}

	return nil
}

func (i *Importer) load(ctx context.Context, archive string) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("opening image archive: %w", err)
	}
	defer f.Close()

	if err := i.daemon.Load(ctx, f); err != nil {
		return fmt.Errorf("loading %s: %w", archive, err)
	}

	return nil
}
