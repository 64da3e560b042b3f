package dockerfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
	"layercake.run/internal/daemon"
	"layercake.run/internal/metrics"
	"layercake.run/internal/process"
	"layercake.run/internal/staging"
)

// The build context sent to the daemon is the output directory, which also
// holds archives of earlier builds.
const dockerignore = `*
!Dockerfile
!%s
`

func NewBackend(opts ...BackendOption) *Backend {
	var cfg BackendConfig

	cfg.Option(opts...)
	cfg.Default()

	cli := daemon.NewDockerCLI(
		daemon.WithRunner{Runner: cfg.Runner},
		daemon.WithDocker(cfg.Docker),
		daemon.WithEnv(cfg.Env),
		daemon.WithLog{Log: cfg.Log},
	)

	return &Backend{
		cfg:      cfg,
		siblings: daemon.NewImporter(cli, daemon.WithLog{Log: cfg.Log}, daemon.WithRecorder{Recorder: cfg.Recorder}),
	}
}

// Backend compiles images with `docker image build`.
type Backend struct {
	cfg BackendConfig
	// siblings makes base project images available to the daemon.
	siblings *daemon.Importer
}

type BackendConfig struct {
	Log      logr.Logger
	Runner   process.Runner
	Results  *buildinfo.Store
	Recorder *metrics.Recorder
	// Docker is the docker CLI binary.
	Docker string
	// Env is passed to every docker invocation. Nothing else is inherited.
	Env map[string]string
}

func (c *BackendConfig) Option(opts ...BackendOption) {
	for _, opt := range opts {
		opt.ConfigureBackend(c)
	}
}

func (c *BackendConfig) Default() {
	if c.Log.GetSink() == nil {
		c.Log = logr.Discard()
	}
	if c.Runner == nil {
		c.Runner = process.NewExecRunner(process.WithLog{Log: c.Log})
	}
	if c.Results == nil {
		c.Results = buildinfo.NewStore()
	}
	if c.Docker == "" {
		c.Docker = "docker"
	}
	if c.Env == nil {
		c.Env = map[string]string{}
	}
}

type BackendOption interface {
	ConfigureBackend(*BackendConfig)
}

type WithLog struct{ Log logr.Logger }

func (w WithLog) ConfigureBackend(c *BackendConfig) {
	c.Log = w.Log
}

type WithRunner struct{ Runner process.Runner }

func (w WithRunner) ConfigureBackend(c *BackendConfig) {
	c.Runner = w.Runner
}

type WithResults struct{ Results *buildinfo.Store }

func (w WithResults) ConfigureBackend(c *BackendConfig) {
	c.Results = w.Results
}

type WithRecorder struct{ Recorder *metrics.Recorder }

func (w WithRecorder) ConfigureBackend(c *BackendConfig) {
	c.Recorder = w.Recorder
}

type WithDocker string

func (w WithDocker) ConfigureBackend(c *BackendConfig) {
	c.Docker = string(w)
}

type WithEnv map[string]string

func (w WithEnv) ConfigureBackend(c *BackendConfig) {
	c.Env = map[string]string(w)
}

// Compile renders the Dockerfile, builds it with the docker daemon, saves the
// image archive and records the BuildResult.
func (b *Backend) Compile(ctx context.Context, req conventions.BuildRequest) (res buildinfo.BuildResult, err error) {
	start := time.Now()
	defer func() {
		b.cfg.Recorder.RecordBuild(string(buildinfo.BuilderDockerfile), time.Since(start), err)
	}()

	bctx := req.Context
	tag := bctx.Tag()
	log := b.cfg.Log.WithValues("tag", tag)

	if _, err := bctx.Reference(); err != nil {
		return res, err
	}

	base, err := b.resolveBase(req.Base)
	if err != nil {
		return res, err
	}

	if err := staging.ValidateContext(bctx.ContextDir(), req.Model.Copies()); err != nil {
		return res, err
	}

	var manifest bytes.Buffer
	if err := Generate(&manifest, req.Model, base, bctx.ContextDirName()); err != nil {
		return res, fmt.Errorf("generating Dockerfile: %w", err)
	}
	if err := Validate(manifest.Bytes()); err != nil {
		return res, err
	}
	if err := os.WriteFile(bctx.DockerfilePath(), manifest.Bytes(), 0o644); err != nil {
		return res, fmt.Errorf("writing Dockerfile: %w", err)
	}
	ignorePath := filepath.Join(filepath.Dir(bctx.DockerfilePath()), ".dockerignore")
	if err := os.WriteFile(ignorePath, []byte(fmt.Sprintf(dockerignore, bctx.ContextDirName())), 0o644); err != nil {
		return res, fmt.Errorf("writing .dockerignore: %w", err)
	}

	workDir := filepath.Dir(bctx.DockerfilePath())
	platform := bctx.Arch.Platform()

	// The sibling may have been built by the direct backend, in which case
	// its image only exists in the archive.
	if req.Base.IsLocal() && base.ImageID != "" {
		log.V(1).Info("importing base project", "project", base.Project, "archive", req.Base.ArchivePath)
		if err := b.siblings.Import(ctx, daemon.Request{
			Archive: req.Base.ArchivePath,
			ImageID: base.ImageID,
			Tag:     base.Reference,
		}); err != nil {
			return res, fmt.Errorf("importing base project %s: %w", base.Project, err)
		}
	}

	log.Info("building image", "dockerfile", bctx.DockerfilePath())
	if err := b.docker(ctx, "docker build", workDir, nil,
		"image", "build", "--no-cache", "--platform="+platform.String(), "--tag="+tag, "."); err != nil {
		return res, fmt.Errorf("failed to build docker image, see the docker build log above: %w", err)
	}

	log.V(1).Info("saving image", "archive", bctx.ArchivePath())
	if err := b.docker(ctx, "docker save", workDir, nil,
		"save", "--output="+bctx.ArchivePath(), tag); err != nil {
		return res, fmt.Errorf("saving docker image: %w", err)
	}

	var out bytes.Buffer
	if err := b.docker(ctx, "docker inspect", workDir, &out,
		"image", "inspect", "--format={{.Id}}", tag); err != nil {
		return res, fmt.Errorf("inspecting docker image: %w", err)
	}
	imageID := strings.Trim(strings.TrimSpace(out.String()), `'"`)
	if imageID == "" {
		return res, fmt.Errorf("docker inspect returned no image id for %s", tag)
	}

	res = buildinfo.BuildResult{Tag: tag, Builder: buildinfo.BuilderDockerfile, ImageID: imageID}
	if err := buildinfo.Write(bctx.BuildInfoPath(), res); err != nil {
		return buildinfo.BuildResult{}, err
	}
	b.cfg.Results.Put(bctx.BuildInfoPath(), res)

	log.Info("built image", "imageId", imageID, "archive", bctx.ArchivePath())

	return res, nil
}

// resolveBase pins a sibling project base to the image id it was built as.
// A sibling built for another architecture is only known by reference.
func (b *Backend) resolveBase(base conventions.BaseImage) (Base, error) {
	if !base.IsProject() {
		return Base{Reference: base.Reference}, nil
	}

	sibling, err := b.cfg.Results.Get(base.Sibling.BuildInfoPath())
	switch {
	case err == nil:
		return Base{Reference: base.Reference, Project: base.Project, ImageID: sibling.ImageID}, nil
	case errors.Is(err, buildinfo.ErrNotFound) && !base.IsLocal():
		return Base{Reference: base.Reference, Project: base.Project}, nil
	case errors.Is(err, buildinfo.ErrNotFound):
		return Base{}, &conventions.ConfigurationError{
			Subject: base.Project, Reason: "base project has not been built yet", Err: err,
		}
	default:
		return Base{}, err
	}
}

func (b *Backend) docker(ctx context.Context, step, dir string, stdout *bytes.Buffer, args ...string) error {
	cmd := process.Command{
		Step: step,
		Name: b.cfg.Docker,
		Args: args,
		Dir:  dir,
		Env:  b.cfg.Env,
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}

	return b.cfg.Runner.Run(ctx, cmd)
}
