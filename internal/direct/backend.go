// Package direct assembles images from a base archive and staged layers
// without a docker daemon.
package direct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/cache"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
	"layercake.run/internal/instructions"
	"layercake.run/internal/metrics"
	"layercake.run/internal/staging"
)

const (
	maintainerLabel = "maintainer"
	scratchDirName  = "layers"
)

// ArchiveReadError is returned when a base image archive cannot be read.
type ArchiveReadError struct {
	Path string
	Err  error
}

func (e *ArchiveReadError) Error() string {
	return fmt.Sprintf("reading image archive %s: %v", e.Path, e.Err)
}

func (e *ArchiveReadError) Unwrap() error {
	return e.Err
}

// BasePuller fetches a remote base image into a local archive.
type BasePuller interface {
	Pull(ctx context.Context, ref string, arch conventions.Architecture, dst string) (string, error)
}

func NewBackend(opts ...BackendOption) *Backend {
	var cfg BackendConfig

	cfg.Option(opts...)
	cfg.Default()

	return &Backend{cfg: cfg}
}

// Backend builds images by appending staged layers to a base image archive.
type Backend struct {
	cfg BackendConfig
}

type BackendConfig struct {
	Log      logr.Logger
	Puller   BasePuller
	Prober   staging.Prober
	Results  *buildinfo.Store
	Recorder *metrics.Recorder
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
	if c.Prober == nil {
		c.Prober = staging.DefaultProber
	}
	if c.Results == nil {
		c.Results = buildinfo.NewStore()
	}
}

type BackendOption interface {
	ConfigureBackend(*BackendConfig)
}

type WithLog struct{ Log logr.Logger }

func (w WithLog) ConfigureBackend(c *BackendConfig) {
	c.Log = w.Log
}

type WithPuller struct{ Puller BasePuller }

func (w WithPuller) ConfigureBackend(c *BackendConfig) {
	c.Puller = w.Puller
}

type WithProber struct{ Prober staging.Prober }

func (w WithProber) ConfigureBackend(c *BackendConfig) {
	c.Prober = w.Prober
}

type WithResults struct{ Results *buildinfo.Store }

func (w WithResults) ConfigureBackend(c *BackendConfig) {
	c.Results = w.Results
}

type WithRecorder struct{ Recorder *metrics.Recorder }

func (w WithRecorder) ConfigureBackend(c *BackendConfig) {
	c.Recorder = w.Recorder
}

// Compile assembles the image described by req, writes it as archive and
// records the BuildResult.
func (b *Backend) Compile(ctx context.Context, req conventions.BuildRequest) (res buildinfo.BuildResult, err error) {
	start := time.Now()
	defer func() {
		b.cfg.Recorder.RecordBuild(string(buildinfo.BuilderDirect), time.Since(start), err)
	}()

	bctx := req.Context
	log := b.cfg.Log.WithValues("tag", bctx.Tag())

	if req.Model.HasRun() {
		return res, conventions.NewConfigurationError(bctx.ProjectDir,
			"RUN instructions can only be built with the dockerfile builder")
	}

	ref, err := bctx.Reference()
	if err != nil {
		return res, err
	}

	copies := req.Model.Copies()
	if err := staging.ValidateContext(bctx.ContextDir(), copies); err != nil {
		return res, err
	}

	basePath, err := b.ensureBase(ctx, req)
	if err != nil {
		return res, err
	}
	log.V(1).Info("reading base image", "archive", basePath)

	img, err := tarball.ImageFromPath(basePath, nil)
	if err != nil {
		return res, &ArchiveReadError{Path: basePath, Err: err}
	}
	baseCfg, err := img.ConfigFile()
	if err != nil {
		return res, &ArchiveReadError{Path: basePath, Err: err}
	}

	if len(copies) > 0 {
		if img, err = b.appendLayers(img, bctx, copies); err != nil {
			return res, err
		}
	}

	img, err = configure(img, baseCfg, req.Model, bctx.Arch, log)
	if err != nil {
		return res, err
	}

	if err := writeArchive(bctx.ArchivePath(), ref, img); err != nil {
		return res, fmt.Errorf("writing image archive: %w", err)
	}

	configName, err := img.ConfigName()
	if err != nil {
		return res, fmt.Errorf("computing image id: %w", err)
	}

	res = buildinfo.BuildResult{Tag: bctx.Tag(), Builder: buildinfo.BuilderDirect, ImageID: configName.String()}
	if err := buildinfo.Write(bctx.BuildInfoPath(), res); err != nil {
		return buildinfo.BuildResult{}, err
	}
	b.cfg.Results.Put(bctx.BuildInfoPath(), res)

	log.Info("built image", "imageId", res.ImageID, "archive", bctx.ArchivePath())

	return res, nil
}

// ensureBase returns the path of the base image archive. A remote base is
// pulled into the build's base archive unless that archive already holds
// the requested tag.
func (b *Backend) ensureBase(ctx context.Context, req conventions.BuildRequest) (string, error) {
	if req.Base.IsLocal() {
		if _, err := os.Stat(req.Base.ArchivePath); err != nil {
			return "", &ArchiveReadError{Path: req.Base.ArchivePath, Err: err}
		}
		return req.Base.ArchivePath, nil
	}

	path := req.Context.BaseArchivePath()
	current, err := archiveHolds(path, req.Base)
	switch {
	case err != nil:
		return "", err
	case current:
		return path, nil
	case b.cfg.Puller == nil:
		return "", conventions.NewConfigurationError(path, "base image %s has not been pulled", req.Base.Reference)
	}

	b.cfg.Log.V(1).Info("pulling base image", "reference", req.Base.Reference, "archive", path)
	if _, err := b.cfg.Puller.Pull(ctx, req.Base.Reference, req.Context.Arch, path); err != nil {
		return "", err
	}

	return path, nil
}

// archiveHolds reports whether the archive at path was written for the
// base reference. Digest references and published sibling projects carry
// no stable tag in the archive and are always fetched again.
func archiveHolds(path string, base conventions.BaseImage) (bool, error) {
	ref, err := name.ParseReference(base.Reference)
	if err != nil {
		return false, &conventions.ConfigurationError{Subject: base.Reference, Reason: "invalid image reference", Err: err}
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, &ArchiveReadError{Path: path, Err: err}
	}

	tag, ok := ref.(name.Tag)
	if !ok || base.IsProject() {
		return false, nil
	}

	manifest, err := tarball.LoadManifest(func() (io.ReadCloser, error) { return os.Open(path) })
	if err != nil {
		return false, &ArchiveReadError{Path: path, Err: err}
	}
	for _, desc := range manifest {
		for _, t := range desc.RepoTags {
			repoTag, err := name.NewTag(t)
			if err == nil && repoTag.Name() == tag.Name() {
				return true, nil
			}
		}
	}

	return false, nil
}

// appendLayers adds one layer per copy instruction. The layer cache is
// emptied first and then filled with the new layers as they are written.
func (b *Backend) appendLayers(img v1.Image, bctx conventions.BuildContext, copies []instructions.Copy) (v1.Image, error) {
	cacheDir := bctx.LayerCacheDir()
	if err := os.RemoveAll(cacheDir); err != nil {
		return nil, fmt.Errorf("clearing layer cache: %w", err)
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating layer cache: %w", err)
	}
	layerCache := cache.NewFilesystemCache(cacheDir)
	scratchDir := filepath.Join(bctx.OutputDir(), scratchDirName)

	addenda := make([]mutate.Addendum, 0, len(copies))
	for _, c := range copies {
		layer, err := buildLayer(bctx.LayerDir(c.Ordinal), scratchDir, c, b.cfg.Prober)
		if err != nil {
			return nil, fmt.Errorf("building %s: %w", c.ContentDir, err)
		}
		if layer, err = layerCache.Put(layer); err != nil {
			return nil, fmt.Errorf("caching %s: %w", c.ContentDir, err)
		}

		addenda = append(addenda, mutate.Addendum{
			Layer: layer,
			History: v1.History{
				Author:    "layercake",
				Created:   v1.Time{Time: entryModTime},
				CreatedBy: fmt.Sprintf("COPY %s /", c.ContentDir),
			},
		})
	}

	res, err := mutate.Append(img, addenda...)
	if err != nil {
		return nil, fmt.Errorf("appending layers: %w", err)
	}

	return res, nil
}

// configure applies the model's configuration on top of the base image's.
// Entrypoint and cmd are inherited from the base unless declared.
func configure(img v1.Image, baseCfg *v1.ConfigFile, m *instructions.Model, arch conventions.Architecture, log logr.Logger) (v1.Image, error) {
	current, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("reading image config: %w", err)
	}
	cfg := current.DeepCopy()

	cfg.Config.Entrypoint = baseCfg.Config.Entrypoint
	if argv, ok := m.EntrypointArgv(); ok && len(argv) > 0 {
		cfg.Config.Entrypoint = argv
	}
	cfg.Config.Cmd = baseCfg.Config.Cmd
	if argv, ok := m.CmdArgv(); ok && len(argv) > 0 {
		cfg.Config.Cmd = argv
	}

	cfg.Config.Env = mergeEnv(cfg.Config.Env, m.EnvVars())

	labels := m.Labels()
	if mt, ok := m.MaintainerInfo(); ok {
		if _, declared := labels.Get(maintainerLabel); !declared {
			labels.Set(maintainerLabel, mt.String())
		}
	}
	if labels.Len() > 0 && cfg.Config.Labels == nil {
		cfg.Config.Labels = map[string]string{}
	}
	labels.Each(func(k, v string) { cfg.Config.Labels[k] = v })

	if wd, ok := m.WorkdirPath(); ok {
		cfg.Config.WorkingDir = wd
	}

	if ports := m.ExposedPorts(); len(ports) > 0 {
		if cfg.Config.ExposedPorts == nil {
			cfg.Config.ExposedPorts = map[string]struct{}{}
		}
		for _, p := range ports {
			cfg.Config.ExposedPorts[p.String()] = struct{}{}
		}
	}

	if cfg.OS == "" {
		cfg.OS = "linux"
	}
	switch {
	case cfg.Architecture == "":
		cfg.Architecture = string(arch)
	case cfg.Architecture != string(arch):
		log.Info("base image architecture differs from target",
			"base", cfg.Architecture, "target", string(arch))
	}
	cfg.Created = v1.Time{Time: entryModTime}

	res, err := mutate.ConfigFile(img, cfg)
	if err != nil {
		return nil, fmt.Errorf("writing image config: %w", err)
	}

	return res, nil
}

// mergeEnv overrides KEY=VALUE entries of base by key and appends new keys.
func mergeEnv(base []string, env *instructions.KeyValues) []string {
	res := append([]string(nil), base...)
	index := map[string]int{}
	for i, kv := range res {
		k, _, _ := strings.Cut(kv, "=")
		index[k] = i
	}

	env.Each(func(k, v string) {
		if i, ok := index[k]; ok {
			res[i] = k + "=" + v
			return
		}
		index[k] = len(res)
		res = append(res, k+"="+v)
	})

	return res
}

func writeArchive(dst string, ref name.Reference, img v1.Image) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp := dst + ".tmp"
	if err := tarball.WriteToFile(tmp, ref, img); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dst)
}
