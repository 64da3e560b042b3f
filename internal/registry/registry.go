// Package registry pulls base images into local archives and pushes built
// archives to remote registries.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"layercake.run/internal/conventions"
	"layercake.run/internal/metrics"
	"layercake.run/internal/retry"
)

const (
	operationPull = "pull"
	operationPush = "push"
)

func NewClient(opts ...ClientOption) *Client {
	var cfg ClientConfig

	cfg.Option(opts...)
	cfg.Default()

	return &Client{
		cfg:       cfg,
		cranePull: crane.Pull,
		cranePush: crane.Push,
	}
}

type (
	cranePullFn func(src string, opt ...crane.Option) (v1.Image, error)
	cranePushFn func(img v1.Image, dst string, opt ...crane.Option) error
)

// Client talks to registries. Every pull and push is retried according to
// the configured policy.
type Client struct {
	cfg       ClientConfig
	cranePull cranePullFn
	cranePush cranePushFn
}

type ClientConfig struct {
	Log          logr.Logger
	Recorder     *metrics.Recorder
	Policy       retry.Policy
	CraneOptions []crane.Option
}

func (c *ClientConfig) Option(opts ...ClientOption) {
	for _, opt := range opts {
		opt.ConfigureClient(c)
	}
}

func (c *ClientConfig) Default() {
	if c.Log.GetSink() == nil {
		c.Log = logr.Discard()
	}
	if c.Policy.MaxAttempts == 0 {
		c.Policy = retry.RegistryPolicy(nil)
	}
}

type ClientOption interface {
	ConfigureClient(*ClientConfig)
}

type WithLog struct{ Log logr.Logger }

func (w WithLog) ConfigureClient(c *ClientConfig) {
	c.Log = w.Log
}

type WithRecorder struct{ Recorder *metrics.Recorder }

func (w WithRecorder) ConfigureClient(c *ClientConfig) {
	c.Recorder = w.Recorder
}

type WithPolicy struct{ Policy retry.Policy }

func (w WithPolicy) ConfigureClient(c *ClientConfig) {
	c.Policy = w.Policy
}

type WithCraneOptions []crane.Option

func (w WithCraneOptions) ConfigureClient(c *ClientConfig) {
	c.CraneOptions = append(c.CraneOptions, w...)
}

// WithInsecure allows plain http registries.
type WithInsecure bool

func (w WithInsecure) ConfigureClient(c *ClientConfig) {
	if w {
		c.CraneOptions = append(c.CraneOptions, crane.Insecure)
	}
}

func (c *Client) craneOptions(ctx context.Context, extra ...crane.Option) []crane.Option {
	opts := []crane.Option{
		crane.WithContext(ctx),
		crane.WithAuthFromKeychain(authn.DefaultKeychain),
	}
	opts = append(opts, c.cfg.CraneOptions...)

	return append(opts, extra...)
}

func (c *Client) policy(operation, ref string) retry.Policy {
	p := c.cfg.Policy
	next := p.OnRetryError
	p.OnRetryError = func(attempt int, err error) {
		c.cfg.Log.Info("registry operation failed, retrying",
			"operation", operation, "reference", ref, "attempt", attempt, "error", err.Error())
		c.cfg.Recorder.RecordRegistryRetry(operation)
		if next != nil {
			next(attempt, err)
		}
	}

	return p
}

// Pull fetches the image ref for arch and stores it as archive at dst.
// It returns the digest of the pulled image.
func (c *Client) Pull(ctx context.Context, ref string, arch conventions.Architecture, dst string) (string, error) {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return "", &conventions.ConfigurationError{Subject: ref, Reason: "invalid image reference", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	platform := arch.Platform()
	verboseLog := logr.FromContextOrDiscard(ctx).V(1)

	digest, err := retry.Do(ctx, c.policy(operationPull, ref), func(ctx context.Context) (string, error) {
		verboseLog.Info("pulling image", "reference", ref, "platform", platform.String())

		img, err := c.cranePull(ref, c.craneOptions(ctx, crane.WithPlatform(&platform))...)
		if err != nil {
			return "", err
		}

		// Layers are fetched lazily, so writing the archive is part of the attempt.
		if err := writeArchive(dst, parsed, img); err != nil {
			return "", err
		}

		d, err := img.Digest()
		if err != nil {
			return "", err
		}

		return d.String(), nil
	})
	if err != nil {
		return "", fmt.Errorf("pull %s: %w", ref, err)
	}

	c.cfg.Log.Info("pulled image", "reference", ref, "digest", digest, "archive", dst)

	return digest, nil
}

// Push uploads the image archive at src to ref and returns the pushed digest.
func (c *Client) Push(ctx context.Context, src, ref string) (string, error) {
	if _, err := name.ParseReference(ref); err != nil {
		return "", &conventions.ConfigurationError{Subject: ref, Reason: "invalid image reference", Err: err}
	}

	img, err := tarball.ImageFromPath(src, nil)
	if err != nil {
		return "", fmt.Errorf("open image archive %s: %w", src, err)
	}

	verboseLog := logr.FromContextOrDiscard(ctx).V(1)

	err = retry.Run(ctx, c.policy(operationPush, ref), func(ctx context.Context) error {
		verboseLog.Info("pushing image", "reference", ref)

		return c.cranePush(img, ref, c.craneOptions(ctx)...)
	})
	if err != nil {
		return "", fmt.Errorf("push %s: %w", ref, err)
	}

	digest, err := img.Digest()
	if err != nil {
		return "", fmt.Errorf("digest of %s: %w", src, err)
	}

	c.cfg.Log.Info("pushed image", "reference", ref, "digest", digest.String())

	return digest.String(), nil
}

// writeArchive writes img to a temporary file first so a failed attempt
// never leaves a truncated archive at dst.
func writeArchive(dst string, ref name.Reference, img v1.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tarball.Write(ref, img, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, dst)
}
