package dockerfile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
	"layercake.run/internal/instructions"
	"layercake.run/internal/process"
	"layercake.run/internal/testutil"
)

var appIdentity = conventions.Identity{Registry: "registry.example.com", Name: "app", Version: "1.0"}

func newContext(t *testing.T, layers ...string) conventions.BuildContext {
	t.Helper()

	bctx := conventions.NewBuildContext(t.TempDir(), appIdentity, conventions.AMD64, t.TempDir())
	require.NoError(t, os.MkdirAll(bctx.ContextDir(), 0o755))
	for _, l := range layers {
		dir := filepath.Join(bctx.ContextDir(), l)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte(l), 0o644))
	}

	return bctx
}

func inspectReturns(id string) func(testutil.RunnerCall) error {
	return func(call testutil.RunnerCall) error {
		if call.Step == "docker inspect" {
			_, err := io.WriteString(call.Stdout, "'"+id+"'\n")
			return err
		}
		return nil
	}
}

func TestBackend_Compile(t *testing.T) {
	t.Parallel()

	bctx := newContext(t, "layer0")
	m := &instructions.Model{}
	m.From("ubuntu:20.04")
	m.Copy()
	m.Entrypoint("run.sh")
	m.Env("K", "V")

	runner := &testutil.FakeRunner{Handler: inspectReturns("sha256:feed")}
	results := buildinfo.NewStore()
	b := NewBackend(WithRunner{runner}, WithResults{results}, WithLog{testr.New(t)})

	res, err := b.Compile(context.Background(), conventions.BuildRequest{
		Model:   m,
		Context: bctx,
		Base:    conventions.BaseImage{Reference: "ubuntu:20.04"},
	})
	require.NoError(t, err)
	assert.Equal(t, buildinfo.BuildResult{
		Tag:     "registry.example.com/app:1.0-amd64",
		Builder: buildinfo.BuilderDockerfile,
		ImageID: "sha256:feed",
	}, res)

	manifest, err := os.ReadFile(bctx.DockerfilePath())
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "FROM ubuntu:20.04\n")
	assert.Contains(t, string(manifest), "COPY context/layer0 /\n")
	assert.Contains(t, string(manifest), `ENTRYPOINT ["run.sh"]`)
	assert.Contains(t, string(manifest), "ENV K=V\n")
	assert.FileExists(t, filepath.Join(bctx.OutputDir(), ".dockerignore"))

	assert.Equal(t, []string{
		"docker image build --no-cache --platform=linux/amd64 --tag=registry.example.com/app:1.0-amd64 .",
		"docker save --output=" + bctx.ArchivePath() + " registry.example.com/app:1.0-amd64",
		"docker image inspect --format={{.Id}} registry.example.com/app:1.0-amd64",
	}, runner.Lines())
	for _, call := range runner.Calls() {
		assert.Equal(t, bctx.OutputDir(), call.Dir)
		assert.Empty(t, call.Env)
		assert.NotNil(t, call.Env)
	}

	written, err := buildinfo.Read(bctx.BuildInfoPath())
	require.NoError(t, err)
	assert.Equal(t, res, written)

	stored, err := results.Get(bctx.BuildInfoPath())
	require.NoError(t, err)
	assert.Equal(t, res, stored)
}

func TestBackend_Compile_BuildFails(t *testing.T) {
	t.Parallel()

	bctx := newContext(t, "layer0")
	m := (&instructions.Model{}).From("ubuntu:20.04")
	m.Copy()

	runner := &testutil.FakeRunner{Handler: func(call testutil.RunnerCall) error {
		if call.Step == "docker build" {
			return testutil.ExitWith(call, 1)
		}
		return nil
	}}
	b := NewBackend(WithRunner{runner})

	_, err := b.Compile(context.Background(), conventions.BuildRequest{
		Model: m, Context: bctx, Base: conventions.BaseImage{Reference: "ubuntu:20.04"},
	})

	var exitErr *process.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, err.Error(), "failed to build docker image, see the docker build log")
	assert.Len(t, runner.Calls(), 1)
	assert.NoFileExists(t, bctx.BuildInfoPath())
}

func TestBackend_Compile_StagingMismatch(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		Layers []string
		Copies int
	}{
		"missing layer": {Layers: []string{"layer0"}, Copies: 2},
		"extra layer":   {Layers: []string{"layer0", "layer1"}, Copies: 1},
	}

	for name, tc := range tests {
		tc := tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			bctx := newContext(t, tc.Layers...)
			m := (&instructions.Model{}).From("alpine")
			for i := 0; i < tc.Copies; i++ {
				m.Copy()
			}

			runner := &testutil.FakeRunner{}
			_, err := NewBackend(WithRunner{runner}).Compile(context.Background(), conventions.BuildRequest{
				Model: m, Context: bctx, Base: conventions.BaseImage{Reference: "alpine"},
			})

			var cfgErr *conventions.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Empty(t, runner.Calls())
			assert.NoFileExists(t, bctx.DockerfilePath())
		})
	}
}

func TestBackend_Compile_SiblingBase(t *testing.T) {
	t.Parallel()

	siblingCtx := conventions.NewBuildContext(t.TempDir(),
		conventions.Identity{Registry: "registry.example.com", Name: "base", Version: "1.0"},
		conventions.AMD64, "")

	m := (&instructions.Model{}).FromProject("base")
	m.Copy()

	t.Run("pinned to image id", func(t *testing.T) {
		t.Parallel()

		bctx := newContext(t, "layer0")
		results := buildinfo.NewStore()
		results.Put(siblingCtx.BuildInfoPath(), buildinfo.BuildResult{
			Tag: siblingCtx.Tag(), Builder: buildinfo.BuilderDirect, ImageID: "sha256:base",
		})
		base, err := conventions.ResolveBase(instructions.From{Project: "base"}, &siblingCtx,
			conventions.AMD64, conventions.AMD64)
		require.NoError(t, err)

		runner := &testutil.FakeRunner{Handler: inspectReturns("sha256:app")}
		_, err = NewBackend(WithRunner{runner}, WithResults{results}).Compile(context.Background(),
			conventions.BuildRequest{Model: m, Context: bctx, Base: base})
		require.NoError(t, err)

		manifest, err := os.ReadFile(bctx.DockerfilePath())
		require.NoError(t, err)
		assert.Contains(t, string(manifest),
			"# base (a.k.a registry.example.com/base:1.0-amd64)\nFROM sha256:base\n")
	})

	t.Run("direct built sibling is loaded before build", func(t *testing.T) {
		t.Parallel()

		bctx := newContext(t, "layer0")
		results := buildinfo.NewStore()
		results.Put(siblingCtx.BuildInfoPath(), buildinfo.BuildResult{
			Tag: siblingCtx.Tag(), Builder: buildinfo.BuilderDirect, ImageID: "sha256:base",
		})
		require.NoError(t, os.MkdirAll(siblingCtx.OutputDir(), 0o755))
		require.NoError(t, os.WriteFile(siblingCtx.ArchivePath(), []byte("base archive"), 0o644))
		base, err := conventions.ResolveBase(instructions.From{Project: "base"}, &siblingCtx,
			conventions.AMD64, conventions.AMD64)
		require.NoError(t, err)

		runner := &testutil.FakeRunner{Handler: func(call testutil.RunnerCall) error {
			if call.Line() == "docker image inspect --format={{.Id}} sha256:base" {
				return testutil.ExitWith(call, 1)
			}
			return inspectReturns("sha256:app")(call)
		}}
		_, err = NewBackend(WithRunner{runner}, WithResults{results}).Compile(context.Background(),
			conventions.BuildRequest{Model: m, Context: bctx, Base: base})
		require.NoError(t, err)

		calls := runner.Calls()
		require.GreaterOrEqual(t, len(calls), 4)
		assert.Equal(t, []string{
			"docker image inspect --format={{.Id}} sha256:base",
			"docker load",
			"docker tag sha256:base registry.example.com/base:1.0-amd64",
		}, runner.Lines()[:3])
		assert.Equal(t, []byte("base archive"), calls[1].StdinData)
		assert.True(t, strings.HasPrefix(calls[3].Line(), "docker image build "), calls[3].Line())
	})

	t.Run("sibling not built", func(t *testing.T) {
		t.Parallel()

		bctx := newContext(t, "layer0")
		base, err := conventions.ResolveBase(instructions.From{Project: "base"}, &siblingCtx,
			conventions.AMD64, conventions.AMD64)
		require.NoError(t, err)

		runner := &testutil.FakeRunner{}
		_, err = NewBackend(WithRunner{runner}).Compile(context.Background(),
			conventions.BuildRequest{Model: m, Context: bctx, Base: base})

		var cfgErr *conventions.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		require.True(t, errors.Is(err, buildinfo.ErrNotFound))
		assert.Empty(t, runner.Calls())
	})
}

func TestBackend_Compile_PassesConfiguredEnv(t *testing.T) {
	t.Parallel()

	bctx := newContext(t)
	m := (&instructions.Model{}).From("alpine")

	runner := &testutil.FakeRunner{Handler: inspectReturns("sha256:1")}
	_, err := NewBackend(
		WithRunner{runner},
		WithDocker("/usr/local/bin/docker"),
		WithEnv{"DOCKER_HOST": "unix:///run/docker.sock"},
	).Compile(context.Background(), conventions.BuildRequest{
		Model: m, Context: bctx, Base: conventions.BaseImage{Reference: "alpine"},
	})
	require.NoError(t, err)

	for _, call := range runner.Calls() {
		assert.Equal(t, "/usr/local/bin/docker", call.Name)
		assert.Equal(t, map[string]string{"DOCKER_HOST": "unix:///run/docker.sock"}, call.Env)
	}
}
