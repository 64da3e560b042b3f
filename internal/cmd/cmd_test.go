package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"layercake.run/internal/buildfile"
	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
	"layercake.run/internal/daemon"
)

const testWorkspace = `registry: registry.example.com
version: "1.0"
projects:
- name: base
  dir: base
- name: app
  dir: app
- name: loop-a
  dir: loop-a
- name: loop-b
  dir: loop-b
`

var testDefinitions = map[string]string{
	"base": `builder: direct
architectures: [amd64, arm64]
instructions:
- from: ubuntu:22.04
- copy: {}
- env: {ARCH: "{{ .Architecture }}"}
`,
	"app": `architectures: [amd64, arm64]
instructions:
- from: {project: base}
- maintainer: {name: Jane, email: jane@example.com}
- copy: {}
- run: [apt-get update, apt-get install -y curl]
- copy: {uid: 1000, gid: 1000}
- env: {MODE: prod}
- changingLabel: {org.example.commit: abc}
- entrypoint: [/app]
- expose: 8080
`,
	"loop-a": `instructions: [{from: {project: loop-b}}]`,
	"loop-b": `instructions: [{from: {project: loop-a}}]`,
}

func newWorkspace(t *testing.T) *buildfile.Workspace {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, buildfile.WorkspaceFileName)
	require.NoError(t, os.WriteFile(path, []byte(testWorkspace), 0o644))

	for project, def := range testDefinitions {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, project), 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, project, buildfile.DefinitionFileName), []byte(def), 0o644))
	}

	ws, err := buildfile.LoadWorkspace(path)
	require.NoError(t, err)

	return ws
}

type backendMock struct {
	mock.Mock
}

func (m *backendMock) Compile(ctx context.Context, req conventions.BuildRequest) (buildinfo.BuildResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(buildinfo.BuildResult), args.Error(1)
}

type pullerMock struct {
	mock.Mock
}

func (m *pullerMock) Pull(ctx context.Context, ref string, arch conventions.Architecture, dst string) (string, error) {
	args := m.Called(ctx, ref, arch, dst)
	return args.String(0), args.Error(1)
}

type pusherMock struct {
	mock.Mock
}

func (m *pusherMock) Push(ctx context.Context, src, ref string) (string, error) {
	args := m.Called(ctx, src, ref)
	return args.String(0), args.Error(1)
}

type importerMock struct {
	mock.Mock
}

func (m *importerMock) Import(ctx context.Context, req daemon.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}
