package importcmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"layercake.run/cmd/layercake/cmdtest"
	"layercake.run/internal/buildfile"
	"layercake.run/internal/buildinfo"
	internalcmd "layercake.run/internal/cmd"
	"layercake.run/internal/conventions"
)

func TestImport(t *testing.T) {
	t.Parallel()

	imp := &importerMock{}
	imp.On("ImportProject", mock.Anything, "app", []string{"arm64"}).Return([]internalcmd.ProjectResult{{
		Project:     "app",
		Arch:        conventions.ARM64,
		BuildResult: buildinfo.BuildResult{Tag: "registry.example.com/app:1.0-arm64", ImageID: "sha256:1"},
	}}, nil)

	factory := &importerFactoryMock{}
	factory.On("Importer", mock.Anything, map[string]string{"DOCKER_CONFIG": "/etc/docker"}).Return(imp)

	stdout, stderr, err := cmdtest.ExecuteInWorkspace(t, NewCmd(factory, nil),
		"app", "--arch", "arm64", "--docker-env", "DOCKER_CONFIG=/etc/docker")
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, "registry.example.com/app:1.0-arm64")
	imp.AssertExpectations(t)
}

func TestImport_NotBuilt(t *testing.T) {
	t.Parallel()

	imp := &importerMock{}
	imp.On("ImportProject", mock.Anything, "app", []string(nil)).Return(
		[]internalcmd.ProjectResult(nil), conventions.NewConfigurationError("app", "project has not been built for amd64"))

	factory := &importerFactoryMock{}
	factory.On("Importer", mock.Anything, mock.Anything).Return(imp)

	_, _, err := cmdtest.ExecuteInWorkspace(t, NewCmd(factory, nil), "app")

	var cerr *conventions.ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

type importerFactoryMock struct {
	mock.Mock
}

func (m *importerFactoryMock) Importer(ws *buildfile.Workspace, dockerEnv map[string]string) Importer {
	args := m.Called(ws, dockerEnv)

	return args.Get(0).(Importer)
}

type importerMock struct {
	mock.Mock
}

func (m *importerMock) ImportProject(ctx context.Context, project string, archs []string) ([]internalcmd.ProjectResult, error) {
	args := m.Called(ctx, project, archs)

	return args.Get(0).([]internalcmd.ProjectResult), args.Error(1)
}
