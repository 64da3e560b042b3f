package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Parallel()

	info := Get()

	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Source)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		Stamped         string
		ModuleVersion   string
		ExpectedVersion string
		ExpectedSource  Source
	}{
		"ldflags win": {
			Stamped:         "v1.2.3",
			ModuleVersion:   "v1.0.0",
			ExpectedVersion: "v1.2.3",
			ExpectedSource:  SourceRelease,
		},
		"module version": {
			ModuleVersion:   "v1.0.0",
			ExpectedVersion: "v1.0.0",
			ExpectedSource:  SourceModule,
		},
		"local build": {
			ModuleVersion:   "(devel)",
			ExpectedVersion: "(devel)",
			ExpectedSource:  SourceDevel,
		},
		"no build info": {
			ExpectedVersion: "(devel)",
			ExpectedSource:  SourceDevel,
		},
	} {
		tc := tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			info := resolve(tc.Stamped, &debug.BuildInfo{Main: debug.Module{Version: tc.ModuleVersion}})

			assert.Equal(t, tc.ExpectedVersion, info.Version)
			assert.Equal(t, tc.ExpectedSource, info.Source)
		})
	}
}

func TestInfo_Revision(t *testing.T) {
	t.Parallel()

	info := Info{BuildInfo: &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "0123abcd"},
		{Key: "vcs.modified", Value: "true"},
	}}}

	revision, modified := info.Revision()
	assert.Equal(t, "0123abcd", revision)
	assert.True(t, modified)

	revision, modified = Info{BuildInfo: &debug.BuildInfo{}}.Revision()
	assert.Empty(t, revision)
	assert.False(t, modified)
}
