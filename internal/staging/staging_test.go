package staging

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"layercake.run/internal/conventions"
	"layercake.run/internal/instructions"
)

func stage(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func copies(n int) []instructions.Copy {
	m := &instructions.Model{}
	for i := 0; i < n; i++ {
		m.Copy()
	}

	return m.Copies()
}

func TestValidateContext(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		Files     map[string]string
		EmptyDirs []string
		Copies    int
		ExpectErr string
	}{
		"matching": {
			Files:  map[string]string{"layer0/a": "a", "layer1/b/c": "c", "unrelated.txt": "x"},
			Copies: 2,
		},
		"no copies no layers": {
			Files: map[string]string{"readme": "x"},
		},
		"missing layer": {
			Files:     map[string]string{"layer0/a": "a"},
			Copies:    2,
			ExpectErr: "layer1 is not an existing folder",
		},
		"extra layer": {
			Files:     map[string]string{"layer0/a": "a", "layer1/b": "b"},
			Copies:    1,
			ExpectErr: "layer1 is staged but no copy instruction uses it",
		},
		"empty layer": {
			Files:     map[string]string{"layer0/a": "a"},
			EmptyDirs: []string{"layer1"},
			Copies:    2,
			ExpectErr: "layer1 is empty",
		},
		"layer is a file": {
			Files:     map[string]string{"layer0": "oops"},
			Copies:    1,
			ExpectErr: "layer0 is not an existing folder",
		},
	}

	for name, tc := range tests {
		tc := tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			stage(t, dir, tc.Files)
			for _, d := range tc.EmptyDirs {
				require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0o755))
			}

			err := ValidateContext(dir, copies(tc.Copies))
			if tc.ExpectErr == "" {
				require.NoError(t, err)
				return
			}

			var cfgErr *conventions.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tc.ExpectErr)
		})
	}
}

func TestValidateContext_MissingContextDir(t *testing.T) {
	t.Parallel()

	err := ValidateContext(filepath.Join(t.TempDir(), "nope"), nil)

	var cfgErr *conventions.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestParseLayerDirName(t *testing.T) {
	t.Parallel()

	for name, expected := range map[string]int{"layer0": 0, "layer12": 12} {
		n, ok := parseLayerDirName(name)
		assert.True(t, ok, name)
		assert.Equal(t, expected, n)
	}
	for _, name := range []string{"layer", "layers", "layer01", "layer-1", "Layer1", "xlayer1"} {
		_, ok := parseLayerDirName(name)
		assert.False(t, ok, name)
	}
}

func TestEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stage(t, dir, map[string]string{
		"app/run.sh":   "#!/bin/sh",
		"etc/app.conf": "x=1",
	})
	require.NoError(t, os.Symlink("app/run.sh", filepath.Join(dir, "run")))

	entries, err := Entries(dir)
	require.NoError(t, err)

	var targets []string
	for _, e := range entries {
		targets = append(targets, e.Target)
	}
	assert.Equal(t, []string{"/app", "/app/run.sh", "/etc", "/etc/app.conf", "/run"}, targets)
	assert.True(t, entries[0].Info.IsDir())
	assert.Equal(t, "app/run.sh", entries[4].Link)
}

func TestInferMode(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		Caps     Capabilities
		IsDir    bool
		Expected fs.FileMode
	}{
		"read execute": {
			Caps:     Capabilities{Read: true, Execute: true},
			Expected: 0o555,
		},
		"read only": {
			Caps:     Capabilities{Read: true},
			Expected: 0o444,
		},
		"read write": {
			Caps:     Capabilities{Read: true, Write: true},
			Expected: 0o664,
		},
		"all": {
			Caps:     Capabilities{Read: true, Write: true, Execute: true},
			Expected: 0o775,
		},
		"directory is traversable": {
			Caps:     Capabilities{Read: true},
			IsDir:    true,
			Expected: 0o555,
		},
		"nothing": {
			Expected: 0,
		},
	}

	for name, tc := range tests {
		tc := tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.Expected, InferMode(tc.Caps, tc.IsDir))
		})
	}
}

func TestPermissions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tool")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o755))
	info, err := os.Lstat(path)
	require.NoError(t, err)
	entry := Entry{Path: path, Target: "/tool", Info: info}

	t.Run("posix", func(t *testing.T) {
		t.Parallel()

		p := &proberMock{}
		p.On("PosixMode", path, info).Return(fs.FileMode(0o750), nil)

		mode, err := Permissions(p, entry)
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0o750), mode)
		p.AssertNotCalled(t, "Capabilities", mock.Anything)
	})

	t.Run("fallback", func(t *testing.T) {
		t.Parallel()

		p := &proberMock{}
		p.On("PosixMode", path, info).Return(fs.FileMode(0), ErrPosixUnsupported)
		p.On("Capabilities", path).Return(Capabilities{Read: true, Execute: true}, nil)

		mode, err := Permissions(p, entry)
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0o555), mode)
	})

	t.Run("detection failure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		p := &proberMock{}
		p.On("PosixMode", path, info).Return(fs.FileMode(0), boom)

		_, err := Permissions(p, entry)
		var permErr *PermissionError
		require.ErrorAs(t, err, &permErr)
		require.ErrorIs(t, err, boom)
	})

	t.Run("host", func(t *testing.T) {
		t.Parallel()

		mode, err := Permissions(DefaultProber, entry)
		require.NoError(t, err)
		assert.NotZero(t, mode&0o400)
	})
}

type proberMock struct {
	mock.Mock
}

func (m *proberMock) PosixMode(path string, info fs.FileInfo) (fs.FileMode, error) {
	args := m.Called(path, info)
	return args.Get(0).(fs.FileMode), args.Error(1)
}

func (m *proberMock) Capabilities(path string) (Capabilities, error) {
	args := m.Called(path)
	return args.Get(0).(Capabilities), args.Error(1)
}
