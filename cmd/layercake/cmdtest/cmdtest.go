// Package cmdtest runs layercake subcommands in tests.
package cmdtest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"layercake.run/cmd/layercake/rootcmd"
)

const testWorkspace = `registry: registry.example.com
version: "1.0"
projects:
- name: app
  dir: app
`

// ExecuteInWorkspace runs sub below a root command that points at a freshly
// written single-project workspace and returns stdout and stderr.
func ExecuteInWorkspace(t *testing.T, sub *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "layercake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testWorkspace), 0o600))

	root := &cobra.Command{Use: "layercake", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String(rootcmd.WorkspaceFlag, path, "")
	root.AddCommand(sub)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{sub.Name()}, args...))

	err := root.Execute()

	return stdout.String(), stderr.String(), err
}
