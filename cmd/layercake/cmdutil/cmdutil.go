// Package cmdutil holds helpers shared by the layercake subcommands.
package cmdutil

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"layercake.run/cmd/layercake/rootcmd"
	"layercake.run/internal/buildfile"
	"layercake.run/internal/cli"
)

// MetricsWriter exports collected metrics in the node-exporter textfile format.
type MetricsWriter interface {
	WriteTextfile(path string) error
}

// LoadWorkspace loads the workspace file named by the root --workspace flag.
func LoadWorkspace(cmd *cobra.Command) (*buildfile.Workspace, error) {
	path := buildfile.WorkspaceFileName
	if f := cmd.Flag(rootcmd.WorkspaceFlag); f != nil {
		path = f.Value.String()
	}

	ws, err := buildfile.LoadWorkspace(path)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}

	return ws, nil
}

// NewPrinter returns a printer writing to the streams of cmd.
func NewPrinter(cmd *cobra.Command) *cli.Printer {
	return cli.NewPrinter(
		cli.WithOut{Out: cmd.OutOrStdout()},
		cli.WithErr{Err: cmd.ErrOrStderr()},
	)
}

// WriteMetrics writes the textfile when path is set and joins a failure
// with the command error.
func WriteMetrics(w MetricsWriter, path string, cmdErr error) error {
	if path == "" || w == nil {
		return cmdErr
	}
	if err := w.WriteTextfile(path); err != nil {
		return errors.Join(cmdErr, fmt.Errorf("writing metrics: %w", err))
	}

	return cmdErr
}

func AddArchitecturesFlag(flags *pflag.FlagSet, archs *[]string) {
	flags.StringSliceVarP(
		archs,
		"arch",
		"a",
		*archs,
		"Target architectures (amd64, arm64). May be specified multiple times. Defaults to the project's architectures.",
	)
}

func AddMetricsFileFlag(flags *pflag.FlagSet, path *string) {
	flags.StringVar(
		path,
		"metrics-file",
		*path,
		"Write prometheus metrics of this run to the given textfile.",
	)
}

func AddDockerEnvFlag(flags *pflag.FlagSet, env *map[string]string) {
	flags.StringToStringVar(
		env,
		"docker-env",
		*env,
		"Environment passed to docker invocations, e.g. DOCKER_HOST=unix:///run/docker.sock. Nothing is inherited.",
	)
}
