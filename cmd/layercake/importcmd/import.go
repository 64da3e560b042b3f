package importcmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"layercake.run/cmd/layercake/cmdutil"
	"layercake.run/internal/buildfile"
	internalcmd "layercake.run/internal/cmd"
)

type ImporterFactory interface {
	Importer(ws *buildfile.Workspace, dockerEnv map[string]string) Importer
}

type Importer interface {
	ImportProject(ctx context.Context, project string, archs []string) ([]internalcmd.ProjectResult, error)
}

func NewCmd(importerFactory ImporterFactory, metrics cmdutil.MetricsWriter) *cobra.Command {
	const (
		importUse   = "import project [--arch arch]"
		importShort = "import built project images into the local docker daemon"
		importLong  = "loads the image archive of the given project into the local docker daemon unless an image with the same ID is already present, then tags it."
	)

	cmd := &cobra.Command{
		Use:   importUse,
		Short: importShort,
		Long:  importLong,
		Args:  cobra.ExactArgs(1),
	}

	opts := options{DockerEnv: map[string]string{}}

	opts.AddFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ws, err := cmdutil.LoadWorkspace(cmd)
		if err != nil {
			return err
		}

		imported, err := importerFactory.Importer(ws, opts.DockerEnv).ImportProject(cmd.Context(), args[0], opts.Architectures)
		if err != nil {
			err = fmt.Errorf("importing %s: %w", args[0], err)
		}
		if printErr := cmdutil.NewPrinter(cmd).PrintTable(internalcmd.ResultsTable(imported)); printErr != nil && err == nil {
			err = printErr
		}

		return cmdutil.WriteMetrics(metrics, opts.MetricsFile, err)
	}

	return cmd
}

type options struct {
	Architectures []string
	MetricsFile   string
	DockerEnv     map[string]string
}

func (o *options) AddFlags(flags *pflag.FlagSet) {
	flags.StringSliceVarP(
		&o.Architectures,
		"arch",
		"a",
		o.Architectures,
		"Architectures to import. Defaults to the host architecture.",
	)
	cmdutil.AddMetricsFileFlag(flags, &o.MetricsFile)
	cmdutil.AddDockerEnvFlag(flags, &o.DockerEnv)
}
