package buildcmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"layercake.run/cmd/layercake/cmdutil"
	"layercake.run/internal/buildfile"
	internalcmd "layercake.run/internal/cmd"
)

type BuilderFactory interface {
	Builder(ws *buildfile.Workspace, dockerEnv map[string]string) Builder
}

type Builder interface {
	BuildProject(ctx context.Context, project string, opts ...internalcmd.BuildProjectOption) ([]internalcmd.ProjectResult, error)
}

func NewCmd(builderFactory BuilderFactory, metrics cmdutil.MetricsWriter) *cobra.Command {
	const (
		buildUse   = "build project [--arch arch]... [--builder dockerfile|direct] [--with-deps]"
		buildShort = "build the images of a workspace project"
		buildLong  = "builds the image of the given project for each target architecture and writes an image archive plus build-info next to the staged layers."
	)

	cmd := &cobra.Command{
		Use:   buildUse,
		Short: buildShort,
		Long:  buildLong,
		Args:  cobra.ExactArgs(1),
	}

	opts := options{DockerEnv: map[string]string{}}

	opts.AddFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		project := args[0]
		if project == "" {
			return fmt.Errorf("%w: project name empty", internalcmd.ErrInvalidArgs)
		}

		ws, err := cmdutil.LoadWorkspace(cmd)
		if err != nil {
			return err
		}

		results, err := builderFactory.Builder(ws, opts.DockerEnv).BuildProject(
			cmd.Context(), project,
			internalcmd.WithArchitectures(opts.Architectures),
			internalcmd.WithBuilder(opts.Builder),
			internalcmd.WithDependencies(opts.WithDependencies),
		)
		if err != nil {
			err = fmt.Errorf("building %s: %w", project, err)
		}
		if printErr := cmdutil.NewPrinter(cmd).PrintTable(internalcmd.ResultsTable(results)); printErr != nil && err == nil {
			err = printErr
		}

		return cmdutil.WriteMetrics(metrics, opts.MetricsFile, err)
	}

	return cmd
}

type options struct {
	Architectures    []string
	Builder          string
	WithDependencies bool
	MetricsFile      string
	DockerEnv        map[string]string
}

func (o *options) AddFlags(flags *pflag.FlagSet) {
	cmdutil.AddArchitecturesFlag(flags, &o.Architectures)
	flags.StringVar(
		&o.Builder,
		"builder",
		o.Builder,
		"Override the builder of the build definition: dockerfile or direct.",
	)
	flags.BoolVar(
		&o.WithDependencies,
		"with-deps",
		o.WithDependencies,
		"Build sibling base projects first for the host architecture. Defaults to false.",
	)
	cmdutil.AddMetricsFileFlag(flags, &o.MetricsFile)
	cmdutil.AddDockerEnvFlag(flags, &o.DockerEnv)
}
