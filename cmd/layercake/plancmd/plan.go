package plancmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"layercake.run/cmd/layercake/cmdutil"
	"layercake.run/internal/buildfile"
)

type RendererFactory interface {
	Renderer(ws *buildfile.Workspace) Renderer
}

type Renderer interface {
	RenderProject(ctx context.Context, project string, archs []string) (string, error)
}

func NewCmd(rendererFactory RendererFactory) *cobra.Command {
	const (
		cmdUse   = "plan project [--arch arch]..."
		cmdShort = "outputs the build plan of a project"
		cmdLong  = "outputs a tree view of the instructions a build of the project would execute, per target architecture"
	)

	var opts options

	cmd := &cobra.Command{
		Args:  cobra.ExactArgs(1),
		Use:   cmdUse,
		Short: cmdShort,
		Long:  cmdLong,
	}
	opts.AddFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ws, err := cmdutil.LoadWorkspace(cmd)
		if err != nil {
			return err
		}

		out, err := rendererFactory.Renderer(ws).RenderProject(cmd.Context(), args[0], opts.Architectures)
		if err != nil {
			return fmt.Errorf("rendering project: %w", err)
		}

		_, err = fmt.Fprint(cmd.OutOrStdout(), out)

		return err
	}

	return cmd
}

type options struct {
	Architectures []string
}

func (o *options) AddFlags(flags *pflag.FlagSet) {
	cmdutil.AddArchitecturesFlag(flags, &o.Architectures)
}
