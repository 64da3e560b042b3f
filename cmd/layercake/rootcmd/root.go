package rootcmd

import (
	"flag"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"layercake.run/internal/buildfile"
	"layercake.run/internal/version"
)

// WorkspaceFlag names the persistent flag pointing at the workspace file.
const WorkspaceFlag = "workspace"

type Params struct {
	dig.In

	Streams     IOStreams
	Args        []string
	Flags       *flag.FlagSet
	SubCommands []*cobra.Command `group:"rootSubCommands"`
}

type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

func ProvideRootCmd(params Params) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "layercake",
		Short:        "build container images for a workspace of projects",
		Version:      version.Get().Version,
		SilenceUsage: true,
	}
	cmd.SetIn(params.Streams.In)
	cmd.SetOut(params.Streams.Out)
	cmd.SetErr(params.Streams.ErrOut)
	cmd.SetArgs(params.Args)
	cmd.PersistentFlags().String(
		WorkspaceFlag,
		buildfile.WorkspaceFileName,
		"Path to the workspace file listing all projects.",
	)
	if params.Flags != nil {
		cmd.PersistentFlags().AddGoFlagSet(params.Flags)
	}

	for _, sub := range params.SubCommands {
		cmd.AddCommand(sub)
	}

	return cmd
}
