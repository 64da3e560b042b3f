package registrycmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"layercake.run/cmd/layercake/cmdutil"
	internalcmd "layercake.run/internal/cmd"
)

func NewPushCmd(registryFactory RegistryFactory, metrics cmdutil.MetricsWriter) *cobra.Command {
	const (
		pushUse   = "push project [--arch arch]..."
		pushShort = "push built project images"
		pushLong  = "pushes the image archive built for each target architecture under its tag. Registry errors are retried."
	)

	cmd := &cobra.Command{
		Use:   pushUse,
		Short: pushShort,
		Long:  pushLong,
		Args:  cobra.ExactArgs(1),
	}

	var opts options

	opts.AddFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ws, err := cmdutil.LoadWorkspace(cmd)
		if err != nil {
			return err
		}

		pushed, err := registryFactory.Registry(ws, opts.Insecure).PushProject(cmd.Context(), args[0], opts.Architectures)
		if err != nil {
			err = fmt.Errorf("pushing %s: %w", args[0], err)
		}
		if printErr := cmdutil.NewPrinter(cmd).PrintTable(internalcmd.ResultsTable(pushed)); printErr != nil && err == nil {
			err = printErr
		}

		return cmdutil.WriteMetrics(metrics, opts.MetricsFile, err)
	}

	return cmd
}
