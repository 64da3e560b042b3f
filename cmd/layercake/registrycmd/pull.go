package registrycmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"layercake.run/cmd/layercake/cmdutil"
	internalcmd "layercake.run/internal/cmd"
)

func NewPullCmd(registryFactory RegistryFactory, metrics cmdutil.MetricsWriter) *cobra.Command {
	const (
		pullUse   = "pull project [--arch arch]..."
		pullShort = "pull the external base image of a project"
		pullLong  = "pulls the external base image of the given project for each target architecture into the project's build context. Registry errors are retried."
	)

	cmd := &cobra.Command{
		Use:   pullUse,
		Short: pullShort,
		Long:  pullLong,
		Args:  cobra.ExactArgs(1),
	}

	var opts options

	opts.AddFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ws, err := cmdutil.LoadWorkspace(cmd)
		if err != nil {
			return err
		}

		pulled, err := registryFactory.Registry(ws, opts.Insecure).PullBase(cmd.Context(), args[0], opts.Architectures)
		if err != nil {
			err = fmt.Errorf("pulling base of %s: %w", args[0], err)
		}
		if printErr := cmdutil.NewPrinter(cmd).PrintTable(internalcmd.PulledTable(pulled)); printErr != nil && err == nil {
			err = printErr
		}

		return cmdutil.WriteMetrics(metrics, opts.MetricsFile, err)
	}

	return cmd
}
