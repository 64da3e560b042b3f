package registrycmd

import (
	"context"

	"github.com/spf13/pflag"

	"layercake.run/cmd/layercake/cmdutil"
	"layercake.run/internal/buildfile"
	internalcmd "layercake.run/internal/cmd"
)

type RegistryFactory interface {
	Registry(ws *buildfile.Workspace, insecure bool) Registry
}

type Registry interface {
	PullBase(ctx context.Context, project string, archs []string) ([]internalcmd.PulledBase, error)
	PushProject(ctx context.Context, project string, archs []string) ([]internalcmd.ProjectResult, error)
}

type options struct {
	Architectures []string
	Insecure      bool
	MetricsFile   string
}

func (o *options) AddFlags(flags *pflag.FlagSet) {
	cmdutil.AddArchitecturesFlag(flags, &o.Architectures)
	flags.BoolVar(
		&o.Insecure,
		"insecure",
		o.Insecure,
		"Allow plain http registries. Defaults to false.",
	)
	cmdutil.AddMetricsFileFlag(flags, &o.MetricsFile)
}
