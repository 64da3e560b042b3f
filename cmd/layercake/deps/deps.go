package deps

import (
	"go.uber.org/dig"

	"layercake.run/cmd/layercake/rootcmd"
)

func Build() (*dig.Container, error) {
	container := dig.New()

	for _, c := range constructors() {
		if err := container.Provide(c); err != nil {
			return nil, err
		}
	}

	return container, nil
}

func constructors() []any {
	return []any{
		rootcmd.ProvideRootCmd,
		ProvideIOStreams,
		ProvideArgs,
		ProvideFlagSet,
		ProvideLogFactory,
		ProvideRecorder,
		ProvideResultStore,
		ProvideBuildCmd,
		ProvideBuilderFactory,
		ProvidePullCmd,
		ProvidePushCmd,
		ProvideRegistryFactory,
		ProvideImportCmd,
		ProvideImporterFactory,
		ProvidePlanCmd,
		ProvideRendererFactory,
		ProvideVersionCmd,
	}
}
