package deps

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"layercake.run/cmd/layercake/buildcmd"
	"layercake.run/cmd/layercake/importcmd"
	"layercake.run/cmd/layercake/plancmd"
	"layercake.run/cmd/layercake/registrycmd"
	"layercake.run/cmd/layercake/rootcmd"
	"layercake.run/cmd/layercake/versioncmd"
	"layercake.run/internal/buildfile"
	"layercake.run/internal/buildinfo"
	internalcmd "layercake.run/internal/cmd"
	"layercake.run/internal/daemon"
	"layercake.run/internal/direct"
	"layercake.run/internal/dockerfile"
	"layercake.run/internal/metrics"
	"layercake.run/internal/registry"
)

func ProvideIOStreams() rootcmd.IOStreams {
	return rootcmd.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

func ProvideArgs() []string {
	return os.Args[1:]
}

// ProvideRecorder returns the recorder shared by all components of a run.
func ProvideRecorder() *metrics.Recorder {
	return metrics.NewRecorder()
}

// ProvideResultStore returns the store handing build results between
// projects built in the same run.
func ProvideResultStore() *buildinfo.Store {
	return buildinfo.NewStore()
}

type RootSubCommandResult struct {
	dig.Out

	SubCommand *cobra.Command `group:"rootSubCommands"`
}

func ProvideBuildCmd(builderFactory buildcmd.BuilderFactory, recorder *metrics.Recorder) RootSubCommandResult {
	return RootSubCommandResult{
		SubCommand: buildcmd.NewCmd(
			builderFactory, recorder,
		),
	}
}

func ProvideBuilderFactory(f LogFactory, recorder *metrics.Recorder, results *buildinfo.Store) buildcmd.BuilderFactory {
	return &defaultBuilderFactory{
		logFactory: f,
		recorder:   recorder,
		results:    results,
	}
}

type defaultBuilderFactory struct {
	logFactory LogFactory
	recorder   *metrics.Recorder
	results    *buildinfo.Store
}

func (f *defaultBuilderFactory) Builder(ws *buildfile.Workspace, dockerEnv map[string]string) buildcmd.Builder {
	log := f.logFactory.Logger()

	puller := registry.NewClient(
		registry.WithLog{Log: log},
		registry.WithRecorder{Recorder: f.recorder},
	)

	return internalcmd.NewBuild(
		ws,
		internalcmd.WithLog{Log: log},
		internalcmd.WithBackend{
			Builder: buildinfo.BuilderDockerfile,
			Backend: dockerfile.NewBackend(
				dockerfile.WithLog{Log: log},
				dockerfile.WithResults{Results: f.results},
				dockerfile.WithRecorder{Recorder: f.recorder},
				dockerfile.WithEnv(dockerEnv),
			),
		},
		internalcmd.WithBackend{
			Builder: buildinfo.BuilderDirect,
			Backend: direct.NewBackend(
				direct.WithLog{Log: log},
				direct.WithPuller{Puller: puller},
				direct.WithResults{Results: f.results},
				direct.WithRecorder{Recorder: f.recorder},
			),
		},
	)
}

func ProvidePullCmd(registryFactory registrycmd.RegistryFactory, recorder *metrics.Recorder) RootSubCommandResult {
	return RootSubCommandResult{
		SubCommand: registrycmd.NewPullCmd(
			registryFactory, recorder,
		),
	}
}

func ProvidePushCmd(registryFactory registrycmd.RegistryFactory, recorder *metrics.Recorder) RootSubCommandResult {
	return RootSubCommandResult{
		SubCommand: registrycmd.NewPushCmd(
			registryFactory, recorder,
		),
	}
}

func ProvideRegistryFactory(f LogFactory, recorder *metrics.Recorder, results *buildinfo.Store) registrycmd.RegistryFactory {
	return &defaultRegistryFactory{
		logFactory: f,
		recorder:   recorder,
		results:    results,
	}
}

type defaultRegistryFactory struct {
	logFactory LogFactory
	recorder   *metrics.Recorder
	results    *buildinfo.Store
}

func (f *defaultRegistryFactory) Registry(ws *buildfile.Workspace, insecure bool) registrycmd.Registry {
	log := f.logFactory.Logger()

	client := registry.NewClient(
		registry.WithLog{Log: log},
		registry.WithRecorder{Recorder: f.recorder},
		registry.WithInsecure(insecure),
	)

	return internalcmd.NewRegistry(
		ws,
		internalcmd.WithLog{Log: log},
		internalcmd.WithPuller{Puller: client},
		internalcmd.WithPusher{Pusher: client},
		internalcmd.WithResults{Results: f.results},
	)
}

func ProvideImportCmd(importerFactory importcmd.ImporterFactory, recorder *metrics.Recorder) RootSubCommandResult {
	return RootSubCommandResult{
		SubCommand: importcmd.NewCmd(
			importerFactory, recorder,
		),
	}
}

func ProvideImporterFactory(f LogFactory, recorder *metrics.Recorder, results *buildinfo.Store) importcmd.ImporterFactory {
	return &defaultImporterFactory{
		logFactory: f,
		recorder:   recorder,
		results:    results,
	}
}

type defaultImporterFactory struct {
	logFactory LogFactory
	recorder   *metrics.Recorder
	results    *buildinfo.Store
}

func (f *defaultImporterFactory) Importer(ws *buildfile.Workspace, dockerEnv map[string]string) importcmd.Importer {
	log := f.logFactory.Logger()

	docker := daemon.NewDockerCLI(
		daemon.WithLog{Log: log},
		daemon.WithEnv(dockerEnv),
	)

	return internalcmd.NewImport(
		ws,
		daemon.NewImporter(
			docker,
			daemon.WithLog{Log: log},
			daemon.WithRecorder{Recorder: f.recorder},
		),
		internalcmd.WithLog{Log: log},
		internalcmd.WithResults{Results: f.results},
	)
}

func ProvidePlanCmd(rendererFactory plancmd.RendererFactory) RootSubCommandResult {
	return RootSubCommandResult{
		SubCommand: plancmd.NewCmd(
			rendererFactory,
		),
	}
}

func ProvideRendererFactory(f LogFactory) plancmd.RendererFactory {
	return &defaultRendererFactory{
		logFactory: f,
	}
}

type defaultRendererFactory struct {
	logFactory LogFactory
}

func (f *defaultRendererFactory) Renderer(ws *buildfile.Workspace) plancmd.Renderer {
	return internalcmd.NewTree(
		ws,
		internalcmd.WithLog{
			Log: f.logFactory.Logger(),
		},
	)
}

func ProvideVersionCmd() RootSubCommandResult {
	return RootSubCommandResult{
		SubCommand: versioncmd.NewCmd(),
	}
}
