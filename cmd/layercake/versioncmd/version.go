package versioncmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"sigs.k8s.io/yaml"

	"layercake.run/cmd/layercake/cmdutil"
	internalcmd "layercake.run/internal/cmd"
	"layercake.run/internal/conventions"
	"layercake.run/internal/version"
)

const (
	outputText = "text"
	outputYAML = "yaml"
)

func NewCmd() *cobra.Command {
	const (
		versionUse   = "version"
		versionShort = "print the layercake version and the platform it builds for"
		versionLong  = "Prints where the version was taken from (release stamp, module or local build) " +
			"and the host architecture, which is the default target of build and import."
	)

	cmd := &cobra.Command{
		Use:   versionUse,
		Short: versionShort,
		Long:  versionLong,
		Args:  cobra.NoArgs,
	}

	var opts options

	opts.AddFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		r := newReport(version.Get(), opts.Embedded)

		switch opts.Output {
		case outputText:
			return r.printText(cmd)
		case outputYAML:
			data, err := yaml.Marshal(r)
			if err != nil {
				return fmt.Errorf("encoding version report: %w", err)
			}
			return cmdutil.NewPrinter(cmd).PrintfOut("%s", data)
		default:
			return fmt.Errorf("%w: unknown output format %q, expected %s or %s",
				internalcmd.ErrInvalidArgs, opts.Output, outputText, outputYAML)
		}
	}

	return cmd
}

type options struct {
	Embedded bool
	Output   string
}

func (o *options) AddFlags(flags *pflag.FlagSet) {
	flags.BoolVar(
		&o.Embedded,
		"embedded",
		o.Embedded,
		"include the module path, dependencies and build settings",
	)
	flags.StringVarP(
		&o.Output,
		"output", "o",
		outputText,
		"output format, one of text or yaml",
	)
}

type module struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

type report struct {
	Version  string         `json:"version"`
	Source   version.Source `json:"source"`
	Go       string         `json:"go"`
	Platform string         `json:"platform"`
	// HostArchitecture is empty when layercake cannot build for the host.
	HostArchitecture string            `json:"hostArchitecture,omitempty"`
	Revision         string            `json:"revision,omitempty"`
	Modified         bool              `json:"modified,omitempty"`
	Path             string            `json:"path,omitempty"`
	Modules          []module          `json:"modules,omitempty"`
	Settings         map[string]string `json:"settings,omitempty"`
}

func newReport(info version.Info, embedded bool) report {
	r := report{
		Version:  info.Version,
		Source:   info.Source,
		Go:       info.GoVersion,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	if r.Go == "" {
		r.Go = runtime.Version()
	}
	if arch, err := conventions.HostArchitecture(); err == nil {
		r.HostArchitecture = arch.String()
	}
	r.Revision, r.Modified = info.Revision()

	if !embedded {
		return r
	}

	r.Path = info.Path
	r.Modules = append(r.Modules, module{Path: info.Main.Path, Version: info.Main.Version})
	for _, dep := range info.Deps {
		m := module{Path: dep.Path, Version: dep.Version}
		if dep.Replace != nil {
			m.Version = fmt.Sprintf("%s => %s %s", dep.Version, dep.Replace.Path, dep.Replace.Version)
		}
		r.Modules = append(r.Modules, m)
	}
	r.Settings = map[string]string{}
	for _, s := range info.Settings {
		r.Settings[s.Key] = s.Value
	}

	return r
}

func (r report) printText(cmd *cobra.Command) error {
	p := cmdutil.NewPrinter(cmd)

	lines := []string{
		fmt.Sprintf("version %s (%s)", r.Version, r.Source),
		fmt.Sprintf("go %s %s", r.Go, r.Platform),
	}
	if r.HostArchitecture != "" {
		lines = append(lines, "host architecture "+r.HostArchitecture)
	} else {
		lines = append(lines, fmt.Sprintf("host architecture %s is not supported, pass --arch to build", runtime.GOARCH))
	}
	if r.Revision != "" {
		rev := "revision " + r.Revision
		if r.Modified {
			rev += " (modified)"
		}
		lines = append(lines, rev)
	}
	if r.Path != "" {
		lines = append(lines, "path "+r.Path)
	}

	for _, l := range lines {
		if err := p.PrintfOut("%s\n", l); err != nil {
			return err
		}
	}

	if len(r.Modules) == 0 {
		return nil
	}

	modules := internalcmd.NewDefaultTable(internalcmd.WithHeaders{"Module", "Version"})
	for _, m := range r.Modules {
		modules.AddRow(
			internalcmd.Field{Name: "Module", Value: m.Path},
			internalcmd.Field{Name: "Version", Value: m.Version},
		)
	}
	if err := p.PrintTable(modules); err != nil {
		return err
	}

	settings := internalcmd.NewDefaultTable(internalcmd.WithHeaders{"Setting", "Value"})
	keys := maps.Keys(r.Settings)
	slices.Sort(keys)
	for _, k := range keys {
		settings.AddRow(
			internalcmd.Field{Name: "Setting", Value: k},
			internalcmd.Field{Name: "Value", Value: r.Settings[k]},
		)
	}

	return p.PrintTable(settings)
}
