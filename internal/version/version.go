// Package version reports what layercake binary is running.
package version

import (
	"runtime/debug"
)

// Source tells where the reported version came from.
type Source string

const (
	// SourceRelease is a version stamped in at link time.
	SourceRelease Source = "release"
	// SourceModule is the main module version, e.g. after `go install`.
	SourceModule Source = "module"
	// SourceDevel is a local build without any version information.
	SourceDevel Source = "devel"
)

const develVersion = "(devel)"

// Info is the module build information plus the release version.
type Info struct {
	*debug.BuildInfo
	Version string `json:"version"`
	Source  Source `json:"source"`
}

// version is set at link time with -ldflags "-X layercake.run/internal/version.version=v1.2.3".
var version string

// Get returns build information of the running binary.
func Get() Info {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		buildInfo = &debug.BuildInfo{}
	}

	return resolve(version, buildInfo)
}

func resolve(stamped string, buildInfo *debug.BuildInfo) Info {
	switch {
	case stamped != "":
		return Info{BuildInfo: buildInfo, Version: stamped, Source: SourceRelease}
	case buildInfo.Main.Version != "" && buildInfo.Main.Version != develVersion:
		return Info{BuildInfo: buildInfo, Version: buildInfo.Main.Version, Source: SourceModule}
	}

	return Info{BuildInfo: buildInfo, Version: develVersion, Source: SourceDevel}
}

// Revision returns the VCS commit the binary was built from and whether the
// work tree had local changes. The revision is empty when unknown.
func (i Info) Revision() (revision string, modified bool) {
	for _, s := range i.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}

	return revision, modified
}
