//go:build mage

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"golang.org/x/mod/semver"
)

const (
	module     = "layercake.run"
	binaryName = "layercake"
)

// Directories
var (
	// Working directory of the project.
	workDir string
	// Output directory of binaries and reports.
	binDir string
)

func init() {
	var err error

	workDir, err = os.Getwd()
	if err != nil {
		panic(fmt.Errorf("getting work dir: %w", err))
	}
	binDir = filepath.Join(workDir, "bin")
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Testing and Linting
// -------------------

type Test mg.Namespace

// Runs linters.
func (Test) Lint() { mg.SerialDeps(Test.GolangCILint, Test.GoModTidy) }

func (Test) GolangCILint() {
	must(sh.RunV("golangci-lint", "run", "./...", "--deadline=15m"))
}

func (Test) GoModTidy() {
	must(sh.RunV("go", "mod", "tidy"))
}

// Runs unittests.
func (Test) Unit() error {
	must(os.MkdirAll(binDir, 0o755))

	return sh.RunWithV(map[string]string{
		// needed to enable race detector -race
		"CGO_ENABLED": "1",
	}, "go", "test", "-cover", "-v", "-race",
		"-coverprofile="+filepath.Join(binDir, "unit-cover.out"),
		"./internal/...", "./cmd/...")
}

// Runs the integration suite against an in-memory registry.
func (Test) Integration() error {
	// count=1 will force a new run, instead of using the cache
	return sh.RunV("go", "test", "-v", "-failfast",
		"-count=1", "-timeout=10m", "-tags=integration",
		"./integration/...")
}

// Building
// --------

type Build mg.Namespace

// Builds the layercake binary for the given GOOS/GOARCH, e.g. linux/arm64.
func (Build) Binary(platform string) error {
	goos, goarch, ok := strings.Cut(platform, "/")
	if !ok {
		return fmt.Errorf("platform %q must be os/arch", platform)
	}

	version, err := releaseVersion()
	if err != nil {
		return err
	}

	out := filepath.Join(binDir, fmt.Sprintf("%s_%s_%s", binaryName, goos, goarch))
	ldflags := fmt.Sprintf("-w -s -X %s/internal/version.version=%s", module, version)

	return sh.RunWithV(map[string]string{
		"CGO_ENABLED": "0",
		"GOOS":        goos,
		"GOARCH":      goarch,
	}, "go", "build", "-ldflags", ldflags, "-o", out, "./cmd/layercake")
}

// Builds the binary for every supported platform.
func (Build) All() {
	mg.Deps(
		mg.F(Build.Binary, "linux/amd64"),
		mg.F(Build.Binary, "linux/arm64"),
		mg.F(Build.Binary, "darwin/arm64"),
	)
}

var errInvalidVersion = errors.New("version is not a valid semantic version")

// releaseVersion prefers $VERSION and falls back to the closest git tag.
func releaseVersion() (string, error) {
	version := os.Getenv("VERSION")
	if version == "" {
		out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
		if err != nil {
			return "", fmt.Errorf("describing git version: %w", err)
		}
		version = strings.TrimSpace(out)
		if !semver.IsValid(version) {
			// Untagged checkouts only yield a commit hash.
			version = "v0.0.0-" + version
		}
	}

	if !semver.IsValid(version) {
		return "", fmt.Errorf("%w: %s", errInvalidVersion, version)
	}

	return version, nil
}
