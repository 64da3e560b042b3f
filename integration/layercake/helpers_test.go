//go:build integration

package layercake

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gbytes"
	. "github.com/onsi/gomega/gexec"
)

const defaultTimeout = 2 * time.Minute

type subCommandTestCase struct {
	Args                  []string
	ExpectedExitCode      int
	ExpectedOutput        []string
	ExpectedErrorOutput   []string
	AdditionalValidations func()
}

func runSubCommand(subcommand string, tc subCommandTestCase) {
	GinkgoHelper()

	args := append([]string{subcommand, "--workspace", workspaceFile()}, tc.Args...)
	cmd := exec.Command(_binaryPath, args...)

	session, err := Start(cmd, GinkgoWriter, GinkgoWriter)
	Expect(err).ToNot(HaveOccurred())
	Eventually(session).WithTimeout(defaultTimeout).Should(Exit(tc.ExpectedExitCode))

	for _, line := range tc.ExpectedOutput {
		Expect(session.Out).To(Say(line))
	}
	for _, line := range tc.ExpectedErrorOutput {
		Expect(session.Err).To(Say(line))
	}

	if tc.AdditionalValidations != nil {
		tc.AdditionalValidations()
	}
}

func testSubCommand(subcommand string) func(tc subCommandTestCase) {
	return func(tc subCommandTestCase) {
		runSubCommand(subcommand, tc)
	}
}

const workspaceTemplate = `registry: ${REGISTRY}
version: "1.0"
projects:
- name: base
  dir: base
- name: app
  dir: app
- name: scripted
  dir: scripted
`

var definitions = map[string]string{
	"base": `builder: direct
architectures: [amd64]
instructions:
- from: ${REGISTRY}/` + upstreamRepository + `
- maintainer: {name: Integration, email: ci@example.com}
- copy: {}
- env: {ARCH: "{{ .Architecture }}"}
`,
	"app": `builder: direct
architectures: [amd64]
instructions:
- from: {project: base}
- copy: {uid: 1000, gid: 1000}
- cmd: [--config, /etc/app.conf]
- expose: 8080
`,
	"scripted": `builder: direct
architectures: [amd64]
instructions:
- from: {project: base}
- run: echo hello
`,
}

// layerFiles is staged below build/layercake/amd64/context of each project.
var layerFiles = map[string]map[string]string{
	"base": {"layer0/etc/motd": "hello from base\n"},
	"app":  {"layer0/etc/app.conf": "listen: 8080\n"},
}

func writeWorkspace(dir, registryDomain string) error {
	if err := os.WriteFile(filepath.Join(dir, "layercake.yaml"),
		[]byte(expandRegistry(workspaceTemplate, registryDomain)), 0o644); err != nil {
		return err
	}

	for project, def := range definitions {
		projectDir := filepath.Join(dir, project)
		if err := os.MkdirAll(projectDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(projectDir, "image.yaml"),
			[]byte(expandRegistry(def, registryDomain)), 0o644); err != nil {
			return err
		}

		for rel, content := range layerFiles[project] {
			path := filepath.Join(contextDir(project), filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
		}
	}

	return nil
}

func outputDir(project string) string {
	return filepath.Join(_workspaceDir, project, "build", "layercake", "amd64")
}

func contextDir(project string) string {
	return filepath.Join(outputDir(project), "context")
}

func expandRegistry(s, registryDomain string) string {
	return strings.ReplaceAll(s, "${REGISTRY}", registryDomain)
}
