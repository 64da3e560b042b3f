//go:build integration

package layercake

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/crane"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"layercake.run/internal/testutil"
)

type buildInfo struct {
	Tag     string `json:"tag"`
	Builder string `json:"builder"`
	ImageID string `json:"imageId"`
}

func readBuildInfo(project string) buildInfo {
	GinkgoHelper()

	data, err := os.ReadFile(filepath.Join(outputDir(project), "build-info.json"))
	Expect(err).ToNot(HaveOccurred())

	var info buildInfo
	Expect(json.Unmarshal(data, &info)).To(Succeed())

	return info
}

var _ = DescribeTable("version subcommand",
	testSubCommand("version"),
	Entry("no args", subCommandTestCase{
		ExpectedExitCode: 0,
		ExpectedOutput:   []string{"version " + version + ` \(release\)`, "host architecture "},
	}),
	Entry("embedded", subCommandTestCase{
		Args:             []string{"--embedded"},
		ExpectedExitCode: 0,
		ExpectedOutput:   []string{"version " + version, "path " + module + "/cmd/layercake", "Module"},
	}),
	Entry("yaml", subCommandTestCase{
		Args:             []string{"--output", "yaml"},
		ExpectedExitCode: 0,
		ExpectedOutput:   []string{"source: release", "version: " + version},
	}),
)

var _ = DescribeTable("invalid invocations",
	func(subcommand string, tc subCommandTestCase) { runSubCommand(subcommand, tc) },
	Entry("build without project", "build", subCommandTestCase{
		ExpectedExitCode: 1,
	}),
	Entry("build of unknown project", "build", subCommandTestCase{
		Args:                []string{"dne"},
		ExpectedExitCode:    1,
		ExpectedErrorOutput: []string{"project not found in workspace"},
	}),
	Entry("unsupported architecture", "plan", subCommandTestCase{
		Args:             []string{"base", "--arch", "s390x"},
		ExpectedExitCode: 1,
	}),
	Entry("direct build of RUN instructions", "build", subCommandTestCase{
		Args:                []string{"scripted"},
		ExpectedExitCode:    1,
		ExpectedErrorOutput: []string{"RUN instructions can only be built with the dockerfile builder"},
	}),
	Entry("pull of a project base", "pull", subCommandTestCase{
		Args:             []string{"app"},
		ExpectedExitCode: 1,
	}),
)

var _ = Describe("workspace lifecycle", Ordered, func() {
	It("plans the base image", func() {
		runSubCommand("plan", subCommandTestCase{
			Args:             []string{"base"},
			ExpectedExitCode: 0,
			ExpectedOutput: []string{
				_registryDomain + "/base:1.0-amd64",
				"Builder DIRECT",
				"From " + _registryDomain + "/" + upstreamRepository,
				"COPY layer0 /",
				"Env ARCH=amd64",
			},
		})
	})

	It("pulls the external base", func() {
		runSubCommand("pull", subCommandTestCase{
			Args:             []string{"base", "--arch", "amd64"},
			ExpectedExitCode: 0,
			ExpectedOutput:   []string{"sha256:"},
			AdditionalValidations: func() {
				Expect(filepath.Join(outputDir("base"), "base.tar")).To(BeARegularFile())
			},
		})
	})

	It("builds the base image", func() {
		runSubCommand("build", subCommandTestCase{
			Args:             []string{"base", "--arch", "amd64", "--metrics-file", filepath.Join(_workspaceDir, "build.prom")},
			ExpectedExitCode: 0,
			ExpectedOutput:   []string{"DIRECT", _registryDomain + "/base:1.0-amd64"},
			AdditionalValidations: func() {
				Expect(filepath.Join(outputDir("base"), "image.tar")).To(BeARegularFile())
				Expect(readBuildInfo("base").Builder).To(Equal("DIRECT"))

				metrics, err := testutil.ReadTextfile(filepath.Join(_workspaceDir, "build.prom"))
				Expect(err).ToNot(HaveOccurred())

				builds, err := testutil.FindMetric(metrics, "builds_total", "builder", "DIRECT")
				Expect(err).ToNot(HaveOccurred())
				Expect(builds.GetCounter().GetValue()).To(BeNumerically("==", 1))
			},
		})
	})

	It("pushes the base image", func() {
		runSubCommand("push", subCommandTestCase{
			Args:             []string{"base", "--arch", "amd64", "--insecure"},
			ExpectedExitCode: 0,
			AdditionalValidations: func() {
				info := readBuildInfo("base")

				img, err := crane.Pull(info.Tag, crane.Insecure)
				Expect(err).ToNot(HaveOccurred())

				configName, err := img.ConfigName()
				Expect(err).ToNot(HaveOccurred())
				Expect(configName.String()).To(Equal(info.ImageID))
			},
		})
	})

	It("builds the app on top of the base", func() {
		runSubCommand("build", subCommandTestCase{
			Args:             []string{"app", "--arch", "amd64"},
			ExpectedExitCode: 0,
			ExpectedOutput:   []string{_registryDomain + "/app:1.0-amd64"},
			AdditionalValidations: func() {
				Expect(readBuildInfo("app").ImageID).To(HavePrefix("sha256:"))
			},
		})
	})

	It("pushes an app image that inherits the base configuration", func() {
		runSubCommand("push", subCommandTestCase{
			Args:             []string{"app", "--arch", "amd64", "--insecure"},
			ExpectedExitCode: 0,
			AdditionalValidations: func() {
				img, err := crane.Pull(readBuildInfo("app").Tag, crane.Insecure)
				Expect(err).ToNot(HaveOccurred())

				cfg, err := img.ConfigFile()
				Expect(err).ToNot(HaveOccurred())
				Expect(cfg.Config.Entrypoint).To(Equal([]string{"/bin/init"}))
				Expect(cfg.Config.Cmd).To(Equal([]string{"--config", "/etc/app.conf"}))
				Expect(cfg.Config.Env).To(ContainElement("ARCH=amd64"))
				Expect(cfg.Config.ExposedPorts).To(HaveKey("8080/tcp"))
				Expect(cfg.Config.Labels).To(HaveKeyWithValue("maintainer", "Integration <ci@example.com>"))
			},
		})
	})
})
