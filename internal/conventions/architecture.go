package conventions

import (
	"fmt"
	"runtime"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// Architecture is a CPU architecture images are built for.
type Architecture string

const (
	AMD64 Architecture = "amd64"
	ARM64 Architecture = "arm64"
)

// Architectures lists all supported architectures.
var Architectures = []Architecture{AMD64, ARM64}

// ParseArchitecture accepts Go and uname style names.
func ParseArchitecture(s string) (Architecture, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amd64", "x86_64":
		return AMD64, nil
	case "arm64", "aarch64":
		return ARM64, nil
	}

	return "", NewConfigurationError(s, "unsupported architecture, expected one of %v", Architectures)
}

// HostArchitecture returns the architecture of the running process.
func HostArchitecture() (Architecture, error) {
	return ParseArchitecture(runtime.GOARCH)
}

// Platform is the linux platform of this architecture.
func (a Architecture) Platform() v1.Platform {
	return v1.Platform{OS: "linux", Architecture: string(a)}
}

func (a Architecture) String() string { return string(a) }

// ParseArchitectures parses all values, keeping order and dropping duplicates.
func ParseArchitectures(values []string) ([]Architecture, error) {
	var (
		res  []Architecture
		seen = map[Architecture]struct{}{}
	)
	for _, v := range values {
		a, err := ParseArchitecture(v)
		if err != nil {
			return nil, fmt.Errorf("parsing architectures: %w", err)
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		res = append(res, a)
	}

	return res, nil
}
