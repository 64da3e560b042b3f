package buildfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"sigs.k8s.io/yaml"

	"layercake.run/internal/buildinfo"
	"layercake.run/internal/conventions"
	"layercake.run/internal/instructions"
)

// TemplateData is available to image definition templates.
type TemplateData struct {
	Architecture string
	Project      string
	Version      string
}

// Definition is the content of a project's image.yaml after rendering.
type Definition struct {
	// Builder is "dockerfile" or "direct"; "dockerfile" when empty.
	Builder string `json:"builder,omitempty"`
	// Architectures the image is built for; the host architecture when empty.
	Architectures []string `json:"architectures,omitempty"`
	Instructions  []Step   `json:"instructions"`

	path string
}

// Step is a single instruction. It must have exactly one key, e.g.
// `- env: {PATH: /usr/bin}`.
type Step map[string]json.RawMessage

// LoadDefinition renders the template at path with data and decodes it.
func LoadDefinition(path string, data TemplateData) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image definition: %w", err)
	}

	rendered, err := Render(path, raw, data)
	if err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.UnmarshalStrict(rendered, &def); err != nil {
		return nil, &conventions.ConfigurationError{Subject: path, Reason: "invalid image definition", Err: err}
	}
	def.path = path

	return &def, nil
}

// Render executes content as a text/template with the allowed sprig functions.
func Render(name string, content []byte, data TemplateData) ([]byte, error) {
	tmpl, err := newTemplate(name).Parse(string(content))
	if err != nil {
		return nil, &conventions.ConfigurationError{Subject: name, Reason: "parsing template", Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, &conventions.ConfigurationError{Subject: name, Reason: "rendering template", Err: err}
	}

	return buf.Bytes(), nil
}

func (d *Definition) BuilderKind() (buildinfo.Builder, error) {
	switch strings.ToLower(d.Builder) {
	case "", "dockerfile":
		return buildinfo.BuilderDockerfile, nil
	case "direct":
		return buildinfo.BuilderDirect, nil
	default:
		return "", conventions.NewConfigurationError(d.path, "unknown builder %q, use dockerfile or direct", d.Builder)
	}
}

// TargetArchitectures returns the declared architectures or, when none are
// declared, host.
func (d *Definition) TargetArchitectures(host conventions.Architecture) ([]conventions.Architecture, error) {
	if len(d.Architectures) == 0 {
		return []conventions.Architecture{host}, nil
	}

	return conventions.ParseArchitectures(d.Architectures)
}

// Model converts the instruction steps into an instruction model.
func (d *Definition) Model() (*instructions.Model, error) {
	m := &instructions.Model{}

	for i, step := range d.Instructions {
		if len(step) != 1 {
			return nil, conventions.NewConfigurationError(d.path,
				"instructions[%d] must have exactly one key, got %d", i, len(step))
		}

		for kind, raw := range step {
			if err := apply(m, kind, raw); err != nil {
				return nil, &conventions.ConfigurationError{
					Subject: fmt.Sprintf("%s instructions[%d]", d.path, i),
					Reason:  "invalid " + kind,
					Err:     err,
				}
			}
		}
	}

	if _, err := m.Base(); err != nil {
		return nil, &conventions.ConfigurationError{Subject: d.path, Reason: "invalid base", Err: err}
	}

	return m, nil
}

type fromStep struct {
	Image   string `json:"image,omitempty"`
	Project string `json:"project,omitempty"`
}

type maintainerStep struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type copyStep struct {
	UID *int `json:"uid,omitempty"`
	GID *int `json:"gid,omitempty"`
}

func apply(m *instructions.Model, kind string, raw json.RawMessage) error {
	switch kind {
	case "from":
		var from fromStep
		if err := unmarshalStringOr(raw, &from.Image, &from); err != nil {
			return err
		}
		switch {
		case from.Image != "" && from.Project != "":
			return errors.New("set either image or project")
		case from.Project != "":
			m.FromProject(from.Project)
		case from.Image != "":
			m.From(from.Image)
		default:
			return errors.New("image or project is required")
		}

	case "maintainer":
		var mt maintainerStep
		if err := json.Unmarshal(raw, &mt); err != nil {
			return err
		}
		m.Maintainer(mt.Name, mt.Email)

	case "copy":
		var c copyStep
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		switch {
		case c.UID == nil && c.GID == nil:
			m.Copy()
		case c.UID == nil || c.GID == nil:
			return errors.New("uid and gid must be set together")
		default:
			m.CopyAs(instructions.Owner{UID: *c.UID, GID: *c.GID})
		}

	case "run":
		commands, err := stringOrList(raw)
		if err != nil {
			return err
		}
		m.Run(commands...)

	case "env":
		return eachSorted(raw, func(k, v string) { m.Env(k, v) })
	case "label":
		return eachSorted(raw, func(k, v string) { m.Label(k, v) })
	case "changingLabel":
		return eachSorted(raw, func(k, v string) { m.ChangingLabel(k, v) })

	case "entrypoint":
		argv, err := stringOrList(raw)
		if err != nil {
			return err
		}
		m.Entrypoint(argv...)

	case "cmd":
		argv, err := stringOrList(raw)
		if err != nil {
			return err
		}
		m.Cmd(argv...)

	case "workdir":
		var path string
		if err := json.Unmarshal(raw, &path); err != nil {
			return err
		}
		m.Workdir(path)

	case "expose":
		return applyExpose(m, raw)

	default:
		return errors.New("unknown instruction")
	}

	return nil
}

// applyExpose accepts a port number or "port/protocol".
func applyExpose(m *instructions.Model, raw json.RawMessage) error {
	var portProto string
	if err := json.Unmarshal(raw, &portProto); err != nil {
		var port int
		if err := json.Unmarshal(raw, &port); err != nil {
			return errors.New("expected a port or port/protocol")
		}
		portProto = strconv.Itoa(port)
	}

	portStr, proto, _ := strings.Cut(portProto, "/")
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", portStr)
	}

	switch instructions.Protocol(strings.ToLower(proto)) {
	case "", instructions.TCP:
		m.ExposeTCP(port)
	case instructions.UDP:
		m.ExposeUDP(port)
	default:
		return fmt.Errorf("unknown protocol %q", proto)
	}

	return nil
}

// eachSorted decodes a mapping and calls fn in key order, so one step with
// several keys still produces a stable instruction order.
func eachSorted(raw json.RawMessage, fn func(k, v string)) error {
	var kv map[string]string
	if err := json.Unmarshal(raw, &kv); err != nil {
		return err
	}

	keys := maps.Keys(kv)
	slices.Sort(keys)
	for _, k := range keys {
		fn(k, kv[k])
	}

	return nil
}

func stringOrList(raw json.RawMessage) ([]string, error) {
	var list []string
	var single string
	if err := unmarshalStringOr(raw, &single, &list); err != nil {
		return nil, err
	}
	if single != "" {
		return []string{single}, nil
	}

	return list, nil
}

// unmarshalStringOr decodes raw into str when it is a JSON string and into
// other otherwise.
func unmarshalStringOr(raw json.RawMessage, str *string, other any) error {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, str)
	}

	return json.Unmarshal(raw, other)
}
