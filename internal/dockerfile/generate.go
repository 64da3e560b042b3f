// Package dockerfile builds images by rendering a Dockerfile and running the
// docker CLI on it.
package dockerfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"layercake.run/internal/conventions"
	"layercake.run/internal/instructions"
)

const header = `#############################
#                           #
# Auto generated Dockerfile #
#                           #
#############################

`

// Base is the FROM line source. ImageID pins a sibling project's image.
type Base struct {
	Reference string
	Project   string
	ImageID   string
}

func (b Base) from() string {
	if b.ImageID != "" {
		return b.ImageID
	}

	return b.Reference
}

// Generate renders m as Dockerfile. contextDirName is the directory, relative
// to the Dockerfile, holding the staged layerN directories.
func Generate(w io.Writer, m *instructions.Model, base Base, contextDirName string) error {
	if base.from() == "" {
		return conventions.NewConfigurationError("FROM", "no base image")
	}

	bw := bufio.NewWriter(w)
	g := &generator{w: bw}

	g.print(header)

	if base.Project != "" {
		g.printf("# %s (a.k.a %s)\n", base.Project, base.Reference)
	}
	g.printf("FROM %s\n\n", base.from())

	if mt, ok := m.MaintainerInfo(); ok {
		g.printf("MAINTAINER %s\n\n", mt)
	}

	g.print("# Filesystem layers are staged before the build and copied in as they are.\n")
	g.print("# COPY and RUN steps keep their declared order.\n")
	if err := m.ForEachLayer(
		func(r instructions.Run) error {
			g.printf("RUN %s\n", strings.Join(r.Commands, " && \\\n    "))
			return nil
		},
		func(c instructions.Copy) error {
			chown := ""
			if c.Owner != nil {
				chown = "--chown=" + c.Owner.String() + " "
			}
			g.printf("COPY %s%s/%s /\n", chown, contextDirName, c.ContentDir)
			return nil
		},
	); err != nil {
		return err
	}
	g.print("\n")

	if argv, ok := m.EntrypointArgv(); ok {
		g.printf("ENTRYPOINT %s\n\n", execForm(argv))
	}
	if argv, ok := m.CmdArgv(); ok {
		g.printf("CMD %s\n\n", execForm(argv))
	}

	if err := g.keyValues("LABEL", m.Labels()); err != nil {
		return err
	}
	if err := g.keyValues("ENV", m.EnvVars()); err != nil {
		return err
	}

	if wd, ok := m.WorkdirPath(); ok {
		g.printf("WORKDIR %s\n\n", wd)
	}
	if ports := m.ExposedPorts(); len(ports) > 0 {
		for _, p := range ports {
			g.printf("EXPOSE %s\n", p)
		}
		g.print("\n")
	}

	if g.err != nil {
		return g.err
	}

	return bw.Flush()
}

type generator struct {
	w   io.Writer
	err error
}

func (g *generator) print(s string) {
	if g.err != nil {
		return
	}
	_, g.err = io.WriteString(g.w, s)
}

func (g *generator) printf(format string, args ...any) {
	g.print(fmt.Sprintf(format, args...))
}

func (g *generator) keyValues(instruction string, kv *instructions.KeyValues) error {
	if kv.Len() == 0 {
		return nil
	}

	var err error
	kv.Each(func(key, value string) {
		if err != nil {
			return
		}
		if key == "" || strings.ContainsAny(key, " \t\r\n=\"") {
			err = conventions.NewConfigurationError(instruction, "invalid key %q", key)
			return
		}
		if strings.ContainsAny(value, "\r\n") {
			err = conventions.NewConfigurationError(instruction, "value of %q spans multiple lines", key)
			return
		}
		g.printf("%s %s=%s\n", instruction, key, quote(value))
	})
	g.print("\n")

	return err
}

func execForm(argv []string) string {
	// Marshalling a string slice cannot fail.
	data, _ := json.Marshal(argv)
	return string(data)
}

// quote wraps values the Dockerfile lexer would otherwise split or expand.
func quote(value string) string {
	if value != "" && !strings.ContainsAny(value, " \t\"'\\$") {
		return value
	}

	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)

	return `"` + r.Replace(value) + `"`
}

// Validate parses a rendered Dockerfile the way the docker build frontend
// does and checks that it starts with FROM.
func Validate(data []byte) error {
	res, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("generated Dockerfile does not parse: %w", err)
	}
	if res.AST == nil || len(res.AST.Children) == 0 {
		return errors.New("generated Dockerfile is empty")
	}
	if first := strings.ToLower(res.AST.Children[0].Value); first != "from" {
		return fmt.Errorf("generated Dockerfile must begin with FROM, found %s", strings.ToUpper(first))
	}

	return nil
}
