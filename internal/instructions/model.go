package instructions

import (
	"errors"
	"fmt"
)

var (
	ErrNoBase        = errors.New("no base image declared")
	ErrMultipleBases = errors.New("more than one base image declared")
)

// Model is the append-only, ordered list of instructions of one build.
// The zero value is ready to use.
type Model struct {
	instructions []Instruction
	copies       int
}

func (m *Model) add(i Instruction) { m.instructions = append(m.instructions, i) }

func (m *Model) From(image string) *Model {
	m.add(From{Image: image})
	return m
}

func (m *Model) FromProject(project string) *Model {
	m.add(From{Project: project})
	return m
}

func (m *Model) Maintainer(name, email string) *Model {
	m.add(Maintainer{Name: name, Email: email})
	return m
}

// Copy appends a Copy instruction with the next free ordinal and returns it.
func (m *Model) Copy() Copy {
	return m.copy(nil)
}

// CopyAs is Copy with every entry of the layer owned by owner.
func (m *Model) CopyAs(owner Owner) Copy {
	return m.copy(&owner)
}

func (m *Model) copy(owner *Owner) Copy {
	c := Copy{
		Ordinal:    m.copies,
		ContentDir: LayerDirName(m.copies),
		Owner:      owner,
	}
	m.copies++
	m.add(c)

	return c
}

func (m *Model) Run(commands ...string) *Model {
	m.add(Run{Commands: append([]string(nil), commands...)})
	return m
}

func (m *Model) Env(key, value string) *Model {
	m.add(Env{Key: key, Value: value})
	return m
}

func (m *Model) Label(key, value string) *Model {
	m.add(Label{Key: key, Value: value})
	return m
}

func (m *Model) ChangingLabel(key, value string) *Model {
	m.add(Label{Key: key, Value: value, Changing: true})
	return m
}

func (m *Model) Entrypoint(argv ...string) *Model {
	m.add(Entrypoint{Argv: append([]string(nil), argv...)})
	return m
}

func (m *Model) Cmd(argv ...string) *Model {
	m.add(Cmd{Argv: append([]string(nil), argv...)})
	return m
}

func (m *Model) Workdir(path string) *Model {
	m.add(Workdir{Path: path})
	return m
}

func (m *Model) ExposeTCP(port int) *Model {
	m.add(Expose{Port: port, Protocol: TCP})
	return m
}

func (m *Model) ExposeUDP(port int) *Model {
	m.add(Expose{Port: port, Protocol: UDP})
	return m
}

// Instructions returns a copy of all instructions in declaration order.
func (m *Model) Instructions() []Instruction {
	return append([]Instruction(nil), m.instructions...)
}

// Base returns the single From instruction.
func (m *Model) Base() (From, error) {
	var (
		base  From
		found int
	)
	for _, i := range m.instructions {
		if f, ok := i.(From); ok {
			base = f
			found++
		}
	}

	switch {
	case found == 0:
		return From{}, ErrNoBase
	case found > 1:
		return From{}, fmt.Errorf("%w: found %d", ErrMultipleBases, found)
	case base.Image == "" && base.Project == "":
		return From{}, fmt.Errorf("%w: empty base", ErrNoBase)
	case base.Image != "" && base.Project != "":
		return From{}, fmt.Errorf("%w: both image %q and project %q set", ErrMultipleBases, base.Image, base.Project)
	}

	return base, nil
}

// MaintainerInfo returns the last declared maintainer, if any.
func (m *Model) MaintainerInfo() (Maintainer, bool) {
	var (
		res Maintainer
		ok  bool
	)
	for _, i := range m.instructions {
		if mt, isMaintainer := i.(Maintainer); isMaintainer {
			res, ok = mt, true
		}
	}

	return res, ok
}

// Copies returns all Copy instructions ordered by ordinal.
func (m *Model) Copies() []Copy {
	var res []Copy
	for _, i := range m.instructions {
		if c, ok := i.(Copy); ok {
			res = append(res, c)
		}
	}

	return res
}

// HasRun reports whether the model contains shell steps.
func (m *Model) HasRun() bool {
	for _, i := range m.instructions {
		if _, ok := i.(Run); ok {
			return true
		}
	}

	return false
}

// ForEachLayer visits Run and Copy instructions in declaration order.
// A nil callback skips that kind of instruction.
func (m *Model) ForEachLayer(onRun func(Run) error, onCopy func(Copy) error) error {
	for _, i := range m.instructions {
		switch v := i.(type) {
		case Run:
			if onRun == nil {
				continue
			}
			if err := onRun(v); err != nil {
				return err
			}
		case Copy:
			if onCopy == nil {
				continue
			}
			if err := onCopy(v); err != nil {
				return err
			}
		}
	}

	return nil
}

// EnvVars returns all environment variables, last write per key wins.
func (m *Model) EnvVars() *KeyValues {
	kv := &KeyValues{}
	for _, i := range m.instructions {
		if e, ok := i.(Env); ok {
			kv.Set(e.Key, e.Value)
		}
	}

	return kv
}

// Labels returns all labels, changing or not, last write per key wins.
func (m *Model) Labels() *KeyValues {
	return m.labels(func(Label) bool { return true })
}

// ChangingLabels returns only labels declared as changing.
func (m *Model) ChangingLabels() *KeyValues {
	return m.labels(func(l Label) bool { return l.Changing })
}

func (m *Model) labels(keep func(Label) bool) *KeyValues {
	kv := &KeyValues{}
	for _, i := range m.instructions {
		if l, ok := i.(Label); ok && keep(l) {
			kv.Set(l.Key, l.Value)
		}
	}

	return kv
}

// EntrypointArgv returns the last declared entrypoint.
func (m *Model) EntrypointArgv() ([]string, bool) {
	var (
		res []string
		ok  bool
	)
	for _, i := range m.instructions {
		if e, isEntrypoint := i.(Entrypoint); isEntrypoint {
			res, ok = e.Argv, true
		}
	}

	return res, ok
}

// CmdArgv returns the last declared cmd.
func (m *Model) CmdArgv() ([]string, bool) {
	var (
		res []string
		ok  bool
	)
	for _, i := range m.instructions {
		if c, isCmd := i.(Cmd); isCmd {
			res, ok = c.Argv, true
		}
	}

	return res, ok
}

// WorkdirPath returns the last declared working directory.
func (m *Model) WorkdirPath() (string, bool) {
	var (
		res string
		ok  bool
	)
	for _, i := range m.instructions {
		if w, isWorkdir := i.(Workdir); isWorkdir {
			res, ok = w.Path, true
		}
	}

	return res, ok
}

// ExposedPorts returns all distinct exposed ports in declaration order.
func (m *Model) ExposedPorts() []Expose {
	var (
		res  []Expose
		seen = map[Expose]struct{}{}
	)
	for _, i := range m.instructions {
		e, ok := i.(Expose)
		if !ok {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		res = append(res, e)
	}

	return res
}
