// Package instructions holds the ordered, typed build steps a project declares
// for its container image.
package instructions

import (
	"fmt"
	"strconv"
)

// Instruction is one build step. The set of implementations is closed.
type Instruction interface {
	isInstruction()
}

// From selects the base image. Exactly one of Image or Project is set.
type From struct {
	// Image is an external image reference, e.g. "ubuntu:22.04".
	Image string
	// Project names a sibling project whose image is used as base.
	Project string
}

// IsProject reports whether the base is a sibling project's image.
func (f From) IsProject() bool { return f.Project != "" }

type Maintainer struct {
	Name  string
	Email string
}

func (m Maintainer) String() string {
	if m.Email == "" {
		return m.Name
	}

	return fmt.Sprintf("%s <%s>", m.Name, m.Email)
}

// Owner is the numeric ownership applied to every entry of a copied layer.
type Owner struct {
	UID int
	GID int
}

func (o Owner) String() string {
	return strconv.Itoa(o.UID) + ":" + strconv.Itoa(o.GID)
}

// Copy adds the staged content directory ContentDir as one layer rooted at "/".
type Copy struct {
	// Ordinal is the position among all Copy instructions of a model.
	Ordinal    int
	ContentDir string
	Owner      *Owner
}

// Run executes shell commands inside the image, chained with "&&".
type Run struct {
	Commands []string
}

type Env struct {
	Key   string
	Value string
}

// Label is image metadata. Changing labels carry values expected to differ
// between otherwise identical builds, like a build timestamp.
type Label struct {
	Key      string
	Value    string
	Changing bool
}

type Entrypoint struct {
	Argv []string
}

type Cmd struct {
	Argv []string
}

type Workdir struct {
	Path string
}

type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

type Expose struct {
	Port     int
	Protocol Protocol
}

func (e Expose) String() string {
	return fmt.Sprintf("%d/%s", e.Port, e.Protocol)
}

func (From) isInstruction()       {}
func (Maintainer) isInstruction() {}
func (Copy) isInstruction()       {}
func (Run) isInstruction()        {}
func (Env) isInstruction()        {}
func (Label) isInstruction()      {}
func (Entrypoint) isInstruction() {}
func (Cmd) isInstruction()        {}
func (Workdir) isInstruction()    {}
func (Expose) isInstruction()     {}

// LayerDirName is the name of the staged directory backing the Copy
// instruction with the given ordinal.
func LayerDirName(ordinal int) string {
	return "layer" + strconv.Itoa(ordinal)
}
