package types

import (
	"fmt"
	"path"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Nevra is the fully qualified identity of a package build.
type Nevra struct {
	Name    string `yaml:"name"`
	Epoch   string `yaml:"epoch,omitempty"`
	Version string `yaml:"version"`
	Release string `yaml:"release"`
	Arch    string `yaml:"arch"`
}

// String renders name-[epoch:]version-release.arch; a zero epoch is omitted.
func (n Nevra) String() string {
	return fmt.Sprintf("%s-%s.%s", n.Name, n.EVR(), n.Arch)
}

// EVR renders [epoch:]version-release.
func (n Nevra) EVR() string {
	if n.Epoch == "" || n.Epoch == "0" {
		return n.Version + "-" + n.Release
	}
	return n.Epoch + ":" + n.Version + "-" + n.Release
}

// ParseNevra splits a name-[epoch:]version-release.arch string. Package
// names may themselves contain dashes, so the string is split from the
// right.
func ParseNevra(value string) (Nevra, error) {
	raw := strings.TrimSpace(value)
	dot := strings.LastIndex(raw, ".")
	if dot <= 0 || dot == len(raw)-1 {
		return Nevra{}, invalidNevra(value)
	}
	arch := raw[dot+1:]
	rest := raw[:dot]

	relDash := strings.LastIndex(rest, "-")
	if relDash <= 0 || relDash == len(rest)-1 {
		return Nevra{}, invalidNevra(value)
	}
	release := rest[relDash+1:]
	rest = rest[:relDash]

	verDash := strings.LastIndex(rest, "-")
	if verDash <= 0 || verDash == len(rest)-1 {
		return Nevra{}, invalidNevra(value)
	}
	name := rest[:verDash]
	ev := rest[verDash+1:]

	epoch := ""
	version := ev
	if colon := strings.Index(ev, ":"); colon >= 0 {
		epoch = ev[:colon]
		version = ev[colon+1:]
		if epoch == "" || version == "" {
			return Nevra{}, invalidNevra(value)
		}
	}
	return Nevra{
		Name:    name,
		Epoch:   epoch,
		Version: version,
		Release: release,
		Arch:    arch,
	}, nil
}

func invalidNevra(value string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("invalid nevra: %q", value))
}

// Matches reports whether pattern selects this package. A pattern may be
// the name, the full NEVRA, name.arch, name-version, name-version-release
// or a shell glob over any of those forms.
func (n Nevra) Matches(pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	for _, form := range n.forms() {
		if form == pattern {
			return true
		}
		if ok, err := path.Match(pattern, form); err == nil && ok {
			return true
		}
	}
	return false
}

func (n Nevra) forms() []string {
	return []string{
		n.Name,
		n.String(),
		n.Name + "." + n.Arch,
		n.Name + "-" + n.Version,
		n.Name + "-" + n.EVR(),
	}
}
