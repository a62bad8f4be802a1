package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"sysroot-txn/internal/types"
)

// RefspecChange is the outcome of merging a requested refspec against the
// current one.
type RefspecChange struct {
	Old types.Refspec
	New types.Refspec
}

// SwitchingRemoteOnly reports a rebase that keeps the branch and moves to
// a different, non-empty remote.
func (c RefspecChange) SwitchingRemoteOnly() bool {
	return c.New.Remote != c.Old.Remote &&
		c.New.Branch == c.Old.Branch &&
		c.New.Remote != ""
}

// Notice is the informational line shown for remote-only rebases.
func (c RefspecChange) Notice() string {
	if !c.SwitchingRemoteOnly() {
		return ""
	}
	return fmt.Sprintf("Rebasing to %s:%s", c.New.Remote, c.Old.Branch)
}

// ParseRefspec parses a fully qualified "remote:branch" or bare "branch".
func ParseRefspec(value string) (types.Refspec, error) {
	raw := strings.TrimSpace(value)
	remote, branch, hasRemote := strings.Cut(raw, ":")
	if !hasRemote {
		branch = raw
		remote = ""
	}
	if err := validateRefComponent(branch, "branch", value); err != nil {
		return types.Refspec{}, err
	}
	if hasRemote && remote != "" {
		if err := validateRefComponent(remote, "remote", value); err != nil {
			return types.Refspec{}, err
		}
	}
	return types.Refspec{Remote: remote, Branch: branch}, nil
}

// ParsePartialRefspec resolves a possibly partial refspec against current:
// "remote:" keeps the current branch, "branch" keeps the current remote,
// ":branch" selects a local branch and "remote:branch" is taken as-is.
func ParsePartialRefspec(requested string, current types.Refspec) (types.Refspec, error) {
	raw := strings.TrimSpace(requested)
	if raw == "" {
		return types.Refspec{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("refspec is empty")
	}
	if strings.HasSuffix(raw, ":") && strings.Count(raw, ":") == 1 {
		remote := strings.TrimSuffix(raw, ":")
		if err := validateRefComponent(remote, "remote", requested); err != nil {
			return types.Refspec{}, err
		}
		return types.Refspec{Remote: remote, Branch: current.Branch}, nil
	}
	if !strings.Contains(raw, ":") {
		if err := validateRefComponent(raw, "branch", requested); err != nil {
			return types.Refspec{}, err
		}
		return types.Refspec{Remote: current.Remote, Branch: raw}, nil
	}
	return ParseRefspec(raw)
}

// ChangeRefspec computes the rebase target. Rebasing onto the current
// refspec is rejected.
func ChangeRefspec(current types.Refspec, requested string) (RefspecChange, error) {
	next, err := ParsePartialRefspec(requested, current)
	if err != nil {
		return RefspecChange{}, err
	}
	if next == current {
		return RefspecChange{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("old and new refs are equal: %s", next.String()))
	}
	return RefspecChange{Old: current, New: next}, nil
}

func validateRefComponent(value string, what string, raw string) error {
	if value == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid refspec %q: empty %s", raw, what))
	}
	for _, r := range value {
		if unicode.IsSpace(r) || r == ':' {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("invalid refspec %q: bad character in %s", raw, what))
		}
	}
	if what == "remote" && strings.Contains(value, "/") {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid refspec %q: remote must not contain '/'", raw))
	}
	return nil
}
