package core

import (
	"fmt"
	"strings"
)

// Title summarises a transaction as an operation kind followed by
// mutation counts, e.g. "install; install: 3".
type Title struct {
	kind   string
	counts []string
}

func NewTitle(kind string) *Title {
	return &Title{kind: kind}
}

// Count appends "; label: n" when n is positive.
func (t *Title) Count(label string, n int) *Title {
	if n > 0 {
		t.counts = append(t.counts, fmt.Sprintf("%s: %d", label, n))
	}
	return t
}

func (t *Title) String() string {
	if len(t.counts) == 0 {
		return t.kind
	}
	return t.kind + "; " + strings.Join(t.counts, "; ")
}

// DeployTitleKind names a deploy request by what it mostly does. Requests
// that skip pulling the base are package operations; otherwise a refspec
// makes it a rebase and a revision a deploy.
func DeployTitleKind(refspec string, revision string, noPullBase bool, hasPackageChanges bool) string {
	switch {
	case noPullBase && hasPackageChanges:
		return "install"
	case noPullBase:
		return "override"
	case refspec != "":
		return "rebase"
	case revision != "":
		return "deploy"
	default:
		return "upgrade"
	}
}
