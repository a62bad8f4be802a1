package core

import (
	"strings"

	debversion "github.com/knqyf263/go-deb-version"

	"sysroot-txn/internal/types"
)

// CompareVersions orders two version strings using Debian ordering rules,
// which cover the dotted and tilde forms used by OS release versions.
// Strings that do not parse fall back to lexical order.
func CompareVersions(a string, b string) int {
	if a == b {
		return 0
	}
	left, errA := debversion.NewVersion(a)
	right, errB := debversion.NewVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return left.Compare(right)
}

// CompareEVR orders two packages of the same name by epoch, version and
// release.
func CompareEVR(a types.Nevra, b types.Nevra) int {
	return CompareVersions(evrString(a), evrString(b))
}

func evrString(n types.Nevra) string {
	epoch := n.Epoch
	if epoch == "" {
		epoch = "0"
	}
	return epoch + ":" + n.Version + "-" + n.Release
}

// NewestByName keeps the highest EVR per package name, preserving the
// order in which names first appear.
func NewestByName(candidates []types.Nevra) []types.Nevra {
	index := map[string]int{}
	var out []types.Nevra
	for _, candidate := range candidates {
		idx, ok := index[candidate.Name]
		if !ok {
			index[candidate.Name] = len(out)
			out = append(out, candidate)
			continue
		}
		if CompareEVR(candidate, out[idx]) > 0 {
			out[idx] = candidate
		}
	}
	return out
}
