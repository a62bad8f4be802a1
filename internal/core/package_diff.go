package core

import (
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/pmezard/go-difflib/difflib"

	"sysroot-txn/internal/types"
)

// PackageChanges classifies the package-level difference between two
// commits.
type PackageChanges struct {
	Added    []types.Nevra
	Removed  []types.Nevra
	Upgraded []types.NevraReplacement
	// Downgraded holds replacements whose new EVR sorts lower.
	Downgraded []types.NevraReplacement
}

func (c PackageChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Upgraded) == 0 && len(c.Downgraded) == 0
}

// DiffPackages compares package sets by name.
func DiffPackages(from []types.Nevra, to []types.Nevra) PackageChanges {
	before := map[string]types.Nevra{}
	for _, pkg := range from {
		before[pkg.Name] = pkg
	}
	after := map[string]types.Nevra{}
	for _, pkg := range to {
		after[pkg.Name] = pkg
	}

	var changes PackageChanges
	for _, pkg := range to {
		old, ok := before[pkg.Name]
		if !ok {
			changes.Added = append(changes.Added, pkg)
			continue
		}
		if old == pkg {
			continue
		}
		pair := types.NevraReplacement{Old: old, New: pkg}
		if CompareEVR(pkg, old) < 0 {
			changes.Downgraded = append(changes.Downgraded, pair)
		} else {
			changes.Upgraded = append(changes.Upgraded, pair)
		}
	}
	for _, pkg := range from {
		if _, ok := after[pkg.Name]; !ok {
			changes.Removed = append(changes.Removed, pkg)
		}
	}
	return changes
}

// UnifiedPackageDiff renders a unified diff of the sorted NEVRA lists of
// two commits.
func UnifiedPackageDiff(from types.Commit, to types.Commit) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        packageLines(from.Packages),
		B:        packageLines(to.Packages),
		FromFile: ShortChecksum(from.Checksum),
		ToFile:   ShortChecksum(to.Checksum),
		Context:  0,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to render package diff").
			WithCause(err)
	}
	return text, nil
}

func packageLines(packages []types.Nevra) []string {
	lines := make([]string, 0, len(packages))
	for _, pkg := range packages {
		lines = append(lines, pkg.String()+"\n")
	}
	sort.Strings(lines)
	return lines
}
