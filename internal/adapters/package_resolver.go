package adapters

import (
	"context"

	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

type availablePackages interface {
	Available(ctx context.Context) ([]types.Nevra, error)
}

// PackageResolverAdapter answers package queries from commit package
// lists and cached repository metadata.
type PackageResolverAdapter struct {
	Store    ports.ContentStorePort
	Metadata availablePackages
}

func NewPackageResolverAdapter(store ports.ContentStorePort, metadata availablePackages) PackageResolverAdapter {
	return PackageResolverAdapter{Store: store, Metadata: metadata}
}

func (a PackageResolverAdapter) QueryMatching(ctx context.Context, commit string, pattern string) ([]types.Nevra, error) {
	c, err := a.Store.ReadCommit(ctx, commit)
	if err != nil {
		return nil, err
	}
	return filterPackages(c.Packages, pattern), nil
}

func (a PackageResolverAdapter) QueryAvailable(ctx context.Context, pattern string) ([]types.Nevra, error) {
	if a.Metadata == nil {
		return nil, nil
	}
	packages, err := a.Metadata.Available(ctx)
	if err != nil {
		return nil, err
	}
	return filterPackages(packages, pattern), nil
}

func filterPackages(packages []types.Nevra, pattern string) []types.Nevra {
	var out []types.Nevra
	seen := map[string]struct{}{}
	for _, pkg := range packages {
		if !pkg.Matches(pattern) {
			continue
		}
		key := pkg.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, pkg)
	}
	return out
}

var _ ports.PackageResolverPort = PackageResolverAdapter{}
