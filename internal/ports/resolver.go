package ports

import (
	"context"

	"sysroot-txn/internal/types"
)

// PackageResolverPort answers package queries against commits and cached
// repository metadata. Zero, one or many matches are all valid answers.
type PackageResolverPort interface {
	QueryMatching(ctx context.Context, commit string, pattern string) ([]types.Nevra, error)
	QueryAvailable(ctx context.Context, pattern string) ([]types.Nevra, error)
}
