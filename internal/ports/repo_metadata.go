package ports

import "context"

type RefreshMetadataOptions struct {
	OSName string
	Force  bool
}

type RefreshMetadataResult struct {
	Refreshed []string
	Cached    []string
}

type RepoMetadataPort interface {
	Refresh(ctx context.Context, opts RefreshMetadataOptions) (RefreshMetadataResult, error)
	// Clear removes cached metadata; a missing cache is not an error.
	Clear(ctx context.Context) error
}
