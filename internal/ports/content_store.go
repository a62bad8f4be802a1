package ports

import (
	"context"

	"sysroot-txn/internal/types"
)

// ContentStorePort is the content-addressed commit store.
type ContentStorePort interface {
	ResolveRef(ctx context.Context, refspec types.Refspec) (string, error)
	// ResolveVersion finds the commit on refspec's history carrying the
	// given version string.
	ResolveVersion(ctx context.Context, refspec types.Refspec, version string) (string, error)
	// HasCommit reports whether checksum is reachable from refspec.
	HasCommit(ctx context.Context, refspec types.Refspec, checksum string) (bool, error)
	ReadCommit(ctx context.Context, checksum string) (types.Commit, error)
	Pull(ctx context.Context, refspec types.Refspec, opts types.PullOptions, progress ProgressSink) (types.PullResult, error)
	WriteCommit(ctx context.Context, commit types.Commit) (string, error)
	// SetRef points refspec at checksum; an empty checksum deletes the ref.
	SetRef(ctx context.Context, refspec types.Refspec, checksum string) error
	BeginImportBatch(ctx context.Context, commitOnFailure bool) (ImportBatch, error)
	// GC prunes commits and imported packages not reachable from keep or
	// from any ref.
	GC(ctx context.Context, keep []string) (types.GCResult, error)
}

// ImportBatch groups package imports. Close without Commit discards the
// batch unless it was opened with commit-on-failure.
type ImportBatch interface {
	PutPackage(ctx context.Context, pkg types.ImportedPackage, header []byte, payload []byte) error
	Commit(ctx context.Context) error
	Close(ctx context.Context) error
}
