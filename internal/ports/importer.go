package ports

import (
	"context"
	"io"

	"sysroot-txn/internal/types"
)

type ImportPolicy struct {
	// Relabel marks content for relabeling when the target base ships a
	// different security policy.
	Relabel bool
}

// PackageImporterPort unpacks one package archive into an import batch.
type PackageImporterPort interface {
	ImportArchive(ctx context.Context, batch ImportBatch, archive io.Reader, policy ImportPolicy) (types.ImportedPackage, error)
}
