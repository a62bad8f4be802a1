package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

// LocalPackageImporter imports package archives handed over by a request
// into the content store.
type LocalPackageImporter struct {
	store    ports.ContentStorePort
	importer ports.PackageImporterPort
	policy   ports.ImportPolicy
}

func NewLocalPackageImporter(store ports.ContentStorePort, importer ports.PackageImporterPort, policy ports.ImportPolicy) LocalPackageImporter {
	return LocalPackageImporter{store: store, importer: importer, policy: policy}
}

// Import consumes every archive, in order, inside one import batch. The
// batch is opened with commit-on-failure: packages imported before a
// failure stay in the store, but the caller only ever sees the complete
// list or an error. Every archive is closed on return.
func (l LocalPackageImporter) Import(ctx context.Context, archives []*types.PackageArchive) (_ []types.ImportedPackage, err error) {
	defer func() {
		for _, archive := range archives {
			_ = archive.Close()
		}
	}()
	if len(archives) == 0 {
		return nil, nil
	}

	batch, err := l.store.BeginImportBatch(ctx, true)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if closeErr := batch.Close(ctx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	imported := make([]types.ImportedPackage, 0, len(archives))
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkg, err := l.importOne(ctx, batch, archive)
		if err != nil {
			return nil, err
		}
		log.Ctx(ctx).Debug().Str("archive", archive.Name()).Str("nevra", pkg.Nevra).Msg("package imported")
		imported = append(imported, pkg)
	}

	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true
	return imported, nil
}

func (l LocalPackageImporter) importOne(ctx context.Context, batch ports.ImportBatch, archive *types.PackageArchive) (types.ImportedPackage, error) {
	reader, err := archive.Take()
	if err != nil {
		return types.ImportedPackage{}, err
	}
	defer reader.Close()
	return l.importer.ImportArchive(ctx, batch, reader, l.policy)
}

// Records renders imported packages in their sha256:nevra origin form.
func Records(packages []types.ImportedPackage) []string {
	records := make([]string, 0, len(packages))
	for _, pkg := range packages {
		records = append(records, pkg.Record())
	}
	return records
}
