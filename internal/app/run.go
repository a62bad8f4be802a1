package app

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"sysroot-txn/internal/types"
)

// Run is a single execution of a transaction. A run executes at most once
// and is finalized exactly once, whatever the outcome.
type Run struct {
	ID          string
	Transaction Transaction

	started  atomic.Bool
	finalize sync.Once
	closeErr error
}

func NewRun(tx Transaction) *Run {
	return &Run{ID: uuid.NewString(), Transaction: tx}
}

// Finalize releases resources held by the transaction. Package archives
// the importer already consumed are skipped.
func (r *Run) Finalize() error {
	r.finalize.Do(func() {
		var errs []error
		for _, archive := range runArchives(r.Transaction) {
			if archive == nil {
				continue
			}
			errs = append(errs, archive.Close())
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

func runArchives(tx Transaction) []*types.PackageArchive {
	deploy, ok := tx.(DeployTransaction)
	if !ok {
		return nil
	}
	archives := make([]*types.PackageArchive, 0, len(deploy.InstallLocal)+len(deploy.OverrideReplaceLocal))
	archives = append(archives, deploy.InstallLocal...)
	return append(archives, deploy.OverrideReplaceLocal...)
}
