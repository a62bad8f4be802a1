package app

import (
	"context"
	"fmt"

	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

// executePackageDiff pulls the base the next upgrade, rebase or deploy
// would use and reports how its package set differs from the current
// one. Deployments are never written.
func (s *Service) executePackageDiff(ctx context.Context, tx PackageDiffTransaction, sink ports.ProgressSink) (Result, error) {
	osname, err := s.osname(tx.OSName)
	if err != nil {
		return Result{}, err
	}
	flags := types.UpgraderFlags{AllowOlder: tx.Refspec != "" || tx.Revision != ""}
	upgrader, err := core.NewSysrootUpgrader(ctx, s.upgraderPorts(), osname, flags)
	if err != nil {
		return Result{}, err
	}
	origin := upgrader.Origin()
	upgrading := tx.Refspec == "" && tx.Revision == ""

	if tx.Refspec != "" {
		change, err := core.ChangeRefspec(origin.Refspec, tx.Refspec)
		if err != nil {
			return Result{}, err
		}
		origin = origin.WithRebase(change.New)
	}
	if tx.Revision != "" {
		origin, err = s.applyRevision(ctx, origin, tx.Revision, sink)
		if err != nil {
			return Result{}, err
		}
	} else if upgrading {
		origin = origin.WithoutPinnedCommit()
	}
	upgrader.SetOrigin(origin)

	result := Result{Title: "package-diff"}
	sink.Title(result.Title)
	if tx.Refspec != "" {
		sink.Message(fmt.Sprintf("Updating from: %s", tx.Refspec))
	}

	previous := upgrader.Base()
	changed, err := upgrader.PullBase(ctx, sink)
	if err != nil {
		return Result{}, err
	}
	sink.ProgressEnd()
	if !changed {
		if upgrading {
			sink.Message("No upgrade available.")
		} else {
			sink.Message("No change.")
		}
		return result, nil
	}

	from, err := s.Store.ReadCommit(ctx, previous)
	if err != nil {
		return Result{}, err
	}
	to, err := s.Store.ReadCommit(ctx, upgrader.Base())
	if err != nil {
		return Result{}, err
	}
	diff, err := core.UnifiedPackageDiff(from, to)
	if err != nil {
		return Result{}, err
	}
	result.Changed = true
	result.Diff = diff
	result.Changes = core.DiffPackages(from.Packages, to.Packages)
	return result, nil
}
