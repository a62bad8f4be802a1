package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

func (s *Service) executeCleanup(ctx context.Context, tx CleanupTransaction, sink ports.ProgressSink) (Result, error) {
	flags := tx.Flags
	if !flags.Any() {
		return Result{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("no cleanup action requested")
	}
	result := Result{Title: "cleanup"}
	sink.Title(result.Title)

	if flags.Pending || flags.Rollback {
		osname, err := s.osname(tx.OSName)
		if err != nil {
			return Result{}, err
		}
		deployments, err := s.Sysroot.Deployments(ctx)
		if err != nil {
			return Result{}, err
		}
		booted, err := s.Sysroot.BootedDeployment(ctx)
		if err != nil {
			return Result{}, err
		}
		filtered, changed := core.FilterDeployments(deployments, booted, osname, flags.Pending, flags.Rollback)
		if changed {
			if err := s.Sysroot.WriteDeployments(ctx, filtered, types.WriteDeploymentsOptions{SkipPostclean: true}); err != nil {
				return Result{}, err
			}
			result.Changed = true
			// Dropped deployments leave unreferenced content behind.
			flags.Base = true
		} else {
			sink.Message("Deployments unchanged.")
		}
	}

	if flags.Base {
		pruned, err := s.cleanupBase(ctx)
		if err != nil {
			return Result{}, err
		}
		result.Pruned = pruned
		if pruned.CommitsPruned > 0 || pruned.PackagesPruned > 0 {
			result.Changed = true
		}
		sink.Message(fmt.Sprintf("Pruned %d commits and %d packages", pruned.CommitsPruned, pruned.PackagesPruned))
	}

	if flags.RepoMetadata {
		if s.RepoMetadata == nil {
			return Result{}, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("no repo metadata cache configured")
		}
		if err := s.RepoMetadata.Clear(ctx); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

// cleanupBase garbage-collects the content store, keeping every commit a
// deployment is built from.
func (s *Service) cleanupBase(ctx context.Context) (types.GCResult, error) {
	if err := ctx.Err(); err != nil {
		return types.GCResult{}, err
	}
	deployments, err := s.Sysroot.Deployments(ctx)
	if err != nil {
		return types.GCResult{}, err
	}
	keep := make([]string, 0, 2*len(deployments))
	for _, deployment := range deployments {
		keep = append(keep, deployment.Checksum)
		if base := deployment.BaseChecksum(); base != deployment.Checksum {
			keep = append(keep, base)
		}
	}
	return s.Store.GC(ctx, keep)
}
