package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
)

func (s *Service) executeRefreshMetadata(ctx context.Context, tx RefreshMetadataTransaction, sink ports.ProgressSink) (Result, error) {
	osname, err := s.osname(tx.OSName)
	if err != nil {
		return Result{}, err
	}
	if s.RepoMetadata == nil {
		return Result{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("no repo metadata cache configured")
	}
	deployments, err := s.Sysroot.Deployments(ctx)
	if err != nil {
		return Result{}, err
	}
	booted, err := s.Sysroot.BootedDeployment(ctx)
	if err != nil {
		return Result{}, err
	}
	// Only checks that the OS has a deployment to refresh for.
	if _, err := core.MergeDeployment(deployments, booted, osname); err != nil {
		return Result{}, err
	}

	result := Result{Title: "refresh-md"}
	sink.Title(result.Title)
	refreshed, err := s.RepoMetadata.Refresh(ctx, ports.RefreshMetadataOptions{OSName: osname, Force: tx.Force})
	if err != nil {
		return Result{}, err
	}
	for _, repo := range refreshed.Refreshed {
		sink.Message(fmt.Sprintf("Updated metadata for repo '%s'", repo))
	}
	for _, repo := range refreshed.Cached {
		sink.Message(fmt.Sprintf("Metadata for repo '%s' is up to date", repo))
	}
	result.Refreshed = refreshed.Refreshed
	result.Cached = refreshed.Cached
	result.Changed = len(refreshed.Refreshed) > 0
	return result, nil
}
