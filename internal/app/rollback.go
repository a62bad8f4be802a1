package app

import (
	"context"

	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

func (s *Service) executeRollback(ctx context.Context, tx RollbackTransaction, sink ports.ProgressSink) (Result, error) {
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
	plan, err := core.RollbackOrder(deployments, booted, osname)
	if err != nil {
		return Result{}, err
	}
	result := Result{Title: "rollback"}
	sink.Title(result.Title)
	sink.Message(core.RollbackMessage(plan.Target))

	if plan.HeadChanged {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := s.Sysroot.WriteDeployments(ctx, plan.Deployments, types.WriteDeploymentsOptions{}); err != nil {
			return Result{}, err
		}
		result.Changed = true
	}
	target := plan.Target
	result.Deployment = &target

	if tx.Reboot {
		s.reboot(ctx, sink, &result)
	}
	return result, nil
}
