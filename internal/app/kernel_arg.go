package app

import (
	"context"

	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

func (s *Service) executeKernelArg(ctx context.Context, tx KernelArgTransaction, sink ports.ProgressSink) (Result, error) {
	osname, err := s.osname(tx.OSName)
	if err != nil {
		return Result{}, err
	}
	upgrader, err := core.NewSysrootUpgrader(ctx, s.upgraderPorts(), osname, types.UpgraderFlags{})
	if err != nil {
		return Result{}, err
	}
	existing := tx.Existing
	if existing == "" {
		existing = core.NewKernelArgs(upgrader.MergeDeployment().KernelArgs).String()
	}
	args, err := core.KernelArgEdit{
		Existing: existing,
		Append:   tx.Append,
		Replace:  tx.Replace,
		Delete:   tx.Delete,
	}.Apply()
	if err != nil {
		return Result{}, err
	}

	result := Result{Title: "kernel-args"}
	sink.Title(result.Title)
	deployment, err := upgrader.DeploySetKernelArgs(ctx, args)
	if err != nil {
		return Result{}, err
	}
	result.Changed = true
	result.Deployed = true
	result.Deployment = &deployment
	if tx.Reboot {
		s.reboot(ctx, sink, &result)
	}
	return result, nil
}
