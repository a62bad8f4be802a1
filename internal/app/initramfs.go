package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

func (s *Service) executeInitramfsState(ctx context.Context, tx InitramfsStateTransaction, sink ports.ProgressSink) (Result, error) {
	osname, err := s.osname(tx.OSName)
	if err != nil {
		return Result{}, err
	}
	upgrader, err := core.NewSysrootUpgrader(ctx, s.upgraderPorts(), osname, types.UpgraderFlags{})
	if err != nil {
		return Result{}, err
	}
	origin := upgrader.Origin()
	// Extra arguments are not compared; passing any forces a redeploy.
	if origin.Initramfs.Regenerate == tx.Regenerate && len(origin.Initramfs.Args) == 0 && len(tx.Args) == 0 {
		state := "disabled"
		if origin.Initramfs.Regenerate {
			state = "enabled"
		}
		return Result{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("initramfs regeneration state is already %s", state))
	}

	result := Result{Title: "initramfs"}
	sink.Title(result.Title)
	upgrader.SetOrigin(origin.WithInitramfs(tx.Regenerate, tx.Args))
	deployment, err := upgrader.Deploy(ctx)
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
