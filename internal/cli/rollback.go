package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sysroot-txn/internal/app"
	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
)

func newRollbackCommand() *cobra.Command {
	var reboot bool
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert to the previously booted deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reboot = resolveBool(cmd, reboot, "auto_reboot", "reboot")
			result, err := runTransaction(cmd, func(ctx context.Context, service *app.Service, sink ports.ProgressSink) (app.Result, error) {
				return service.Rollback(ctx, app.RollbackTransaction{Reboot: reboot}, sink)
			})
			if err != nil {
				return err
			}
			if result.Changed && !reboot {
				fmt.Fprintf(cmd.OutOrStdout(), "next boot: %s\n", core.ShortChecksum(result.Deployment.Checksum))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&reboot, "reboot", "r", false, "Initiate a reboot after the operation is complete")
	return cmd
}
