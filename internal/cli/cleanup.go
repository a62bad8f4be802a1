package cli

import (
	"context"

	"github.com/spf13/cobra"

	"sysroot-txn/internal/app"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

func newCleanupCommand() *cobra.Command {
	flags := types.CleanupFlags{}
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clear cached and pending data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := runTransaction(cmd, func(ctx context.Context, service *app.Service, sink ports.ProgressSink) (app.Result, error) {
				return service.Cleanup(ctx, app.CleanupTransaction{Flags: flags}, sink)
			})
			return err
		},
	}
	cmd.Flags().BoolVarP(&flags.Base, "base", "b", false, "Clear temporary files; leave deployments unchanged")
	cmd.Flags().BoolVarP(&flags.Pending, "pending", "p", false, "Remove pending deployment")
	cmd.Flags().BoolVarP(&flags.Rollback, "rollback", "r", false, "Remove rollback deployment")
	cmd.Flags().BoolVarP(&flags.RepoMetadata, "repomd", "m", false, "Delete cached repository metadata")
	return cmd
}
