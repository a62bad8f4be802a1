package cli

import (
	"context"

	"github.com/spf13/cobra"

	"sysroot-txn/internal/app"
	"sysroot-txn/internal/ports"
)

func newRefreshMetadataCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "refresh-md",
		Short: "Generate repository metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := runTransaction(cmd, func(ctx context.Context, service *app.Service, sink ports.ProgressSink) (app.Result, error) {
				return service.RefreshMetadata(ctx, app.RefreshMetadataTransaction{Force: force}, sink)
			})
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Expire current cache")
	return cmd
}
