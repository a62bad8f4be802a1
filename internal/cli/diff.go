package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sysroot-txn/internal/app"
	"sysroot-txn/internal/ports"
)

type diffOptions struct {
	Refspec  string
	Revision string
	Summary  bool
}

func newDiffCommand() *cobra.Command {
	opts := diffOptions{}
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show the package changes the next upgrade, rebase or deploy would bring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := runTransaction(cmd, func(ctx context.Context, service *app.Service, sink ports.ProgressSink) (app.Result, error) {
				return service.PackageDiff(ctx, app.PackageDiffTransaction{
					Refspec:  opts.Refspec,
					Revision: opts.Revision,
				}, sink)
			})
			if err != nil {
				return err
			}
			if !result.Changed {
				return nil
			}
			out := cmd.OutOrStdout()
			if opts.Summary {
				changes := result.Changes
				fmt.Fprintf(out, "Upgraded: %d\nDowngraded: %d\nRemoved: %d\nAdded: %d\n",
					len(changes.Upgraded), len(changes.Downgraded), len(changes.Removed), len(changes.Added))
				return nil
			}
			fmt.Fprint(out, result.Diff)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Refspec, "refspec", "", "Diff against this refspec instead of the current one")
	cmd.Flags().StringVar(&opts.Revision, "revision", "", "Diff against this commit or version=VERSION")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "Print change counts only")
	return cmd
}
