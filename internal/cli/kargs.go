package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sysroot-txn/internal/app"
	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
)

type kargsOptions struct {
	Append  []string
	Replace []string
	Delete  []string
	Reboot  bool
}

func (o kargsOptions) edits() bool {
	return len(o.Append) > 0 || len(o.Replace) > 0 || len(o.Delete) > 0
}

func newKargsCommand() *cobra.Command {
	opts := kargsOptions{}
	cmd := &cobra.Command{
		Use:   "kargs",
		Short: "Query or modify kernel arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !opts.edits() {
				return printKernelArgs(cmd)
			}
			reboot := resolveBool(cmd, opts.Reboot, "auto_reboot", "reboot")
			result, err := runTransaction(cmd, func(ctx context.Context, service *app.Service, sink ports.ProgressSink) (app.Result, error) {
				return service.KernelArgs(ctx, app.KernelArgTransaction{
					Append:  opts.Append,
					Replace: opts.Replace,
					Delete:  opts.Delete,
					Reboot:  reboot,
				}, sink)
			})
			if err != nil {
				return err
			}
			printResult(cmd, result, reboot)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&opts.Append, "append", nil, "Append kernel argument KEY=VALUE")
	cmd.Flags().StringArrayVar(&opts.Replace, "replace", nil, "Replace existing kernel argument KEY=VALUE or KEY=OLD=NEW")
	cmd.Flags().StringArrayVar(&opts.Delete, "delete", nil, "Delete kernel argument KEY=VALUE or KEY")
	cmd.Flags().BoolVarP(&opts.Reboot, "reboot", "r", false, "Initiate a reboot after the operation is complete")
	return cmd
}

func printKernelArgs(cmd *cobra.Command) error {
	status, err := readStatus(cmd)
	if err != nil {
		return err
	}
	if status.Merge == nil {
		return errNoDeployment()
	}
	fmt.Fprintln(cmd.OutOrStdout(), core.NewKernelArgs(status.Merge.KernelArgs).String())
	return nil
}
