package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"

	"sysroot-txn/internal/app"
	"sysroot-txn/internal/ports"
)

type initramfsOptions struct {
	Enable  bool
	Disable bool
	Args    []string
	Reboot  bool
}

func newInitramfsCommand() *cobra.Command {
	opts := initramfsOptions{}
	cmd := &cobra.Command{
		Use:   "initramfs",
		Short: "Enable or disable local initramfs regeneration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Enable && opts.Disable {
				return errbuilder.New().
					WithCode(errbuilder.CodeInvalidArgument).
					WithMsg("cannot specify both --enable and --disable")
			}
			if !opts.Enable && !opts.Disable {
				if len(opts.Args) > 0 {
					return errbuilder.New().
						WithCode(errbuilder.CodeInvalidArgument).
						WithMsg("--arg requires --enable")
				}
				return printInitramfsState(cmd)
			}
			if opts.Disable && len(opts.Args) > 0 {
				return errbuilder.New().
					WithCode(errbuilder.CodeInvalidArgument).
					WithMsg("cannot pass --arg with --disable")
			}
			reboot := resolveBool(cmd, opts.Reboot, "auto_reboot", "reboot")
			args := resolveStrings(cmd, opts.Args, "initramfs_args", "arg")
			if opts.Disable {
				args = nil
			}
			result, err := runTransaction(cmd, func(ctx context.Context, service *app.Service, sink ports.ProgressSink) (app.Result, error) {
				return service.SetInitramfsState(ctx, app.InitramfsStateTransaction{
					Regenerate: opts.Enable,
					Args:       args,
					Reboot:     reboot,
				}, sink)
			})
			if err != nil {
				return err
			}
			printResult(cmd, result, reboot)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Enable, "enable", false, "Enable regenerating initramfs locally")
	cmd.Flags().BoolVar(&opts.Disable, "disable", false, "Disable regenerating initramfs locally")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "Append custom argument to the initramfs generator")
	cmd.Flags().BoolVarP(&opts.Reboot, "reboot", "r", false, "Initiate a reboot after the operation is complete")
	return cmd
}

func printInitramfsState(cmd *cobra.Command) error {
	status, err := readStatus(cmd)
	if err != nil {
		return err
	}
	if status.Merge == nil {
		return errNoDeployment()
	}
	initramfs := status.Merge.Origin.Initramfs
	state := "disabled"
	if initramfs.Regenerate {
		state = "enabled"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initramfs regeneration: %s\n", state)
	if len(initramfs.Args) > 0 {
		fmt.Fprintf(out, "Initramfs args: %s\n", strings.Join(initramfs.Args, " "))
	}
	return nil
}
