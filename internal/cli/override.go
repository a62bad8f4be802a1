package cli

import (
	"github.com/spf13/cobra"

	"sysroot-txn/internal/app"
)

func newOverrideCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manage base package overrides",
	}
	cmd.AddCommand(newOverrideRemoveCommand())
	cmd.AddCommand(newOverrideReplaceCommand())
	cmd.AddCommand(newOverrideResetCommand())
	return cmd
}

func newOverrideRemoveCommand() *cobra.Command {
	opts := deployOptions{}
	cmd := &cobra.Command{
		Use:   "remove PACKAGE...",
		Short: "Remove packages from the base layer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := opts.flags(cmd)
			flags.NoPullBase = true
			return runDeployTransaction(cmd, app.DeployTransaction{OverrideRemove: args, Flags: flags}, nil)
		},
	}
	opts.bindCommon(cmd)
	return cmd
}

func newOverrideReplaceCommand() *cobra.Command {
	opts := deployOptions{}
	cmd := &cobra.Command{
		Use:   "replace PACKAGE...",
		Short: "Replace packages in the base layer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, archives, err := splitLocalPackages(args)
			if err != nil {
				return err
			}
			flags := opts.flags(cmd)
			flags.NoPullBase = true
			return runDeployTransaction(cmd, app.DeployTransaction{
				OverrideReplace:      names,
				OverrideReplaceLocal: archives,
				Flags:                flags,
			}, archives)
		},
	}
	opts.bindCommon(cmd)
	return cmd
}

func newOverrideResetCommand() *cobra.Command {
	opts := deployOptions{}
	var all bool
	cmd := &cobra.Command{
		Use:   "reset [PACKAGE...]",
		Short: "Reset currently active package overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := opts.flags(cmd)
			flags.NoPullBase = true
			flags.NoOverrides = all
			return runDeployTransaction(cmd, app.DeployTransaction{OverrideReset: args, Flags: flags}, nil)
		},
	}
	opts.bindCommon(cmd)
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Reset all active overrides")
	return cmd
}
