package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sysroot-txn/internal/app"
	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

// localPackageSuffix marks install arguments that name a package archive
// on disk rather than a repository package.
const localPackageSuffix = ".pkg"

type deployOptions struct {
	Reboot         bool
	DryRun         bool
	DownloadOnly   bool
	CacheOnly      bool
	AllowDowngrade bool
	SkipPurge      bool
	Install        []string
	Uninstall      []string
}

func (o *deployOptions) bindCommon(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.Reboot, "reboot", "r", false, "Initiate a reboot after the operation is complete")
	cmd.Flags().BoolVarP(&o.DryRun, "dry-run", "n", false, "Exit after printing the transaction")
	cmd.Flags().BoolVarP(&o.CacheOnly, "cache-only", "C", false, "Do not download latest base and metadata")
}

func (o *deployOptions) bindPull(cmd *cobra.Command) {
	o.bindCommon(cmd)
	cmd.Flags().BoolVar(&o.DownloadOnly, "download-only", false, "Download the update without deploying it")
	cmd.Flags().BoolVar(&o.AllowDowngrade, "allow-downgrade", false, "Permit deployment of an older base")
}

func (o deployOptions) flags(cmd *cobra.Command) types.DeployFlags {
	return types.DeployFlags{
		AllowDowngrade: o.AllowDowngrade,
		DryRun:         o.DryRun,
		CacheOnly:      resolveBool(cmd, o.CacheOnly, "cache_only", "cache-only"),
		DownloadOnly:   o.DownloadOnly,
		SkipPurge:      o.SkipPurge,
		Reboot:         resolveBool(cmd, o.Reboot, "auto_reboot", "reboot"),
	}
}

func newUpgradeCommand() *cobra.Command {
	opts := deployOptions{}
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Pull the latest base and deploy it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, app.DeployTransaction{Flags: opts.flags(cmd)}, opts)
		},
	}
	opts.bindPull(cmd)
	cmd.Flags().StringSliceVar(&opts.Install, "install", nil, "Also layer these packages")
	cmd.Flags().StringSliceVar(&opts.Uninstall, "uninstall", nil, "Also remove these layered packages")
	return cmd
}

func newRebaseCommand() *cobra.Command {
	opts := deployOptions{}
	cmd := &cobra.Command{
		Use:   "rebase REFSPEC [REVISION]",
		Short: "Switch to a different base refspec",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx := app.DeployTransaction{Refspec: args[0], Flags: opts.flags(cmd)}
			if len(args) > 1 {
				tx.Revision = args[1]
			}
			return runDeploy(cmd, tx, opts)
		},
	}
	opts.bindPull(cmd)
	cmd.Flags().BoolVar(&opts.SkipPurge, "skip-purge", false, "Keep the previous refspec in the content store")
	cmd.Flags().StringSliceVar(&opts.Install, "install", nil, "Also layer these packages")
	cmd.Flags().StringSliceVar(&opts.Uninstall, "uninstall", nil, "Also remove these layered packages")
	return cmd
}

func newDeployCommand() *cobra.Command {
	opts := deployOptions{}
	cmd := &cobra.Command{
		Use:   "deploy REVISION",
		Short: "Deploy a specific commit or version of the current refspec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, app.DeployTransaction{Revision: args[0], Flags: opts.flags(cmd)}, opts)
		},
	}
	opts.bindPull(cmd)
	return cmd
}

func newInstallCommand() *cobra.Command {
	opts := deployOptions{}
	cmd := &cobra.Command{
		Use:   "install PACKAGE...",
		Short: "Layer additional packages on the current deployment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Install = args
			flags := opts.flags(cmd)
			flags.NoPullBase = true
			return runDeploy(cmd, app.DeployTransaction{Flags: flags}, opts)
		},
	}
	opts.bindCommon(cmd)
	cmd.Flags().StringSliceVar(&opts.Uninstall, "uninstall", nil, "Also remove these layered packages")
	return cmd
}

func newUninstallCommand() *cobra.Command {
	opts := deployOptions{}
	cmd := &cobra.Command{
		Use:   "uninstall PACKAGE...",
		Short: "Remove layered packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Uninstall = args
			flags := opts.flags(cmd)
			flags.NoPullBase = true
			return runDeploy(cmd, app.DeployTransaction{Flags: flags}, opts)
		},
	}
	opts.bindCommon(cmd)
	cmd.Flags().StringSliceVar(&opts.Install, "install", nil, "Also layer these packages")
	return cmd
}

func runDeploy(cmd *cobra.Command, tx app.DeployTransaction, opts deployOptions) error {
	names, archives, err := splitLocalPackages(opts.Install)
	if err != nil {
		return err
	}
	tx.InstallPackages = names
	tx.InstallLocal = archives
	tx.UninstallPackages = opts.Uninstall
	return runDeployTransaction(cmd, tx, archives)
}

func runDeployTransaction(cmd *cobra.Command, tx app.DeployTransaction, archives []*types.PackageArchive) error {
	result, err := runTransaction(cmd, func(ctx context.Context, service *app.Service, sink ports.ProgressSink) (app.Result, error) {
		return service.Deploy(ctx, tx, sink)
	})
	if err != nil {
		closeArchives(archives)
		return err
	}
	printResult(cmd, result, tx.Flags.Reboot)
	return nil
}

// splitLocalPackages separates repository package names from package
// archives on disk. Archives are opened here and owned by the
// transaction from then on.
func splitLocalPackages(args []string) ([]string, []*types.PackageArchive, error) {
	var names []string
	var archives []*types.PackageArchive
	for _, arg := range args {
		if !strings.HasSuffix(arg, localPackageSuffix) {
			names = append(names, arg)
			continue
		}
		archive, err := types.OpenPackageArchive(arg)
		if err != nil {
			closeArchives(archives)
			return nil, nil, err
		}
		archives = append(archives, archive)
	}
	return names, archives, nil
}

// closeArchives releases archives a transaction never got to run with.
func closeArchives(archives []*types.PackageArchive) {
	for _, archive := range archives {
		_ = archive.Close()
	}
}

// printResult reports a committed deployment. A requested reboot has
// either started or been reported as failed through the sink already.
func printResult(cmd *cobra.Command, result app.Result, reboot bool) {
	if !result.Deployed || result.Deployment == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "deployed: %s %s\n", result.Deployment.Origin.Refspec.String(), core.ShortChecksum(result.Deployment.Checksum))
	if !reboot {
		fmt.Fprintln(out, "Run \"systemctl reboot\" to start a reboot")
	}
}
