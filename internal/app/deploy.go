package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

func (tx DeployTransaction) touchesOverrides() bool {
	return tx.Flags.NoOverrides ||
		len(tx.OverrideRemove) > 0 ||
		len(tx.OverrideReplace) > 0 ||
		len(tx.OverrideReplaceLocal) > 0 ||
		len(tx.OverrideReset) > 0
}

func (tx DeployTransaction) validate() error {
	if tx.Flags.NoOverrides && (len(tx.OverrideRemove) > 0 ||
		len(tx.OverrideReplace) > 0 ||
		len(tx.OverrideReplaceLocal) > 0 ||
		len(tx.OverrideReset) > 0) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("cannot reset all overrides and change overrides in one request")
	}
	if tx.Flags.DryRun && tx.Flags.DownloadOnly {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("dry-run and download-only are mutually exclusive")
	}
	return nil
}

func (tx DeployTransaction) upgraderFlags() types.UpgraderFlags {
	return types.UpgraderFlags{
		AllowOlder:         tx.Flags.AllowDowngrade,
		DryRun:             tx.Flags.DryRun,
		SyntheticPull:      tx.Flags.CacheOnly,
		PkgcacheOnly:       tx.Flags.CacheOnly,
		IgnoreUnconfigured: tx.Refspec != "",
	}
}

func (s *Service) executeDeploy(ctx context.Context, tx DeployTransaction, sink ports.ProgressSink) (Result, error) {
	if err := tx.validate(); err != nil {
		return Result{}, err
	}
	osname, err := s.osname(tx.OSName)
	if err != nil {
		return Result{}, err
	}
	flags := tx.upgraderFlags()
	upgrader, err := core.NewSysrootUpgrader(ctx, s.upgraderPorts(), osname, flags)
	if err != nil {
		return Result{}, err
	}
	origin := upgrader.Origin()

	var oldRefspec types.Refspec
	if tx.Refspec != "" {
		change, err := core.ChangeRefspec(origin.Refspec, tx.Refspec)
		if err != nil {
			return Result{}, err
		}
		if change.SwitchingRemoteOnly() {
			sink.Message(change.Notice())
		}
		oldRefspec = change.Old
		origin = origin.WithRebase(change.New)
	}
	if tx.Revision != "" {
		origin, err = s.applyRevision(ctx, origin, tx.Revision, sink)
		if err != nil {
			return Result{}, err
		}
	} else {
		origin = origin.WithoutPinnedCommit()
	}

	title := core.NewTitle(core.DeployTitleKind(tx.Refspec, tx.Revision, tx.Flags.NoPullBase, !tx.touchesOverrides()))
	changed := false

	if len(tx.UninstallPackages) > 0 {
		origin, err = origin.RemovePackages(tx.UninstallPackages)
		if err != nil {
			return Result{}, err
		}
		changed = true
		title.Count("uninstall", len(tx.UninstallPackages))
	}
	if len(tx.InstallPackages) > 0 {
		origin, err = origin.AddPackages(tx.InstallPackages)
		if err != nil {
			return Result{}, err
		}
		changed = true
		title.Count("install", len(tx.InstallPackages))
	}
	if len(tx.InstallLocal) > 0 {
		if !flags.DryRun {
			imported, err := s.importLocal(ctx, tx.InstallLocal)
			if err != nil {
				return Result{}, err
			}
			origin, err = origin.AddLocalPackages(imported)
			if err != nil {
				return Result{}, err
			}
		}
		changed = true
		title.Count("localinstall", len(tx.InstallLocal))
	}

	if tx.Flags.NoOverrides {
		var overridesChanged bool
		origin, overridesChanged = origin.RemoveAllOverrides()
		changed = changed || overridesChanged
	} else if len(tx.OverrideReset) > 0 {
		origin, err = core.ResetOverrides(ctx, origin, upgrader.MergeDeployment().Layering, tx.OverrideReset)
		if err != nil {
			return Result{}, err
		}
		changed = true
	}
	if len(tx.OverrideReplaceLocal) > 0 {
		if !flags.DryRun {
			imported, err := s.importLocal(ctx, tx.OverrideReplaceLocal)
			if err != nil {
				return Result{}, err
			}
			overrides := make([]types.Override, 0, len(imported))
			for _, pkg := range imported {
				overrides = append(overrides, types.ReplaceLocalOverride(pkg))
			}
			origin, err = origin.AddOverrides(overrides)
			if err != nil {
				return Result{}, err
			}
		}
		changed = true
	}
	if len(tx.OverrideReplace) > 0 {
		overrides, err := core.ResolveReplacements(ctx, s.Resolver, tx.OverrideReplace)
		if err != nil {
			return Result{}, err
		}
		origin, err = origin.AddOverrides(overrides)
		if err != nil {
			return Result{}, err
		}
		changed = true
	}

	result := Result{Title: title.String()}
	sink.Title(result.Title)
	upgrader.SetOrigin(origin)

	if !tx.Flags.NoPullBase && !flags.DryRun {
		baseChanged, err := upgrader.PullBase(ctx, sink)
		if err != nil {
			return Result{}, err
		}
		changed = changed || baseChanged
	}

	if len(tx.OverrideRemove) > 0 {
		removals, err := core.ResolveRemovals(ctx, s.Resolver, upgrader.Base(), tx.OverrideRemove)
		if err != nil {
			return Result{}, err
		}
		origin, err = origin.AddOverrides(removals)
		if err != nil {
			return Result{}, err
		}
		upgrader.SetOrigin(origin)
		changed = true
	}

	if err := s.refreshForLayering(ctx, origin, osname, flags); err != nil {
		return Result{}, err
	}
	_, layeringChanged, err := upgrader.PrepLayering(ctx)
	if err != nil {
		return Result{}, err
	}
	changed = changed || layeringChanged
	result.Changed = changed

	if flags.DryRun {
		log.Ctx(ctx).Debug().Bool("changed", changed).Msg("dry run, not deploying")
		return result, nil
	}

	if layeringChanged {
		if err := upgrader.ImportPackages(ctx); err != nil {
			return Result{}, err
		}
	}
	sink.ProgressEnd()

	if !changed && tx.Refspec == "" {
		if tx.Revision == "" {
			sink.Message("No upgrade available.")
		} else {
			sink.Message("No change.")
		}
		return result, nil
	}
	if tx.Flags.DownloadOnly {
		if changed {
			sink.Message("Update downloaded.")
		} else {
			sink.Message("No changes.")
		}
		return result, nil
	}

	deployment, err := upgrader.Deploy(ctx)
	if err != nil {
		return Result{}, err
	}
	result.Deployed = true
	result.Deployment = &deployment

	if tx.Refspec != "" && !tx.Flags.SkipPurge {
		// The rebase already succeeded; the old ref may not even exist.
		if err := s.Store.SetRef(ctx, oldRefspec, ""); err != nil {
			log.Ctx(ctx).Debug().Err(err).Str("refspec", oldRefspec.String()).Msg("old ref not purged")
		}
	}
	if tx.Flags.Reboot {
		s.reboot(ctx, sink, &result)
	}
	return result, nil
}

// applyRevision pins the origin to the commit a revision names, checked
// against the origin's refspec.
func (s *Service) applyRevision(ctx context.Context, origin types.Origin, revision string, sink ports.ProgressSink) (types.Origin, error) {
	checksum, version, err := core.ParseRevision(revision)
	if err != nil {
		return types.Origin{}, err
	}
	if version != "" {
		sink.Message(fmt.Sprintf("Resolving version '%s'", version))
		checksum, err = s.Store.ResolveVersion(ctx, origin.Refspec, version)
		if err != nil {
			return types.Origin{}, err
		}
	} else {
		sink.Message(fmt.Sprintf("Validating checksum '%s'", checksum))
		found, err := s.Store.HasCommit(ctx, origin.Refspec, checksum)
		if err != nil {
			return types.Origin{}, err
		}
		if !found {
			return types.Origin{}, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("checksum %s not found in %s", checksum, origin.Refspec.String()))
		}
	}
	return origin.WithPinnedCommit(checksum, version), nil
}

func (s *Service) importLocal(ctx context.Context, archives []*types.PackageArchive) ([]types.ImportedPackage, error) {
	importer := core.NewLocalPackageImporter(s.Store, s.Importer, s.ImportPolicy)
	imported, err := importer.Import(ctx, archives)
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordImportedPackages(len(imported))
	return imported, nil
}

// refreshForLayering brings repository metadata up to date when the
// origin asks for repository packages, unless the request is cache-only.
func (s *Service) refreshForLayering(ctx context.Context, origin types.Origin, osname string, flags types.UpgraderFlags) error {
	if flags.PkgcacheOnly || flags.DryRun || s.RepoMetadata == nil || !needsRepos(origin) {
		return nil
	}
	_, err := s.RepoMetadata.Refresh(ctx, ports.RefreshMetadataOptions{OSName: osname})
	return err
}

func needsRepos(origin types.Origin) bool {
	if len(origin.Packages) > 0 {
		return true
	}
	for _, override := range origin.Overrides {
		if override.Kind == types.OverrideKindReplaceRemote {
			return true
		}
	}
	return false
}
