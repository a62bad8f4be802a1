package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

// UpgraderPorts are the collaborators a SysrootUpgrader works against.
type UpgraderPorts struct {
	Store    ports.ContentStorePort
	Sysroot  ports.SysrootPort
	Resolver ports.PackageResolverPort
	Now      func() time.Time
}

// LayeringPlan is the package set a deployment will carry on top of its
// base commit.
type LayeringPlan struct {
	Type   types.LayeringType
	Commit types.Commit
}

// SysrootUpgrader builds one new deployment for an OS from the merge
// deployment's origin. It is single-use.
type SysrootUpgrader struct {
	ports       UpgraderPorts
	osname      string
	flags       types.UpgraderFlags
	deployments []types.Deployment
	booted      *types.Deployment
	merge       types.Deployment
	origin      types.Origin
	base        string
	plan        *LayeringPlan
	imported    bool
}

func NewSysrootUpgrader(ctx context.Context, p UpgraderPorts, osname string, flags types.UpgraderFlags) (*SysrootUpgrader, error) {
	if p.Now == nil {
		p.Now = time.Now
	}
	deployments, err := p.Sysroot.Deployments(ctx)
	if err != nil {
		return nil, err
	}
	booted, err := p.Sysroot.BootedDeployment(ctx)
	if err != nil {
		return nil, err
	}
	merge, err := MergeDeployment(deployments, booted, osname)
	if err != nil {
		return nil, err
	}
	if merge.Origin.Unconfigured != "" && !flags.IgnoreUnconfigured {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("origin is unconfigured: %s", merge.Origin.Unconfigured))
	}
	log.Ctx(ctx).Debug().
		Str("osname", osname).
		Str("merge", merge.ID()).
		Msg("upgrader initialised")
	return &SysrootUpgrader{
		ports:       p,
		osname:      osname,
		flags:       flags,
		deployments: deployments,
		booted:      booted,
		merge:       merge,
		origin:      merge.Origin.Clone(),
		base:        merge.BaseChecksum(),
	}, nil
}

// MergeDeployment picks the deployment new ones are derived from: the
// booted deployment when it belongs to osname, else the first of osname.
func MergeDeployment(deployments []types.Deployment, booted *types.Deployment, osname string) (types.Deployment, error) {
	if booted != nil && booted.OSName == osname {
		for _, deployment := range deployments {
			if deployment.Equal(*booted) {
				return deployment, nil
			}
		}
	}
	for _, deployment := range deployments {
		if deployment.OSName == osname {
			return deployment, nil
		}
	}
	return types.Deployment{}, errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("no deployments found for os '%s'", osname))
}

// Origin returns a copy of the origin the next deployment will carry.
func (u *SysrootUpgrader) Origin() types.Origin {
	return u.origin.Clone()
}

func (u *SysrootUpgrader) SetOrigin(origin types.Origin) {
	u.origin = origin.Clone()
	u.plan = nil
}

func (u *SysrootUpgrader) MergeDeployment() types.Deployment {
	return u.merge
}

func (u *SysrootUpgrader) Booted() *types.Deployment {
	return u.booted
}

func (u *SysrootUpgrader) Deployments() []types.Deployment {
	return slices.Clone(u.deployments)
}

// Base is the base commit the next deployment will be layered on.
func (u *SysrootUpgrader) Base() string {
	return u.base
}

// PullBase fetches the origin's refspec, or its pinned commit, and makes
// it the new base. It reports whether the base moved.
func (u *SysrootUpgrader) PullBase(ctx context.Context, progress ports.ProgressSink) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	refspec := u.origin.Refspec
	assert.NotEmpty(ctx, refspec.Branch, "origin refspec must have a branch")

	target := ""
	if u.origin.Pinned != nil {
		target = u.origin.Pinned.Checksum
	}
	result, err := u.ports.Store.Pull(ctx, refspec, types.PullOptions{
		Synthetic:    u.flags.SyntheticPull,
		TargetCommit: target,
	}, progress)
	if err != nil {
		return false, err
	}

	previous := u.merge.BaseChecksum()
	if result.Commit == previous {
		u.base = previous
		return false, nil
	}
	if !u.flags.AllowOlder && target == "" && refspec == u.merge.Origin.Refspec {
		if err := u.checkNotOlder(ctx, previous, result.Commit); err != nil {
			return false, err
		}
	}
	log.Ctx(ctx).Debug().
		Str("refspec", refspec.String()).
		Str("from", ShortChecksum(previous)).
		Str("to", ShortChecksum(result.Commit)).
		Msg("base pulled")
	u.base = result.Commit
	u.plan = nil
	return true, nil
}

func (u *SysrootUpgrader) checkNotOlder(ctx context.Context, previous string, next string) error {
	prevCommit, err := u.ports.Store.ReadCommit(ctx, previous)
	if err != nil {
		// The old base may already have been pruned.
		log.Ctx(ctx).Debug().Err(err).Str("commit", previous).Msg("skipping downgrade check")
		return nil
	}
	nextCommit, err := u.ports.Store.ReadCommit(ctx, next)
	if err != nil {
		return err
	}
	older := false
	if prevCommit.Version != "" && nextCommit.Version != "" {
		older = CompareVersions(nextCommit.Version, prevCommit.Version) < 0
	} else {
		older = nextCommit.Timestamp.Before(prevCommit.Timestamp)
	}
	if older {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("upgrade target commit %s is older than current base %s", ShortChecksum(next), ShortChecksum(previous)))
	}
	return nil
}

// PrepLayering computes the package set of the next deployment. The
// boolean reports whether the resulting tree differs from the merge
// deployment.
func (u *SysrootUpgrader) PrepLayering(ctx context.Context) (types.LayeringType, bool, error) {
	baseCommit, err := u.ports.Store.ReadCommit(ctx, u.base)
	if err != nil {
		return "", false, err
	}
	if !u.origin.HasLayering() {
		u.plan = &LayeringPlan{Type: types.LayeringTypeNone, Commit: baseCommit}
		return types.LayeringTypeNone, baseCommit.Checksum != u.merge.Checksum, nil
	}

	packages := slices.Clone(baseCommit.Packages)
	layering := types.LayeringInfo{IsLayered: true, BaseCommit: baseCommit.Checksum}
	layeringType := types.LayeringTypeLocal

	indexOf := func(name string) int {
		return slices.IndexFunc(packages, func(pkg types.Nevra) bool { return pkg.Name == name })
	}

	for _, override := range u.origin.Overrides {
		switch override.Kind {
		case types.OverrideKindRemove:
			idx := indexOf(override.Name)
			if idx < 0 {
				return "", false, errbuilder.New().
					WithCode(errbuilder.CodeNotFound).
					WithMsg(fmt.Sprintf("override remove: package '%s' not in base commit %s", override.Name, ShortChecksum(baseCommit.Checksum)))
			}
			layering.RemovedBasePackages = append(layering.RemovedBasePackages, packages[idx])
			packages = slices.Delete(packages, idx, idx+1)
		case types.OverrideKindReplaceLocal, types.OverrideKindReplaceRemote:
			replacement, err := types.ParseNevra(override.Nevra)
			if err != nil {
				return "", false, err
			}
			if override.Kind == types.OverrideKindReplaceRemote {
				layeringType = types.LayeringTypeRepos
				if err := u.requireAvailable(ctx, replacement); err != nil {
					return "", false, err
				}
			} else {
				layering.LocalPackages = append(layering.LocalPackages, types.ImportedPackage{
					HeaderSHA256: override.ContentID,
					Nevra:        override.Nevra,
				}.Record())
			}
			idx := indexOf(replacement.Name)
			if idx < 0 {
				return "", false, errbuilder.New().
					WithCode(errbuilder.CodeNotFound).
					WithMsg(fmt.Sprintf("override replace: package '%s' not in base commit %s", replacement.Name, ShortChecksum(baseCommit.Checksum)))
			}
			layering.ReplacedBasePackages = append(layering.ReplacedBasePackages, types.NevraReplacement{Old: packages[idx], New: replacement})
			packages[idx] = replacement
		}
	}

	for _, name := range u.origin.Packages {
		layeringType = types.LayeringTypeRepos
		if indexOf(name) >= 0 {
			return "", false, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("package '%s' is already provided by base commit %s", name, ShortChecksum(baseCommit.Checksum)))
		}
		pkg, err := u.resolveRequested(ctx, name)
		if err != nil {
			return "", false, err
		}
		packages = append(packages, pkg)
		layering.LayeredPackages = append(layering.LayeredPackages, pkg.String())
	}

	for _, record := range u.origin.LocalPackages {
		imported, err := types.ParsePackageRecord(record)
		if err != nil {
			return "", false, err
		}
		pkg, err := types.ParseNevra(imported.Nevra)
		if err != nil {
			return "", false, err
		}
		packages = append(packages, pkg)
		layering.LayeredPackages = append(layering.LayeredPackages, pkg.String())
		layering.LocalPackages = append(layering.LocalPackages, record)
	}

	if u.origin.Initramfs.Regenerate {
		layering.LayeredPackages = append(layering.LayeredPackages, initramfsMarker(u.origin.Initramfs.Args))
	}

	commit := types.Commit{
		Parent:    baseCommit.Checksum,
		Version:   baseCommit.Version,
		Timestamp: u.ports.Now().UTC(),
		Packages:  packages,
		Layering:  &layering,
	}
	commit.Checksum = commit.ContentChecksum()
	u.plan = &LayeringPlan{Type: layeringType, Commit: commit}
	u.imported = false
	return layeringType, commit.Checksum != u.merge.Checksum, nil
}

func initramfsMarker(args []string) string {
	marker := "initramfs"
	for _, arg := range args {
		marker += " " + arg
	}
	return marker
}

func (u *SysrootUpgrader) requireAvailable(ctx context.Context, nevra types.Nevra) error {
	matches, err := u.ports.Resolver.QueryAvailable(ctx, nevra.String())
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("package '%s' is not available from any repository", nevra.String()))
	}
	return nil
}

func (u *SysrootUpgrader) resolveRequested(ctx context.Context, name string) (types.Nevra, error) {
	matches, err := u.ports.Resolver.QueryAvailable(ctx, name)
	if err != nil {
		return types.Nevra{}, err
	}
	newest := NewestByName(matches)
	switch len(newest) {
	case 0:
		return types.Nevra{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("packages not found: %s", name))
	case 1:
		return newest[0], nil
	default:
		return types.Nevra{}, ambiguousMatches(name, newest)
	}
}

func ambiguousMatches(pattern string, matches []types.Nevra) error {
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, match.String())
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("multiple packages match \"%s\": %s", pattern, strings.Join(names, ", ")))
}

// ImportPackages writes the layered commit planned by PrepLayering.
func (u *SysrootUpgrader) ImportPackages(ctx context.Context) error {
	if u.flags.DryRun {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot import packages in dry-run mode")
	}
	if u.plan == nil {
		if _, _, err := u.PrepLayering(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.plan.Type == types.LayeringTypeNone || u.imported {
		return nil
	}
	checksum, err := u.ports.Store.WriteCommit(ctx, u.plan.Commit)
	if err != nil {
		return err
	}
	u.plan.Commit.Checksum = checksum
	u.imported = true
	log.Ctx(ctx).Debug().Str("commit", ShortChecksum(checksum)).Msg("layered commit written")
	return nil
}

// Deploy writes a new deployment at the head of the boot order.
func (u *SysrootUpgrader) Deploy(ctx context.Context) (types.Deployment, error) {
	if u.flags.DryRun {
		return types.Deployment{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot deploy in dry-run mode")
	}
	if err := u.ImportPackages(ctx); err != nil {
		return types.Deployment{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Deployment{}, err
	}

	commit := u.plan.Commit
	layering := types.LayeringInfo{}
	if commit.Layering != nil {
		layering = *commit.Layering
	}
	kargs := u.origin.KernelArgs
	if kargs == nil {
		kargs = u.merge.KernelArgs
	}
	deployment := types.Deployment{
		OSName:     u.osname,
		Checksum:   commit.Checksum,
		Serial:     u.nextSerial(commit.Checksum),
		KernelArgs: slices.Clone(kargs),
		Layering:   layering,
		Origin:     u.origin.WithKernelArgs(kargs),
	}

	list := []types.Deployment{deployment}
	for _, existing := range u.deployments {
		switch {
		case existing.OSName != u.osname:
		case u.booted != nil && existing.Equal(*u.booted):
		case existing.Equal(u.merge):
		default:
			continue
		}
		list = append(list, existing)
	}
	if err := u.ports.Sysroot.WriteDeployments(ctx, list, types.WriteDeploymentsOptions{}); err != nil {
		return types.Deployment{}, err
	}
	u.deployments = list
	log.Ctx(ctx).Debug().Str("deployment", deployment.ID()).Msg("deployment written")
	return deployment, nil
}

// DeploySetKernelArgs deploys the current origin with a new kernel
// command line.
func (u *SysrootUpgrader) DeploySetKernelArgs(ctx context.Context, args []string) (types.Deployment, error) {
	u.origin = u.origin.WithKernelArgs(args)
	if u.origin.KernelArgs == nil {
		u.origin.KernelArgs = []string{}
	}
	return u.Deploy(ctx)
}

func (u *SysrootUpgrader) nextSerial(checksum string) int {
	serial := 0
	for _, existing := range u.deployments {
		if existing.Checksum == checksum && existing.Serial >= serial {
			serial = existing.Serial + 1
		}
	}
	return serial
}
