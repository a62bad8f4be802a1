package core

import (
	"context"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"sysroot-txn/internal/types"
)

type upgraderFixture struct {
	store    *fakeStore
	sysroot  *fakeSysroot
	resolver fakeResolver
	base     types.Commit
	next     types.Commit
	booted   types.Deployment
	refspec  types.Refspec
}

func newUpgraderFixture(t *testing.T) *upgraderFixture {
	t.Helper()
	store := newFakeStore()
	refspec := types.Refspec{Remote: "fedora", Branch: "stable"}
	base := store.addCommit(types.Commit{
		Version:   "39.20240101.0",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Packages: []types.Nevra{
			mustNevra("bash-5.2.15-3.x86_64"),
			mustNevra("nano-7.2-5.x86_64"),
			mustNevra("kernel-6.7.0-200.x86_64"),
		},
	})
	next := store.addCommit(types.Commit{
		Parent:    base.Checksum,
		Version:   "39.20240201.0",
		Timestamp: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Packages: []types.Nevra{
			mustNevra("bash-5.2.26-1.x86_64"),
			mustNevra("nano-7.2-5.x86_64"),
			mustNevra("kernel-6.7.4-200.x86_64"),
		},
	})
	store.refs[refspec.String()] = base.Checksum
	booted := types.Deployment{
		OSName:     "fedora",
		Checksum:   base.Checksum,
		KernelArgs: []string{"quiet"},
		Origin:     types.Origin{Refspec: refspec},
	}
	sysroot := &fakeSysroot{
		deployments: []types.Deployment{
			booted,
			{OSName: "fedora", Checksum: "0ld", Origin: types.Origin{Refspec: refspec}},
			{OSName: "other", Checksum: "0th", Origin: types.Origin{Refspec: types.Refspec{Branch: "x"}}},
		},
		booted: &booted,
	}
	return &upgraderFixture{
		store:    store,
		sysroot:  sysroot,
		resolver: fakeResolver{store: store, available: []types.Nevra{mustNevra("htop-3.3.0-1.x86_64")}},
		base:     base,
		next:     next,
		booted:   booted,
		refspec:  refspec,
	}
}

func (f *upgraderFixture) upgrader(t *testing.T, flags types.UpgraderFlags) *SysrootUpgrader {
	t.Helper()
	u, err := NewSysrootUpgrader(t.Context(), UpgraderPorts{
		Store:    f.store,
		Sysroot:  f.sysroot,
		Resolver: f.resolver,
		Now:      func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
	}, "fedora", flags)
	require.NoError(t, err)
	return u
}

func TestMergeDeployment(t *testing.T) {
	booted := dep("os", "b")
	list := []types.Deployment{dep("other", "x"), dep("os", "a"), booted}

	got, err := MergeDeployment(list, &booted, "os")
	require.NoError(t, err)
	require.Equal(t, "b", got.Checksum)

	got, err = MergeDeployment(list, &booted, "other")
	require.NoError(t, err)
	require.Equal(t, "x", got.Checksum)

	_, err = MergeDeployment(list, &booted, "missing")
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}

func TestSysrootUpgraderRefusesUnconfiguredOrigin(t *testing.T) {
	f := newUpgraderFixture(t)
	f.sysroot.deployments[0].Origin.Unconfigured = "rebase to a supported branch"

	_, err := NewSysrootUpgrader(t.Context(), UpgraderPorts{Store: f.store, Sysroot: f.sysroot, Resolver: f.resolver}, "fedora", types.UpgraderFlags{})
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))

	_, err = NewSysrootUpgrader(t.Context(), UpgraderPorts{Store: f.store, Sysroot: f.sysroot, Resolver: f.resolver}, "fedora", types.UpgraderFlags{IgnoreUnconfigured: true})
	require.NoError(t, err)
}

func TestSysrootUpgraderPullAndDeploy(t *testing.T) {
	f := newUpgraderFixture(t)
	f.store.pullTo[f.refspec.String()] = f.next.Checksum
	u := f.upgrader(t, types.UpgraderFlags{})

	changed, err := u.PullBase(t.Context(), nil)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, f.next.Checksum, u.Base())

	layeringType, changed, err := u.PrepLayering(t.Context())
	require.NoError(t, err)
	require.Equal(t, types.LayeringTypeNone, layeringType)
	require.True(t, changed)

	deployment, err := u.Deploy(t.Context())
	require.NoError(t, err)
	require.Equal(t, f.next.Checksum, deployment.Checksum)
	require.Equal(t, []string{"quiet"}, deployment.KernelArgs)
	require.False(t, deployment.Layering.IsLayered)

	require.Len(t, f.sysroot.writes, 1)
	if diff := cmp.Diff([]string{"fedora/" + f.next.Checksum, "fedora/" + f.base.Checksum, "other/0th"}, ids(f.sysroot.writes[0])); diff != "" {
		t.Fatalf("unexpected deployment list (-want +got):\n%s", diff)
	}
	require.False(t, f.sysroot.options[0].SkipPostclean)
}

func TestSysrootUpgraderNoUpdate(t *testing.T) {
	f := newUpgraderFixture(t)
	u := f.upgrader(t, types.UpgraderFlags{})

	changed, err := u.PullBase(t.Context(), nil)
	require.NoError(t, err)
	require.False(t, changed)

	_, changed, err = u.PrepLayering(t.Context())
	require.NoError(t, err)
	require.False(t, changed)
}

func TestSysrootUpgraderRejectsOlderBase(t *testing.T) {
	f := newUpgraderFixture(t)
	f.sysroot.deployments[0].Checksum = f.next.Checksum
	booted := f.sysroot.deployments[0]
	f.sysroot.booted = &booted
	f.store.pullTo[f.refspec.String()] = f.base.Checksum

	u := f.upgrader(t, types.UpgraderFlags{})
	_, err := u.PullBase(t.Context(), nil)
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	require.Contains(t, err.Error(), "is older than")

	f.store.refs[f.refspec.String()] = f.next.Checksum
	u = f.upgrader(t, types.UpgraderFlags{AllowOlder: true})
	changed, err := u.PullBase(t.Context(), nil)
	require.NoError(t, err)
	require.True(t, changed)
}

func TestSysrootUpgraderLayering(t *testing.T) {
	f := newUpgraderFixture(t)
	u := f.upgrader(t, types.UpgraderFlags{})

	origin, err := u.Origin().AddPackages([]string{"htop"})
	require.NoError(t, err)
	origin, err = origin.AddOverrides([]types.Override{
		types.RemoveOverride("nano"),
		types.ReplaceLocalOverride(types.ImportedPackage{HeaderSHA256: "aa11", Nevra: "kernel-6.8.1-100.x86_64"}),
	})
	require.NoError(t, err)
	origin, err = origin.AddLocalPackages([]types.ImportedPackage{{HeaderSHA256: "bb22", Nevra: "tool-1.0-1.noarch"}})
	require.NoError(t, err)
	u.SetOrigin(origin)

	layeringType, changed, err := u.PrepLayering(t.Context())
	require.NoError(t, err)
	require.Equal(t, types.LayeringTypeRepos, layeringType)
	require.True(t, changed)

	require.NoError(t, u.ImportPackages(t.Context()))
	require.Len(t, f.store.written, 1)
	commit := f.store.written[0]
	require.Equal(t, f.base.Checksum, commit.Parent)
	require.Equal(t, []string{"htop-3.3.0-1.x86_64", "tool-1.0-1.noarch"}, commit.Layering.LayeredPackages)
	require.Equal(t, []string{"aa11:kernel-6.8.1-100.x86_64", "bb22:tool-1.0-1.noarch"}, commit.Layering.LocalPackages)
	require.Equal(t, []types.Nevra{mustNevra("nano-7.2-5.x86_64")}, commit.Layering.RemovedBasePackages)

	deployment, err := u.Deploy(t.Context())
	require.NoError(t, err)
	require.True(t, deployment.Layering.IsLayered)
	require.Equal(t, f.base.Checksum, deployment.BaseChecksum())
	require.Len(t, f.store.written, 1, "layered commit is written once")

	// Layering the same origin onto the same base again is a no-op.
	f.sysroot.booted = &deployment
	again := f.upgrader(t, types.UpgraderFlags{})
	again.SetOrigin(origin)
	_, changed, err = again.PrepLayering(t.Context())
	require.NoError(t, err)
	require.False(t, changed)
}

func TestSysrootUpgraderLayeringErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(types.Origin) (types.Origin, error)
		wantCode errbuilder.ErrCode
	}{
		{
			name:     "unknown package",
			mutate:   func(o types.Origin) (types.Origin, error) { return o.AddPackages([]string{"emacs"}) },
			wantCode: errbuilder.CodeInvalidArgument,
		},
		{
			name:     "already in base",
			mutate:   func(o types.Origin) (types.Origin, error) { return o.AddPackages([]string{"bash"}) },
			wantCode: errbuilder.CodeInvalidArgument,
		},
		{
			name: "remove missing from base",
			mutate: func(o types.Origin) (types.Origin, error) {
				return o.AddOverrides([]types.Override{types.RemoveOverride("vim")})
			},
			wantCode: errbuilder.CodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUpgraderFixture(t)
			u := f.upgrader(t, types.UpgraderFlags{})
			origin, err := tt.mutate(u.Origin())
			require.NoError(t, err)
			u.SetOrigin(origin)
			_, _, err = u.PrepLayering(t.Context())
			require.Error(t, err)
			require.Equal(t, tt.wantCode, errbuilder.CodeOf(err))
		})
	}
}

func TestSysrootUpgraderDryRunNeverWrites(t *testing.T) {
	f := newUpgraderFixture(t)
	u := f.upgrader(t, types.UpgraderFlags{DryRun: true})
	_, err := u.Deploy(t.Context())
	require.Error(t, err)
	require.Empty(t, f.sysroot.writes)
	require.Empty(t, f.store.written)
}

func TestSysrootUpgraderDeploySetKernelArgs(t *testing.T) {
	f := newUpgraderFixture(t)
	u := f.upgrader(t, types.UpgraderFlags{})

	deployment, err := u.DeploySetKernelArgs(t.Context(), []string{"quiet", "nomodeset"})
	require.NoError(t, err)
	require.Equal(t, []string{"quiet", "nomodeset"}, deployment.KernelArgs)
	require.Equal(t, f.base.Checksum, deployment.Checksum)
	require.Equal(t, 1, deployment.Serial, "same checksum as booted gets the next serial")
}

func TestSysrootUpgraderCancelledBeforeDeploy(t *testing.T) {
	f := newUpgraderFixture(t)
	u := f.upgrader(t, types.UpgraderFlags{})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := u.PullBase(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	_, err = u.Deploy(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, f.sysroot.writes)
}
