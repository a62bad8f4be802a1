package core

import (
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysroot-txn/internal/types"
)

func overrideFixture(t *testing.T) (types.Origin, types.LayeringInfo) {
	t.Helper()
	origin := types.Origin{Refspec: types.Refspec{Remote: "fedora", Branch: "stable"}}
	origin, err := origin.AddOverrides([]types.Override{
		types.RemoveOverride("nano"),
		types.ReplaceLocalOverride(types.ImportedPackage{HeaderSHA256: "aa11", Nevra: "kernel-6.8.1-100.x86_64"}),
		types.ReplaceRemoteOverride("vim-minimal-9.1.0-2.x86_64"),
	})
	require.NoError(t, err)
	layering := types.LayeringInfo{
		IsLayered:           true,
		RemovedBasePackages: []types.Nevra{mustNevra("nano-7.2-5.x86_64")},
		ReplacedBasePackages: []types.NevraReplacement{
			{Old: mustNevra("kernel-6.7.0-200.x86_64"), New: mustNevra("kernel-6.8.1-100.x86_64")},
			{Old: mustNevra("vim-minimal-9.0.0-1.x86_64"), New: mustNevra("vim-minimal-9.1.0-2.x86_64")},
		},
	}
	return origin, layering
}

func TestResetOverridesByNameAndNevra(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		wantLeft  []string
	}{
		{name: "remove by name", token: "nano", wantLeft: []string{"kernel-6.8.1-100.x86_64", "vim-minimal-9.1.0-2.x86_64"}},
		{name: "remove by nevra", token: "nano-7.2-5.x86_64", wantLeft: []string{"kernel-6.8.1-100.x86_64", "vim-minimal-9.1.0-2.x86_64"}},
		{name: "local replace by name", token: "kernel", wantLeft: []string{"nano", "vim-minimal-9.1.0-2.x86_64"}},
		{name: "local replace by nevra", token: "kernel-6.8.1-100.x86_64", wantLeft: []string{"nano", "vim-minimal-9.1.0-2.x86_64"}},
		{name: "remote replace by name", token: "vim-minimal", wantLeft: []string{"nano", "kernel-6.8.1-100.x86_64"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin, layering := overrideFixture(t)
			got, err := ResetOverrides(t.Context(), origin, layering, []string{tt.token})
			require.NoError(t, err)
			keys := make([]string, 0, len(got.Overrides))
			for _, override := range got.Overrides {
				keys = append(keys, override.Key())
			}
			if diff := cmp.Diff(tt.wantLeft, keys); diff != "" {
				t.Fatalf("unexpected overrides (-want +got):\n%s", diff)
			}
			assert.Len(t, origin.Overrides, 3, "input origin must not be modified")
		})
	}
}

func TestResetOverridesRoundTrip(t *testing.T) {
	origin := types.Origin{Refspec: types.Refspec{Branch: "stable"}}
	replacement := types.ImportedPackage{HeaderSHA256: "bb22", Nevra: "foo-2.0-1.noarch"}
	origin, err := origin.AddOverrides([]types.Override{types.ReplaceLocalOverride(replacement)})
	require.NoError(t, err)
	layering := types.LayeringInfo{
		IsLayered: true,
		ReplacedBasePackages: []types.NevraReplacement{
			{Old: mustNevra("foo-1.0-1.noarch"), New: mustNevra(replacement.Nevra)},
		},
	}

	got, err := ResetOverrides(t.Context(), origin, layering, []string{"foo"})
	require.NoError(t, err)
	require.Empty(t, got.Overrides)
}

func TestResetOverridesErrors(t *testing.T) {
	origin, layering := overrideFixture(t)

	_, err := ResetOverrides(t.Context(), origin, layering, []string{"missing"})
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
	require.Contains(t, err.Error(), "no overrides for package 'missing'")

	_, err = ResetOverrides(t.Context(), origin, types.LayeringInfo{}, []string{"nano"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no overrides currently applied")

	// Metadata says nano is removed but the origin no longer records it.
	stale, _ := origin.RemoveOverride("nano", types.OverrideKindRemove)
	_, err = ResetOverrides(t.Context(), stale, layering, []string{"nano"})
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeInternal, errbuilder.CodeOf(err))
}

func TestResetOverridesNameCollidingWithNevra(t *testing.T) {
	collision := "bar-1.0-1.noarch"
	origin := types.Origin{Refspec: types.Refspec{Branch: "stable"}}
	layering := types.LayeringInfo{
		IsLayered: true,
		RemovedBasePackages: []types.Nevra{
			mustNevra(collision),
			{Name: collision, Version: "2", Release: "1", Arch: "noarch"},
		},
	}
	_, err := ResetOverrides(t.Context(), origin, layering, []string{collision})
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeInternal, errbuilder.CodeOf(err))
}

func TestResolveRemovals(t *testing.T) {
	store := newFakeStore()
	base := store.addCommit(types.Commit{
		Version: "39.1",
		Packages: []types.Nevra{
			mustNevra("nano-7.2-5.x86_64"),
			mustNevra("vim-minimal-9.0.0-1.x86_64"),
			mustNevra("vim-common-9.0.0-1.x86_64"),
		},
	})
	resolver := fakeResolver{store: store}

	overrides, err := ResolveRemovals(t.Context(), resolver, base.Checksum, []string{"nano"})
	require.NoError(t, err)
	if diff := cmp.Diff([]types.Override{types.RemoveOverride("nano")}, overrides); diff != "" {
		t.Fatalf("unexpected overrides (-want +got):\n%s", diff)
	}

	_, err = ResolveRemovals(t.Context(), resolver, base.Checksum, []string{"emacs"})
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
	require.Contains(t, err.Error(), "No package \"emacs\" in base commit "+base.Checksum[:7])

	_, err = ResolveRemovals(t.Context(), resolver, base.Checksum, []string{"vim-*"})
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	require.Contains(t, err.Error(), "vim-minimal-9.0.0-1.x86_64")
	require.Contains(t, err.Error(), "vim-common-9.0.0-1.x86_64")
}

func TestResolveReplacementsPicksNewest(t *testing.T) {
	resolver := fakeResolver{store: newFakeStore(), available: []types.Nevra{
		mustNevra("curl-8.2.0-1.x86_64"),
		mustNevra("curl-8.10.0-1.x86_64"),
	}}
	overrides, err := ResolveReplacements(t.Context(), resolver, []string{"curl"})
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	require.Equal(t, "curl-8.10.0-1.x86_64", overrides[0].Nevra)
	require.Equal(t, types.OverrideKindReplaceRemote, overrides[0].Kind)
}
