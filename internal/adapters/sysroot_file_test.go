package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"sysroot-txn/internal/types"
)

func sampleDeployments() []types.Deployment {
	return []types.Deployment{
		{
			OSName:     "fedora",
			Checksum:   "aaaa",
			Serial:     0,
			KernelArgs: []string{"quiet", "rhgb"},
			Layering: types.LayeringInfo{
				IsLayered:       true,
				BaseCommit:      "base",
				LayeredPackages: []string{"htop-3.3.0-1.x86_64"},
				RemovedBasePackages: []types.Nevra{
					{Name: "nano", Version: "7.2", Release: "5", Arch: "x86_64"},
				},
			},
			Origin: types.Origin{
				Refspec:  types.Refspec{Remote: "fedora", Branch: "stable"},
				Pinned:   &types.PinnedCommit{Checksum: "base", Version: "39.1"},
				Packages: []string{"htop"},
				Overrides: []types.Override{
					types.RemoveOverride("nano"),
					types.ReplaceLocalOverride(types.ImportedPackage{HeaderSHA256: "aa11", Nevra: "kernel-6.8.1-100.x86_64"}),
				},
				Initramfs: types.Initramfs{Regenerate: true, Args: []string{"--add", "tpm2"}},
			},
		},
		{
			OSName:   "fedora",
			Checksum: "bbbb",
			Serial:   1,
			Origin:   types.Origin{Refspec: types.Refspec{Remote: "fedora", Branch: "stable"}},
		},
	}
}

func TestSysrootFileAdapterRoundTrip(t *testing.T) {
	root := t.TempDir()
	adapter := NewSysrootFileAdapter(root)
	ctx := t.Context()

	empty, err := adapter.Deployments(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)
	booted, err := adapter.BootedDeployment(ctx)
	require.NoError(t, err)
	require.Nil(t, booted)

	deployments := sampleDeployments()
	require.NoError(t, adapter.WriteDeployments(ctx, deployments, types.WriteDeploymentsOptions{}))
	require.NoError(t, adapter.SetBooted(ctx, deployments[1].ID()))

	got, err := adapter.Deployments(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(deployments, got); diff != "" {
		t.Fatalf("unexpected deployments (-want +got):\n%s", diff)
	}
	booted, err = adapter.BootedDeployment(ctx)
	require.NoError(t, err)
	require.NotNil(t, booted)
	require.Equal(t, "bbbb.1", booted.ID())

	// Rewriting keeps the booted pointer and cleans stale origins.
	require.NoError(t, adapter.WriteDeployments(ctx, deployments[1:], types.WriteDeploymentsOptions{}))
	_, err = os.Stat(filepath.Join(root, originsDir, "aaaa.0.origin"))
	require.True(t, os.IsNotExist(err))
	booted, err = adapter.BootedDeployment(ctx)
	require.NoError(t, err)
	require.Equal(t, "bbbb.1", booted.ID())
}

func TestSysrootFileAdapterSkipPostclean(t *testing.T) {
	root := t.TempDir()
	adapter := NewSysrootFileAdapter(root)
	ctx := t.Context()
	deployments := sampleDeployments()

	require.NoError(t, adapter.WriteDeployments(ctx, deployments, types.WriteDeploymentsOptions{}))
	require.NoError(t, adapter.WriteDeployments(ctx, deployments[1:], types.WriteDeploymentsOptions{SkipPostclean: true}))
	_, err := os.Stat(filepath.Join(root, originsDir, "aaaa.0.origin"))
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NotContains(t, entry.Name(), ".tmp-", "temporary files must not be left behind")
	}
}

func TestSysrootFileAdapterErrors(t *testing.T) {
	root := t.TempDir()
	adapter := NewSysrootFileAdapter(root)
	ctx := t.Context()
	deployments := sampleDeployments()

	err := adapter.WriteDeployments(ctx, []types.Deployment{deployments[0], deployments[0]}, types.WriteDeploymentsOptions{})
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))

	require.NoError(t, adapter.WriteDeployments(ctx, deployments, types.WriteDeploymentsOptions{}))
	require.NoError(t, adapter.SetBooted(ctx, "missing.0"))
	_, err = adapter.BootedDeployment(ctx)
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))

	require.NoError(t, os.Remove(filepath.Join(root, originsDir, "bbbb.1.origin")))
	_, err = adapter.Deployments(ctx)
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}
