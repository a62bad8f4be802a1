package app

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sysroot-txn/internal/adapters"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/telemetry"
	"sysroot-txn/internal/types"
)

var stable = types.Refspec{Branch: "stable"}

type writeCall struct {
	ids  []string
	opts types.WriteDeploymentsOptions
}

// recordingSysroot forwards to the file adapter and records every write.
type recordingSysroot struct {
	ports.SysrootPort
	writes []writeCall
}

func (r *recordingSysroot) WriteDeployments(ctx context.Context, deployments []types.Deployment, opts types.WriteDeploymentsOptions) error {
	ids := make([]string, 0, len(deployments))
	for _, deployment := range deployments {
		ids = append(ids, deployment.ID())
	}
	r.writes = append(r.writes, writeCall{ids: ids, opts: opts})
	return r.SysrootPort.WriteDeployments(ctx, deployments, opts)
}

type fakeRebooter struct {
	calls int
	err   error
}

func (f *fakeRebooter) Reboot(context.Context) error {
	f.calls++
	return f.err
}

type fakeMetadata struct {
	packages  []types.Nevra
	refreshes []ports.RefreshMetadataOptions
	result    ports.RefreshMetadataResult
	cleared   int
}

func (f *fakeMetadata) Refresh(_ context.Context, opts ports.RefreshMetadataOptions) (ports.RefreshMetadataResult, error) {
	f.refreshes = append(f.refreshes, opts)
	return f.result, nil
}

func (f *fakeMetadata) Clear(context.Context) error {
	f.cleared++
	return nil
}

func (f *fakeMetadata) Available(context.Context) ([]types.Nevra, error) {
	return f.packages, nil
}

type recordingSink struct {
	mu       sync.Mutex
	titles   []string
	messages []string
}

func (s *recordingSink) Message(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
}

func (s *recordingSink) Progress(string, int) {}
func (s *recordingSink) ProgressEnd()         {}

func (s *recordingSink) Title(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
}

type testEnv struct {
	service  *Service
	store    *adapters.BoltContentStore
	files    adapters.SysrootFileAdapter
	sysroot  *recordingSysroot
	metadata *fakeMetadata
	rebooter *fakeRebooter
	sink     *recordingSink
	base     types.Commit
	booted   types.Deployment
}

func mustNevra(t *testing.T, value string) types.Nevra {
	t.Helper()
	nevra, err := types.ParseNevra(value)
	require.NoError(t, err)
	return nevra
}

// newTestEnv builds a sysroot with one booted "fedora" deployment of the
// tip of the local "stable" branch.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	ctx := t.Context()

	store, err := adapters.NewBoltContentStore(filepath.Join(dir, "content.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := types.Commit{
		Version:   "39.1",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Packages: []types.Nevra{
			mustNevra(t, "bash-5.2.15-3.x86_64"),
			mustNevra(t, "nano-7.2-5.x86_64"),
			mustNevra(t, "vim-minimal-9.0.0-1.x86_64"),
			mustNevra(t, "vim-common-9.0.0-1.x86_64"),
		},
	}
	base.Checksum, err = store.WriteCommit(ctx, base)
	require.NoError(t, err)
	require.NoError(t, store.SetRef(ctx, stable, base.Checksum))

	files := adapters.NewSysrootFileAdapter(filepath.Join(dir, "sysroot"))
	booted := types.Deployment{
		OSName:     "fedora",
		Checksum:   base.Checksum,
		KernelArgs: []string{"quiet", "console=ttyS0"},
		Origin:     types.Origin{Refspec: stable},
	}
	require.NoError(t, files.WriteDeployments(ctx, []types.Deployment{booted}, types.WriteDeploymentsOptions{}))
	require.NoError(t, files.SetBooted(ctx, booted.ID()))

	metadata := &fakeMetadata{packages: []types.Nevra{
		mustNevra(t, "htop-3.3.0-1.x86_64"),
		mustNevra(t, "htop-3.2.0-1.x86_64"),
		mustNevra(t, "nano-7.2-6.x86_64"),
	}}
	sysroot := &recordingSysroot{SysrootPort: files}
	rebooter := &fakeRebooter{}
	service := &Service{
		Store:        store,
		Sysroot:      sysroot,
		Resolver:     adapters.NewPackageResolverAdapter(store, metadata),
		Importer:     adapters.NewArchiveImporter(),
		RepoMetadata: metadata,
		Rebooter:     rebooter,
		Metrics:      telemetry.NewMetrics("test"),
		OSName:       "fedora",
		Clock:        func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	}
	return &testEnv{
		service:  service,
		store:    store,
		files:    files,
		sysroot:  sysroot,
		metadata: metadata,
		rebooter: rebooter,
		sink:     &recordingSink{},
		base:     base,
		booted:   booted,
	}
}

// commitOnStable writes a child of the current base and moves the branch
// to it.
func (e *testEnv) commitOnStable(t *testing.T, version string, packages ...string) types.Commit {
	t.Helper()
	commit := types.Commit{
		Parent:    e.base.Checksum,
		Version:   version,
		Timestamp: e.base.Timestamp.Add(24 * time.Hour),
	}
	for _, pkg := range packages {
		commit.Packages = append(commit.Packages, mustNevra(t, pkg))
	}
	checksum, err := e.store.WriteCommit(t.Context(), commit)
	require.NoError(t, err)
	commit.Checksum = checksum
	require.NoError(t, e.store.SetRef(t.Context(), stable, checksum))
	return commit
}

func (e *testEnv) deployments(t *testing.T) []types.Deployment {
	t.Helper()
	deployments, err := e.files.Deployments(t.Context())
	require.NoError(t, err)
	return deployments
}

// reboot marks the deployment at the head of the list as booted.
func (e *testEnv) reboot(t *testing.T) {
	t.Helper()
	head := e.deployments(t)[0]
	require.NoError(t, e.files.SetBooted(t.Context(), head.ID()))
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func packageArchive(t *testing.T, header string) (*types.PackageArchive, *closeRecorder) {
	t.Helper()
	var buf bytes.Buffer
	writer := tar.NewWriter(&buf)
	members := []struct{ name, body string }{
		{adapters.PackageHeaderEntry, header},
		{"usr/bin/tool", "#!/bin/sh\n"},
	}
	for _, member := range members {
		require.NoError(t, writer.WriteHeader(&tar.Header{Name: member.name, Mode: 0o644, Size: int64(len(member.body))}))
		_, err := writer.Write([]byte(member.body))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	recorder := &closeRecorder{Reader: bytes.NewReader(buf.Bytes())}
	return types.NewPackageArchive("test.pkg", recorder), recorder
}

func brokenArchive() (*types.PackageArchive, *closeRecorder) {
	recorder := &closeRecorder{Reader: bytes.NewReader([]byte("not a tar stream"))}
	return types.NewPackageArchive("broken.pkg", recorder), recorder
}

var errRebootDenied = errors.New("reboot denied")
