package core

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

type fakeStore struct {
	refs      map[string]string
	commits   map[string]types.Commit
	packages  map[string][]byte
	pullTo    map[string]string
	written   []types.Commit
	batches   []*fakeBatch
	gcKeep    []string
	failBatch bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		refs:     map[string]string{},
		commits:  map[string]types.Commit{},
		packages: map[string][]byte{},
		pullTo:   map[string]string{},
	}
}

func (s *fakeStore) addCommit(commit types.Commit) types.Commit {
	if commit.Checksum == "" {
		commit.Checksum = commit.ContentChecksum()
	}
	s.commits[commit.Checksum] = commit
	return commit
}

func (s *fakeStore) ResolveRef(_ context.Context, refspec types.Refspec) (string, error) {
	checksum, ok := s.refs[refspec.String()]
	if !ok {
		return "", errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg("ref not found")
	}
	return checksum, nil
}

func (s *fakeStore) ResolveVersion(_ context.Context, _ types.Refspec, version string) (string, error) {
	for checksum, commit := range s.commits {
		if commit.Version == version {
			return checksum, nil
		}
	}
	return "", errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg("version not found")
}

func (s *fakeStore) HasCommit(_ context.Context, _ types.Refspec, checksum string) (bool, error) {
	_, ok := s.commits[checksum]
	return ok, nil
}

func (s *fakeStore) ReadCommit(_ context.Context, checksum string) (types.Commit, error) {
	commit, ok := s.commits[checksum]
	if !ok {
		return types.Commit{}, errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg("commit not found: " + checksum)
	}
	return commit, nil
}

func (s *fakeStore) Pull(ctx context.Context, refspec types.Refspec, opts types.PullOptions, _ ports.ProgressSink) (types.PullResult, error) {
	if err := ctx.Err(); err != nil {
		return types.PullResult{}, err
	}
	previous := s.refs[refspec.String()]
	next := opts.TargetCommit
	if next == "" {
		next = s.pullTo[refspec.String()]
	}
	if next == "" {
		next = previous
	}
	if next == "" {
		return types.PullResult{}, errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg("ref not found")
	}
	s.refs[refspec.String()] = next
	return types.PullResult{Commit: next, Previous: previous, Changed: next != previous}, nil
}

func (s *fakeStore) WriteCommit(_ context.Context, commit types.Commit) (string, error) {
	if commit.Checksum == "" {
		commit.Checksum = commit.ContentChecksum()
	}
	s.commits[commit.Checksum] = commit
	s.written = append(s.written, commit)
	return commit.Checksum, nil
}

func (s *fakeStore) SetRef(_ context.Context, refspec types.Refspec, checksum string) error {
	if checksum == "" {
		delete(s.refs, refspec.String())
		return nil
	}
	s.refs[refspec.String()] = checksum
	return nil
}

func (s *fakeStore) BeginImportBatch(_ context.Context, commitOnFailure bool) (ports.ImportBatch, error) {
	if s.failBatch {
		return nil, errors.New("batch unavailable")
	}
	batch := &fakeBatch{store: s, commitOnFailure: commitOnFailure, pending: map[string][]byte{}}
	s.batches = append(s.batches, batch)
	return batch, nil
}

func (s *fakeStore) GC(_ context.Context, keep []string) (types.GCResult, error) {
	s.gcKeep = slices.Clone(keep)
	return types.GCResult{}, nil
}

type fakeBatch struct {
	store           *fakeStore
	commitOnFailure bool
	pending         map[string][]byte
	committed       bool
	closed          bool
}

func (b *fakeBatch) PutPackage(_ context.Context, pkg types.ImportedPackage, _ []byte, payload []byte) error {
	b.pending[pkg.Record()] = payload
	return nil
}

func (b *fakeBatch) flush() {
	for record, payload := range b.pending {
		b.store.packages[record] = payload
	}
	b.pending = map[string][]byte{}
}

func (b *fakeBatch) Commit(context.Context) error {
	b.flush()
	b.committed = true
	return nil
}

func (b *fakeBatch) Close(context.Context) error {
	b.closed = true
	if !b.committed && b.commitOnFailure {
		b.flush()
	}
	return nil
}

// fakeImporter treats the archive body as "sha nevra" and fails on
// bodies starting with "fail".
type fakeImporter struct{}

func (fakeImporter) ImportArchive(ctx context.Context, batch ports.ImportBatch, archive io.Reader, _ ports.ImportPolicy) (types.ImportedPackage, error) {
	body, err := io.ReadAll(archive)
	if err != nil {
		return types.ImportedPackage{}, err
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "fail") {
		return types.ImportedPackage{}, errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg("corrupt archive")
	}
	sha, nevra, _ := strings.Cut(text, " ")
	pkg := types.ImportedPackage{HeaderSHA256: sha, Nevra: nevra}
	if err := batch.PutPackage(ctx, pkg, nil, body); err != nil {
		return types.ImportedPackage{}, err
	}
	return pkg, nil
}

type fakeSysroot struct {
	deployments []types.Deployment
	booted      *types.Deployment
	writes      [][]types.Deployment
	options     []types.WriteDeploymentsOptions
}

func (s *fakeSysroot) Deployments(context.Context) ([]types.Deployment, error) {
	return slices.Clone(s.deployments), nil
}

func (s *fakeSysroot) BootedDeployment(context.Context) (*types.Deployment, error) {
	if s.booted == nil {
		return nil, nil
	}
	booted := *s.booted
	return &booted, nil
}

func (s *fakeSysroot) WriteDeployments(_ context.Context, deployments []types.Deployment, opts types.WriteDeploymentsOptions) error {
	s.writes = append(s.writes, slices.Clone(deployments))
	s.options = append(s.options, opts)
	s.deployments = slices.Clone(deployments)
	return nil
}

type fakeResolver struct {
	store     *fakeStore
	available []types.Nevra
}

func (r fakeResolver) QueryMatching(ctx context.Context, commit string, pattern string) ([]types.Nevra, error) {
	c, err := r.store.ReadCommit(ctx, commit)
	if err != nil {
		return nil, err
	}
	var out []types.Nevra
	for _, pkg := range c.Packages {
		if pkg.Matches(pattern) {
			out = append(out, pkg)
		}
	}
	return out, nil
}

func (r fakeResolver) QueryAvailable(_ context.Context, pattern string) ([]types.Nevra, error) {
	var out []types.Nevra
	for _, pkg := range r.available {
		if pkg.Matches(pattern) {
			out = append(out, pkg)
		}
	}
	return out, nil
}

type closeRecorder struct {
	io.Reader
	closed *int
}

func (c closeRecorder) Close() error {
	*c.closed++
	return nil
}

func mustNevra(value string) types.Nevra {
	nevra, err := types.ParseNevra(value)
	if err != nil {
		panic(err)
	}
	return nevra
}
