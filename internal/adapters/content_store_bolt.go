package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

const (
	refsBucket     = "refs"
	commitsBucket  = "commits"
	packagesBucket = "packages"
)

// BoltContentStore keeps commits, refs and imported packages in a single
// bbolt file. Remotes are other store files, read-only mirrors keyed by
// branch name.
type BoltContentStore struct {
	db      *bolt.DB
	remotes map[string]string
	once    sync.Once
}

type storedPackage struct {
	Nevra        string `yaml:"nevra"`
	HeaderSHA256 string `yaml:"header_sha256"`
	Header       []byte `yaml:"header"`
	Payload      []byte `yaml:"payload"`
}

func NewBoltContentStore(path string, remotes map[string]string) (*BoltContentStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("content store path is empty")
	}
	cleaned := filepath.Clean(path)
	if dir := filepath.Dir(cleaned); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to create content store directory").
				WithCause(err)
		}
	}
	db, err := bolt.Open(cleaned, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to open content store %s", cleaned)).
			WithCause(err)
	}
	if err := db.Update(createStoreBuckets); err != nil {
		_ = db.Close()
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to initialise content store").
			WithCause(err)
	}
	copied := map[string]string{}
	for name, mirror := range remotes {
		copied[name] = mirror
	}
	return &BoltContentStore{db: db, remotes: copied}, nil
}

func createStoreBuckets(tx *bolt.Tx) error {
	for _, name := range []string{refsBucket, commitsBucket, packagesBucket} {
		if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltContentStore) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

func (s *BoltContentStore) ResolveRef(ctx context.Context, refspec types.Refspec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var checksum string
	err := s.db.View(func(tx *bolt.Tx) error {
		checksum = string(tx.Bucket([]byte(refsBucket)).Get([]byte(refspec.String())))
		return nil
	})
	if err != nil {
		return "", storeError("failed to read ref", err)
	}
	if checksum == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("ref %s not found", refspec.String()))
	}
	return checksum, nil
}

func (s *BoltContentStore) ResolveVersion(ctx context.Context, refspec types.Refspec, version string) (string, error) {
	commit, found, err := s.searchHistory(ctx, refspec, func(c types.Commit) bool { return c.Version == version })
	if err != nil {
		return "", err
	}
	if !found {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("version '%s' not found on %s", version, refspec.String()))
	}
	return commit.Checksum, nil
}

func (s *BoltContentStore) HasCommit(ctx context.Context, refspec types.Refspec, checksum string) (bool, error) {
	_, found, err := s.searchHistory(ctx, refspec, func(c types.Commit) bool { return c.Checksum == checksum })
	return found, err
}

// searchHistory walks the local history of refspec, then the history
// published by its remote mirror.
func (s *BoltContentStore) searchHistory(ctx context.Context, refspec types.Refspec, match func(types.Commit) bool) (types.Commit, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Commit{}, false, err
	}
	var found types.Commit
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found, ok = walkHistory(tx, refspec.String(), match)
		return nil
	})
	if err != nil {
		return types.Commit{}, false, storeError("failed to read history", err)
	}
	if ok || refspec.Remote == "" {
		return found, ok, nil
	}
	mirror, err := s.openMirror(refspec.Remote)
	if err != nil {
		return types.Commit{}, false, err
	}
	defer mirror.Close()
	err = mirror.View(func(tx *bolt.Tx) error {
		found, ok = walkHistory(tx, refspec.Branch, match)
		return nil
	})
	if err != nil {
		return types.Commit{}, false, storeError("failed to read remote history", err)
	}
	return found, ok, nil
}

func walkHistory(tx *bolt.Tx, ref string, match func(types.Commit) bool) (types.Commit, bool) {
	refs := tx.Bucket([]byte(refsBucket))
	commits := tx.Bucket([]byte(commitsBucket))
	if refs == nil || commits == nil {
		return types.Commit{}, false
	}
	next := string(refs.Get([]byte(ref)))
	seen := map[string]struct{}{}
	for next != "" {
		if _, loop := seen[next]; loop {
			break
		}
		seen[next] = struct{}{}
		commit, err := decodeCommit(commits.Get([]byte(next)))
		if err != nil {
			break
		}
		if match(commit) {
			return commit, true
		}
		next = commit.Parent
	}
	return types.Commit{}, false
}

func decodeCommit(raw []byte) (types.Commit, error) {
	if raw == nil {
		return types.Commit{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("commit not found")
	}
	var commit types.Commit
	if err := yaml.Unmarshal(raw, &commit); err != nil {
		return types.Commit{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to decode commit").
			WithCause(err)
	}
	return commit, nil
}

func (s *BoltContentStore) ReadCommit(ctx context.Context, checksum string) (types.Commit, error) {
	if err := ctx.Err(); err != nil {
		return types.Commit{}, err
	}
	var commit types.Commit
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(commitsBucket)).Get([]byte(checksum))
		if raw == nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("commit %s not found", checksum))
		}
		decoded, err := decodeCommit(raw)
		commit = decoded
		return err
	})
	if err != nil {
		return types.Commit{}, storeError("failed to read commit", err)
	}
	return commit, nil
}

func (s *BoltContentStore) WriteCommit(ctx context.Context, commit types.Commit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if commit.Checksum == "" {
		commit.Checksum = commit.ContentChecksum()
	}
	raw, err := yaml.Marshal(commit)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode commit").
			WithCause(err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(commitsBucket)).Put([]byte(commit.Checksum), raw)
	})
	if err != nil {
		return "", storeError("failed to write commit", err)
	}
	return commit.Checksum, nil
}

func (s *BoltContentStore) SetRef(ctx context.Context, refspec types.Refspec, checksum string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		refs := tx.Bucket([]byte(refsBucket))
		if checksum == "" {
			return refs.Delete([]byte(refspec.String()))
		}
		if tx.Bucket([]byte(commitsBucket)).Get([]byte(checksum)) == nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("commit %s not found", checksum))
		}
		return refs.Put([]byte(refspec.String()), []byte(checksum))
	})
	if err != nil {
		return storeError("failed to update ref", err)
	}
	return nil
}

// Pull copies the commit chain of refspec from its remote mirror. Refs
// without a remote, and synthetic pulls, resolve locally.
func (s *BoltContentStore) Pull(ctx context.Context, refspec types.Refspec, opts types.PullOptions, progress ports.ProgressSink) (types.PullResult, error) {
	if err := ctx.Err(); err != nil {
		return types.PullResult{}, err
	}
	previous, err := s.ResolveRef(ctx, refspec)
	if err != nil && errbuilder.CodeOf(err) != errbuilder.CodeNotFound {
		return types.PullResult{}, err
	}

	if opts.Synthetic || refspec.Remote == "" {
		target := opts.TargetCommit
		if target == "" {
			if previous == "" {
				return types.PullResult{}, err
			}
			target = previous
		}
		if _, err := s.ReadCommit(ctx, target); err != nil {
			return types.PullResult{}, err
		}
		if err := s.SetRef(ctx, refspec, target); err != nil {
			return types.PullResult{}, err
		}
		return types.PullResult{Commit: target, Previous: previous, Changed: target != previous}, nil
	}

	mirror, err := s.openMirror(refspec.Remote)
	if err != nil {
		return types.PullResult{}, err
	}
	defer mirror.Close()

	var chain []types.Commit
	var rawChain [][]byte
	err = mirror.View(func(tx *bolt.Tx) error {
		refs := tx.Bucket([]byte(refsBucket))
		commits := tx.Bucket([]byte(commitsBucket))
		if refs == nil || commits == nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("remote %s is not a content store", refspec.Remote))
		}
		target := opts.TargetCommit
		if target == "" {
			target = string(refs.Get([]byte(refspec.Branch)))
		}
		if target == "" {
			return errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("remote %s has no branch %s", refspec.Remote, refspec.Branch))
		}
		for next := target; next != "" && !s.hasLocalCommit(next); {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw := commits.Get([]byte(next))
			commit, err := decodeCommit(raw)
			if err != nil {
				return errbuilder.New().
					WithCode(errbuilder.CodeNotFound).
					WithMsg(fmt.Sprintf("commit %s not found on remote %s", next, refspec.Remote)).
					WithCause(err)
			}
			chain = append(chain, commit)
			rawChain = append(rawChain, append([]byte{}, raw...))
			next = commit.Parent
		}
		if len(chain) == 0 {
			chain = append(chain, types.Commit{Checksum: target})
			rawChain = append(rawChain, nil)
		}
		return nil
	})
	if err != nil {
		return types.PullResult{}, storeError("failed to read remote", err)
	}

	target := chain[0].Checksum
	err = s.db.Update(func(tx *bolt.Tx) error {
		commits := tx.Bucket([]byte(commitsBucket))
		for i := len(chain) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				return err
			}
			if rawChain[i] != nil {
				if err := commits.Put([]byte(chain[i].Checksum), rawChain[i]); err != nil {
					return err
				}
			}
			if progress != nil {
				done := len(chain) - i
				progress.Progress(fmt.Sprintf("Receiving metadata: %d/%d", done, len(chain)), done*100/len(chain))
			}
		}
		return tx.Bucket([]byte(refsBucket)).Put([]byte(refspec.String()), []byte(target))
	})
	if progress != nil {
		progress.ProgressEnd()
	}
	if err != nil {
		return types.PullResult{}, storeError("failed to store pulled commits", err)
	}
	log.Ctx(ctx).Debug().
		Str("refspec", refspec.String()).
		Int("commits", len(chain)).
		Msg("pull complete")
	return types.PullResult{Commit: target, Previous: previous, Changed: target != previous}, nil
}

func (s *BoltContentStore) hasLocalCommit(checksum string) bool {
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(commitsBucket)).Get([]byte(checksum)) != nil
		return nil
	})
	return found
}

func (s *BoltContentStore) openMirror(remote string) (*bolt.DB, error) {
	path, ok := s.remotes[remote]
	if !ok || strings.TrimSpace(path) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("remote '%s' is not configured", remote))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("remote '%s' store %s is not readable", remote, path)).
			WithCause(err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: 5 * time.Second})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to open remote '%s'", remote)).
			WithCause(err)
	}
	return db, nil
}

func (s *BoltContentStore) BeginImportBatch(ctx context.Context, commitOnFailure bool) (ports.ImportBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &boltImportBatch{store: s, commitOnFailure: commitOnFailure}, nil
}

// Packages lists the records of every imported package.
func (s *BoltContentStore) Packages(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(packagesBucket)).ForEach(func(k, _ []byte) error {
			records = append(records, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, storeError("failed to list packages", err)
	}
	return records, nil
}

// GC deletes commits that are neither in keep nor a ref tip, nor the base
// of a kept layered commit, and packages no kept commit layers.
func (s *BoltContentStore) GC(ctx context.Context, keep []string) (types.GCResult, error) {
	if err := ctx.Err(); err != nil {
		return types.GCResult{}, err
	}
	var result types.GCResult
	err := s.db.Update(func(tx *bolt.Tx) error {
		commits := tx.Bucket([]byte(commitsBucket))
		packages := tx.Bucket([]byte(packagesBucket))

		roots := append([]string{}, keep...)
		if err := tx.Bucket([]byte(refsBucket)).ForEach(func(_, v []byte) error {
			roots = append(roots, string(v))
			return nil
		}); err != nil {
			return err
		}

		reachable := map[string]struct{}{}
		liveRecords := map[string]struct{}{}
		for len(roots) > 0 {
			checksum := roots[len(roots)-1]
			roots = roots[:len(roots)-1]
			if _, done := reachable[checksum]; done || checksum == "" {
				continue
			}
			reachable[checksum] = struct{}{}
			commit, err := decodeCommit(commits.Get([]byte(checksum)))
			if err != nil || commit.Layering == nil {
				continue
			}
			roots = append(roots, commit.Layering.BaseCommit)
			for _, record := range commit.Layering.LocalPackages {
				liveRecords[record] = struct{}{}
			}
		}

		var deadCommits, deadPackages [][]byte
		if err := commits.ForEach(func(k, _ []byte) error {
			if _, ok := reachable[string(k)]; !ok {
				deadCommits = append(deadCommits, append([]byte{}, k...))
			}
			return nil
		}); err != nil {
			return err
		}
		if err := packages.ForEach(func(k, _ []byte) error {
			if _, ok := liveRecords[string(k)]; !ok {
				deadPackages = append(deadPackages, append([]byte{}, k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range deadCommits {
			if err := commits.Delete(k); err != nil {
				return err
			}
		}
		for _, k := range deadPackages {
			if err := packages.Delete(k); err != nil {
				return err
			}
		}
		result = types.GCResult{CommitsPruned: len(deadCommits), PackagesPruned: len(deadPackages)}
		return nil
	})
	if err != nil {
		return types.GCResult{}, storeError("failed to prune content store", err)
	}
	log.Ctx(ctx).Debug().
		Int("commits", result.CommitsPruned).
		Int("packages", result.PackagesPruned).
		Msg("content store pruned")
	return result, nil
}

type boltImportBatch struct {
	store           *BoltContentStore
	commitOnFailure bool
	mu              sync.Mutex
	pending         map[string]storedPackage
	done            bool
}

func (b *boltImportBatch) PutPackage(ctx context.Context, pkg types.ImportedPackage, header []byte, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("import batch is already finished")
	}
	if b.pending == nil {
		b.pending = map[string]storedPackage{}
	}
	b.pending[pkg.Record()] = storedPackage{
		Nevra:        pkg.Nevra,
		HeaderSHA256: pkg.HeaderSHA256,
		Header:       append([]byte{}, header...),
		Payload:      append([]byte{}, payload...),
	}
	return nil
}

func (b *boltImportBatch) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("import batch is already finished")
	}
	b.done = true
	return b.flush()
}

// Close finishes a batch that was not committed. Content is kept only
// when the batch was opened with commit-on-failure.
func (b *boltImportBatch) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil
	}
	b.done = true
	if !b.commitOnFailure {
		b.pending = nil
		return nil
	}
	log.Ctx(ctx).Debug().Int("packages", len(b.pending)).Msg("keeping partially imported packages")
	return b.flush()
}

func (b *boltImportBatch) flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	records := make([]string, 0, len(b.pending))
	for record := range b.pending {
		records = append(records, record)
	}
	sort.Strings(records)
	err := b.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(packagesBucket))
		for _, record := range records {
			raw, err := yaml.Marshal(b.pending[record])
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(record), raw); err != nil {
				return err
			}
		}
		return nil
	})
	b.pending = nil
	if err != nil {
		return storeError("failed to commit imported packages", err)
	}
	return nil
}

// storeError passes through coded and cancellation errors and wraps the
// rest as internal failures.
func storeError(msg string, err error) error {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg).
		WithCause(err)
}
