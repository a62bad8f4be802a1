package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/shared"
	"sysroot-txn/internal/types"
)

const (
	repoIndexFile           = "packages.yaml"
	repoDefinitionExtension = ".yaml"
	defaultRepoCacheMaxAge  = time.Hour
	defaultHTTPTimeout      = 60 * time.Second
	defaultHTTPRetries      = 3
	defaultHTTPRetryDelay   = 200 * time.Millisecond
	maxHTTPRetryDelay       = 2 * time.Second
)

// RepoDefinition is one repository file under the repos directory.
type RepoDefinition struct {
	Name    string   `yaml:"name"`
	BaseURL string   `yaml:"baseurl"`
	Enabled *bool    `yaml:"enabled,omitempty"`
	OSNames []string `yaml:"osnames,omitempty"`
}

func (d RepoDefinition) enabledFor(osname string) bool {
	if d.Enabled != nil && !*d.Enabled {
		return false
	}
	return len(d.OSNames) == 0 || osname == "" || slices.Contains(d.OSNames, osname)
}

type repoIndex struct {
	Packages []string `yaml:"packages"`
}

type httpRetryConfig struct {
	timeout   time.Duration
	retries   int
	baseDelay time.Duration
}

// RepoMetadataCacheAdapter downloads package indexes of the configured
// repositories into a cache directory, one subdirectory per repository.
type RepoMetadataCacheAdapter struct {
	ReposDir string
	CacheDir string
	MaxAge   time.Duration
	Now      func() time.Time
	http     httpRetryConfig
}

func NewRepoMetadataCacheAdapter(reposDir string, cacheDir string, maxAge time.Duration) RepoMetadataCacheAdapter {
	if maxAge <= 0 {
		maxAge = defaultRepoCacheMaxAge
	}
	return RepoMetadataCacheAdapter{
		ReposDir: reposDir,
		CacheDir: cacheDir,
		MaxAge:   maxAge,
		Now:      time.Now,
		http: httpRetryConfig{
			timeout:   defaultHTTPTimeout,
			retries:   defaultHTTPRetries,
			baseDelay: defaultHTTPRetryDelay,
		},
	}
}

// Refresh downloads the index of every enabled repository whose cached
// copy is older than MaxAge. Force treats every cached copy as stale.
func (a RepoMetadataCacheAdapter) Refresh(ctx context.Context, opts ports.RefreshMetadataOptions) (ports.RefreshMetadataResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.RefreshMetadataResult{}, err
	}
	if strings.TrimSpace(a.CacheDir) == "" {
		return ports.RefreshMetadataResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("repo cache directory is empty")
	}
	repos, err := a.Repos(ctx)
	if err != nil {
		return ports.RefreshMetadataResult{}, err
	}
	maxAge := a.MaxAge
	if opts.Force {
		maxAge = 0
	}
	var result ports.RefreshMetadataResult
	for _, repo := range repos {
		if !repo.enabledFor(opts.OSName) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return ports.RefreshMetadataResult{}, err
		}
		cachePath := a.indexPath(repo.Name)
		if a.fresh(cachePath, maxAge) {
			result.Cached = append(result.Cached, repo.Name)
			continue
		}
		data, err := a.fetchIndex(ctx, repo)
		if err != nil {
			return ports.RefreshMetadataResult{}, err
		}
		if _, err := parseRepoIndex(data, repo.Name); err != nil {
			return ports.RefreshMetadataResult{}, err
		}
		if err := writeFileAtomic(cachePath, data, 0o644); err != nil {
			return ports.RefreshMetadataResult{}, err
		}
		log.Ctx(ctx).Debug().Str("repo", repo.Name).Msg("repo metadata refreshed")
		result.Refreshed = append(result.Refreshed, repo.Name)
	}
	return result, nil
}

func (a RepoMetadataCacheAdapter) fresh(path string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return now().Sub(info.ModTime()) < maxAge
}

func (a RepoMetadataCacheAdapter) indexPath(repo string) string {
	return filepath.Join(a.CacheDir, repo, repoIndexFile)
}

// Clear empties the cache directory. A missing directory is fine.
func (a RepoMetadataCacheAdapter) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(a.CacheDir) == "" {
		return nil
	}
	entries, err := os.ReadDir(a.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read repo cache directory").
			WithCause(err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(a.CacheDir, entry.Name())); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to remove %s from repo cache", entry.Name())).
				WithCause(err)
		}
	}
	return nil
}

// Repos loads the repository definitions, sorted by name.
func (a RepoMetadataCacheAdapter) Repos(ctx context.Context) ([]RepoDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.ReposDir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(a.ReposDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read repos directory").
			WithCause(err)
	}
	var repos []RepoDefinition
	seen := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != repoDefinitionExtension {
			continue
		}
		path := filepath.Join(a.ReposDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to read %s", path)).
				WithCause(err)
		}
		var repo RepoDefinition
		if err := yaml.Unmarshal(data, &repo); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("invalid repo definition %s", path)).
				WithCause(err)
		}
		repo.Name = strings.TrimSpace(repo.Name)
		if repo.Name == "" {
			repo.Name = strings.TrimSuffix(entry.Name(), repoDefinitionExtension)
		}
		if strings.ContainsAny(repo.Name, `/\`) {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("repo name '%s' contains a path separator", repo.Name))
		}
		if strings.TrimSpace(repo.BaseURL) == "" {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("repo '%s' has no baseurl", repo.Name))
		}
		if other, dup := seen[repo.Name]; dup {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("repo '%s' is defined in both %s and %s", repo.Name, other, entry.Name()))
		}
		seen[repo.Name] = entry.Name()
		repos = append(repos, repo)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })
	return repos, nil
}

// Available returns the packages listed by every cached index of the
// enabled repositories. Repositories never refreshed are skipped.
func (a RepoMetadataCacheAdapter) Available(ctx context.Context) ([]types.Nevra, error) {
	repos, err := a.Repos(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Nevra
	for _, repo := range repos {
		if !repo.enabledFor("") {
			continue
		}
		data, err := os.ReadFile(a.indexPath(repo.Name))
		if err != nil {
			if os.IsNotExist(err) {
				log.Ctx(ctx).Debug().Str("repo", repo.Name).Msg("no cached metadata")
				continue
			}
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to read cached metadata for '%s'", repo.Name)).
				WithCause(err)
		}
		packages, err := parseRepoIndex(data, repo.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, packages...)
	}
	return out, nil
}

func parseRepoIndex(data []byte, repo string) ([]types.Nevra, error) {
	var index repoIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid package index for repo '%s'", repo)).
			WithCause(err)
	}
	packages := make([]types.Nevra, 0, len(index.Packages))
	for _, raw := range index.Packages {
		nevra, err := types.ParseNevra(raw)
		if err != nil {
			return nil, err
		}
		packages = append(packages, nevra)
	}
	return packages, nil
}

func (a RepoMetadataCacheAdapter) fetchIndex(ctx context.Context, repo RepoDefinition) ([]byte, error) {
	base, err := url.Parse(strings.TrimSpace(repo.BaseURL))
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid baseurl for repo '%s'", repo.Name)).
			WithCause(err)
	}
	switch base.Scheme {
	case "file", "":
		path := filepath.Join(base.Path, repoIndexFile)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("package index for repo '%s' not found", repo.Name)).
				WithCause(err)
		}
		return data, nil
	case "http", "https":
		target := base.JoinPath(repoIndexFile).String()
		resp, err := doRequest(ctx, target, a.http)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			code := errbuilder.CodeInternal
			if resp.StatusCode == http.StatusNotFound {
				code = errbuilder.CodeNotFound
			}
			return nil, errbuilder.New().
				WithCode(code).
				WithMsg(fmt.Sprintf("failed to fetch metadata for repo '%s'", repo.Name)).
				WithCause(shared.HTTPStatusError(resp.StatusCode, target))
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to read metadata for repo '%s'", repo.Name)).
				WithCause(err)
		}
		return data, nil
	default:
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unsupported baseurl scheme %q for repo '%s'", base.Scheme, repo.Name))
	}
}

func doRequest(ctx context.Context, target string, cfg httpRetryConfig) (*http.Response, error) {
	client := &http.Client{Timeout: cfg.timeout}
	var lastErr error
	for attempt := 0; attempt < cfg.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to create request").
				WithCause(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			if attempt < cfg.retries-1 {
				time.Sleep(httpRetryDelay(attempt, cfg))
				continue
			}
			break
		}
		if (resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests) && attempt < cfg.retries-1 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			time.Sleep(httpRetryDelay(attempt, cfg))
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("request failed")
	}
	return nil, errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("request to %s failed", target)).
		WithCause(lastErr)
}

func httpRetryDelay(attempt int, cfg httpRetryConfig) time.Duration {
	delay := cfg.baseDelay * time.Duration(1<<attempt)
	if delay > maxHTTPRetryDelay {
		delay = maxHTTPRetryDelay
	}
	return delay
}

var _ ports.RepoMetadataPort = RepoMetadataCacheAdapter{}
