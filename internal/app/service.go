package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"sysroot-txn/internal/adapters"
	"sysroot-txn/internal/core"
	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/telemetry"
)

// Config locates the system root and its collaborators on disk.
type Config struct {
	SysrootDir      string
	OSName          string
	StorePath       string
	Remotes         map[string]string
	ReposDir        string
	RepoCacheDir    string
	RepoCacheMaxAge time.Duration
	RebootCommand   []string
	MetricsTextfile string
}

// Service executes transactions against one system root, one at a time.
type Service struct {
	Store           ports.ContentStorePort
	Sysroot         ports.SysrootPort
	Resolver        ports.PackageResolverPort
	Importer        ports.PackageImporterPort
	ImportPolicy    ports.ImportPolicy
	RepoMetadata    ports.RepoMetadataPort
	Rebooter        ports.RebooterPort
	Metrics         *telemetry.Metrics
	MetricsTextfile string
	OSName          string
	Clock           func() time.Time

	mu      sync.Mutex
	closers []func() error
}

func NewService(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.SysrootDir) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("sysroot directory is required")
	}
	if strings.TrimSpace(cfg.StorePath) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("content store path is required")
	}
	store, err := adapters.NewBoltContentStore(cfg.StorePath, cfg.Remotes)
	if err != nil {
		return nil, err
	}
	metadata := adapters.NewRepoMetadataCacheAdapter(cfg.ReposDir, cfg.RepoCacheDir, cfg.RepoCacheMaxAge)
	return &Service{
		Store:           store,
		Sysroot:         adapters.NewSysrootFileAdapter(cfg.SysrootDir),
		Resolver:        adapters.NewPackageResolverAdapter(store, metadata),
		Importer:        adapters.NewArchiveImporter(),
		RepoMetadata:    metadata,
		Rebooter:        adapters.NewCommandRebooter(cfg.RebootCommand),
		Metrics:         telemetry.NewMetrics(""),
		MetricsTextfile: cfg.MetricsTextfile,
		OSName:          cfg.OSName,
		Clock:           time.Now,
		closers:         []func() error{store.Close},
	}, nil
}

// Close releases the content store.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Service) Deploy(ctx context.Context, tx DeployTransaction, sink ports.ProgressSink) (Result, error) {
	return s.Execute(ctx, NewRun(tx), sink)
}

func (s *Service) Rollback(ctx context.Context, tx RollbackTransaction, sink ports.ProgressSink) (Result, error) {
	return s.Execute(ctx, NewRun(tx), sink)
}

func (s *Service) PackageDiff(ctx context.Context, tx PackageDiffTransaction, sink ports.ProgressSink) (Result, error) {
	return s.Execute(ctx, NewRun(tx), sink)
}

func (s *Service) SetInitramfsState(ctx context.Context, tx InitramfsStateTransaction, sink ports.ProgressSink) (Result, error) {
	return s.Execute(ctx, NewRun(tx), sink)
}

func (s *Service) Cleanup(ctx context.Context, tx CleanupTransaction, sink ports.ProgressSink) (Result, error) {
	return s.Execute(ctx, NewRun(tx), sink)
}

func (s *Service) RefreshMetadata(ctx context.Context, tx RefreshMetadataTransaction, sink ports.ProgressSink) (Result, error) {
	return s.Execute(ctx, NewRun(tx), sink)
}

func (s *Service) KernelArgs(ctx context.Context, tx KernelArgTransaction, sink ports.ProgressSink) (Result, error) {
	return s.Execute(ctx, NewRun(tx), sink)
}

func (s *Service) upgraderPorts() core.UpgraderPorts {
	return core.UpgraderPorts{
		Store:    s.Store,
		Sysroot:  s.Sysroot,
		Resolver: s.Resolver,
		Now:      s.now,
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func (s *Service) osname(requested string) (string, error) {
	osname := strings.TrimSpace(requested)
	if osname == "" {
		osname = strings.TrimSpace(s.OSName)
	}
	if osname == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("os name is required")
	}
	return osname, nil
}
