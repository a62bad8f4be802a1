package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"sysroot-txn/internal/types"
)

const (
	deploymentsFile = "deployments.yaml"
	originsDir      = "origins"
	originSuffix    = ".origin"
)

type deploymentsDocument struct {
	Booted      string             `yaml:"booted,omitempty"`
	Deployments []types.Deployment `yaml:"deployments"`
}

// SysrootFileAdapter keeps the boot order in deployments.yaml and one
// TOML origin file per deployment under origins/. Both are replaced
// atomically.
type SysrootFileAdapter struct {
	Root string
}

func NewSysrootFileAdapter(root string) SysrootFileAdapter {
	return SysrootFileAdapter{Root: root}
}

func (a SysrootFileAdapter) Deployments(ctx context.Context) ([]types.Deployment, error) {
	doc, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Deployments, nil
}

func (a SysrootFileAdapter) BootedDeployment(ctx context.Context) (*types.Deployment, error) {
	doc, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	if doc.Booted == "" {
		return nil, nil
	}
	for _, deployment := range doc.Deployments {
		if deployment.ID() == doc.Booted {
			booted := deployment
			return &booted, nil
		}
	}
	return nil, errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("booted deployment %s is not in the deployment list", doc.Booted))
}

// SetBooted records which deployment the host is running.
func (a SysrootFileAdapter) SetBooted(ctx context.Context, id string) error {
	doc, err := a.load(ctx)
	if err != nil {
		return err
	}
	doc.Booted = id
	return a.writeDocument(doc)
}

func (a SysrootFileAdapter) WriteDeployments(ctx context.Context, deployments []types.Deployment, opts types.WriteDeploymentsOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(a.Root) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("sysroot path is empty")
	}
	current, err := a.load(ctx)
	if err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for _, deployment := range deployments {
		if _, dup := seen[deployment.ID()]; dup {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("deployment %s listed twice", deployment.ID()))
		}
		seen[deployment.ID()] = struct{}{}
		if err := a.writeOrigin(deployment); err != nil {
			return err
		}
	}
	if err := a.writeDocument(deploymentsDocument{Booted: current.Booted, Deployments: deployments}); err != nil {
		return err
	}
	if opts.SkipPostclean {
		return nil
	}
	return a.postclean(ctx, seen)
}

func (a SysrootFileAdapter) load(ctx context.Context) (deploymentsDocument, error) {
	if err := ctx.Err(); err != nil {
		return deploymentsDocument{}, err
	}
	path := filepath.Join(a.Root, deploymentsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return deploymentsDocument{}, nil
		}
		return deploymentsDocument{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read deployment list").
			WithCause(err)
	}
	var doc deploymentsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return deploymentsDocument{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to parse %s", path)).
			WithCause(err)
	}
	for i := range doc.Deployments {
		origin, err := a.readOrigin(doc.Deployments[i])
		if err != nil {
			return deploymentsDocument{}, err
		}
		doc.Deployments[i].Origin = origin
	}
	return doc, nil
}

func (a SysrootFileAdapter) originPath(deployment types.Deployment) string {
	return filepath.Join(a.Root, originsDir, deployment.ID()+originSuffix)
}

func (a SysrootFileAdapter) readOrigin(deployment types.Deployment) (types.Origin, error) {
	path := a.originPath(deployment)
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Origin{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("origin for deployment %s not found", deployment.ID())).
			WithCause(err)
	}
	var origin types.Origin
	if err := toml.Unmarshal(data, &origin); err != nil {
		return types.Origin{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to parse %s", path)).
			WithCause(err)
	}
	return origin, nil
}

func (a SysrootFileAdapter) writeOrigin(deployment types.Deployment) error {
	data, err := toml.Marshal(deployment.Origin)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to encode origin for %s", deployment.ID())).
			WithCause(err)
	}
	return writeFileAtomic(a.originPath(deployment), data, 0o644)
}

func (a SysrootFileAdapter) writeDocument(doc deploymentsDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode deployment list").
			WithCause(err)
	}
	return writeFileAtomic(filepath.Join(a.Root, deploymentsFile), data, 0o644)
}

// postclean removes origin files of deployments no longer listed.
func (a SysrootFileAdapter) postclean(ctx context.Context, live map[string]struct{}) error {
	dir := filepath.Join(a.Root, originsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read origins directory").
			WithCause(err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, originSuffix) {
			continue
		}
		if _, ok := live[strings.TrimSuffix(name, originSuffix)]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to remove stale origin %s", name)).
				WithCause(err)
		}
		log.Ctx(ctx).Debug().Str("origin", name).Msg("stale origin removed")
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to create directory %s", dir)).
			WithCause(err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to create temporary file for %s", path)).
			WithCause(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to write %s", path)).
			WithCause(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to sync %s", path)).
			WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to close %s", path)).
			WithCause(err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to set permissions on %s", path)).
			WithCause(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to replace %s", path)).
			WithCause(err)
	}
	return nil
}
