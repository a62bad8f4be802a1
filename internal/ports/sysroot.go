package ports

import (
	"context"

	"sysroot-txn/internal/types"
)

type SysrootPort interface {
	// Deployments returns the whole boot list, default target first, with
	// origins loaded.
	Deployments(ctx context.Context) ([]types.Deployment, error)
	// BootedDeployment returns nil when the running system is not one of
	// the listed deployments.
	BootedDeployment(ctx context.Context) (*types.Deployment, error)
	WriteDeployments(ctx context.Context, deployments []types.Deployment, opts types.WriteDeploymentsOptions) error
}
