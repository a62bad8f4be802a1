package app

import (
	"context"

	"sysroot-txn/internal/core"
	"sysroot-txn/internal/types"
)

// Status is a read-only view of the boot order.
type Status struct {
	Deployments []types.Deployment
	Booted      *types.Deployment
	// Merge is the deployment the next transaction would start from, nil
	// when the OS has no deployment.
	Merge *types.Deployment
}

// Status lists the deployments. The merge deployment is looked up for
// osname, or the service's OS when osname is empty.
func (s *Service) Status(ctx context.Context, osname string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deployments, err := s.Sysroot.Deployments(ctx)
	if err != nil {
		return Status{}, err
	}
	booted, err := s.Sysroot.BootedDeployment(ctx)
	if err != nil {
		return Status{}, err
	}
	status := Status{Deployments: deployments, Booted: booted}
	if name, err := s.osname(osname); err == nil {
		if merge, err := core.MergeDeployment(deployments, booted, name); err == nil {
			status.Merge = &merge
		}
	}
	return status, nil
}

// IsBooted reports whether deployment is the one currently booted.
func (st Status) IsBooted(deployment types.Deployment) bool {
	return st.Booted != nil && st.Booted.Equal(deployment)
}
