package core

import (
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"sysroot-txn/internal/types"
)

// RollbackPlan is the boot order produced by a rollback.
type RollbackPlan struct {
	Deployments []types.Deployment
	Target      types.Deployment
	HeadChanged bool
}

// QueryDeployments locates the pending deployment (the first deployment
// of osname ahead of the booted one) and the rollback deployment (the
// first deployment of osname after it).
func QueryDeployments(deployments []types.Deployment, booted *types.Deployment, osname string) (pending *types.Deployment, rollback *types.Deployment) {
	seenBooted := false
	for i := range deployments {
		deployment := deployments[i]
		if deployment.OSName != osname {
			continue
		}
		if booted != nil && deployment.Equal(*booted) {
			seenBooted = true
			continue
		}
		if !seenBooted && pending == nil {
			pending = &deployment
		}
		if seenBooted && rollback == nil {
			rollback = &deployment
		}
	}
	return pending, rollback
}

// RollbackOrder moves the rollback target to the head of the list. When
// only a pending deployment exists the booted one is promoted instead,
// which undoes an earlier rollback.
func RollbackOrder(deployments []types.Deployment, booted *types.Deployment, osname string) (RollbackPlan, error) {
	pending, rollback := QueryDeployments(deployments, booted, osname)
	var target types.Deployment
	switch {
	case pending == nil && rollback == nil:
		return RollbackPlan{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("no rollback deployment found")
	case rollback == nil:
		if booted == nil {
			return RollbackPlan{}, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("not booted into a deployment")
		}
		target = *booted
	default:
		target = *rollback
	}

	ordered := make([]types.Deployment, 0, len(deployments))
	ordered = append(ordered, target)
	for _, deployment := range deployments {
		if deployment.Equal(target) {
			continue
		}
		ordered = append(ordered, deployment)
	}
	headChanged := len(deployments) == 0 || !deployments[0].Equal(target)
	return RollbackPlan{Deployments: ordered, Target: target, HeadChanged: headChanged}, nil
}

// RollbackMessage is the progress line announcing the new head.
func RollbackMessage(target types.Deployment) string {
	return fmt.Sprintf("Moving '%s' to be first deployment", target.ID())
}

// FilterDeployments drops pending and/or rollback deployments of osname.
// Deployments of other OS names and the booted deployment are always
// kept. The boolean reports whether anything was dropped.
func FilterDeployments(deployments []types.Deployment, booted *types.Deployment, osname string, pending bool, rollback bool) ([]types.Deployment, bool) {
	seenBooted := false
	changed := false
	out := make([]types.Deployment, 0, len(deployments))
	for _, deployment := range deployments {
		if booted != nil && deployment.Equal(*booted) {
			seenBooted = true
			out = append(out, deployment)
			continue
		}
		if deployment.OSName != osname {
			out = append(out, deployment)
			continue
		}
		if !seenBooted && pending {
			changed = true
			continue
		}
		if seenBooted && rollback {
			changed = true
			continue
		}
		out = append(out, deployment)
	}
	return out, changed
}
