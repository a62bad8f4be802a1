package app

import (
	"sysroot-txn/internal/core"
	"sysroot-txn/internal/types"
)

// Transaction is one validated request. The set of implementations is
// closed; Execute dispatches on the concrete type.
type Transaction interface {
	Kind() types.TransactionKind
	transaction()
}

// DeployTransaction covers upgrade, rebase, deploy of a revision and every
// package or override change. Archives are owned by the transaction once
// it is built and are closed when its run is finalized.
type DeployTransaction struct {
	OSName               string
	Refspec              string
	Revision             string
	Flags                types.DeployFlags
	InstallPackages      []string
	UninstallPackages    []string
	InstallLocal         []*types.PackageArchive
	OverrideRemove       []string
	OverrideReplace      []string
	OverrideReplaceLocal []*types.PackageArchive
	OverrideReset        []string
}

type RollbackTransaction struct {
	OSName string
	Reboot bool
}

type PackageDiffTransaction struct {
	OSName   string
	Refspec  string
	Revision string
}

type InitramfsStateTransaction struct {
	OSName     string
	Regenerate bool
	Args       []string
	Reboot     bool
}

type CleanupTransaction struct {
	OSName string
	Flags  types.CleanupFlags
}

type RefreshMetadataTransaction struct {
	OSName string
	Force  bool
}

// KernelArgTransaction edits the kernel command line. Existing is the
// current command line; when empty the merge deployment's arguments are
// used.
type KernelArgTransaction struct {
	OSName   string
	Existing string
	Append   []string
	Replace  []string
	Delete   []string
	Reboot   bool
}

func (DeployTransaction) Kind() types.TransactionKind          { return types.TransactionKindDeploy }
func (RollbackTransaction) Kind() types.TransactionKind        { return types.TransactionKindRollback }
func (PackageDiffTransaction) Kind() types.TransactionKind     { return types.TransactionKindPackageDiff }
func (InitramfsStateTransaction) Kind() types.TransactionKind  { return types.TransactionKindInitramfsState }
func (CleanupTransaction) Kind() types.TransactionKind         { return types.TransactionKindCleanup }
func (RefreshMetadataTransaction) Kind() types.TransactionKind { return types.TransactionKindRefreshMetadata }
func (KernelArgTransaction) Kind() types.TransactionKind       { return types.TransactionKindKernelArg }

func (DeployTransaction) transaction()          {}
func (RollbackTransaction) transaction()        {}
func (PackageDiffTransaction) transaction()     {}
func (InitramfsStateTransaction) transaction()  {}
func (CleanupTransaction) transaction()         {}
func (RefreshMetadataTransaction) transaction() {}
func (KernelArgTransaction) transaction()       {}

// Result summarises one executed transaction.
type Result struct {
	ID         string
	Kind       types.TransactionKind
	Title      string
	Changed    bool
	Deployed   bool
	Deployment *types.Deployment
	// Diff is the unified package diff of a package-diff transaction.
	Diff    string
	Changes core.PackageChanges
	// Refreshed and Cached name repositories handled by a metadata refresh.
	Refreshed []string
	Cached    []string
	Pruned    types.GCResult
	// RebootErr is set when the deployment succeeded but the reboot
	// request failed.
	RebootErr error
}
