package types

type OverrideKind string

const (
	OverrideKindRemove        OverrideKind = "remove"
	OverrideKindReplaceRemote OverrideKind = "replace-remote"
	OverrideKindReplaceLocal  OverrideKind = "replace-local"
)

type TransactionKind string

const (
	TransactionKindDeploy          TransactionKind = "deploy"
	TransactionKindRollback        TransactionKind = "rollback"
	TransactionKindPackageDiff     TransactionKind = "package-diff"
	TransactionKindInitramfsState  TransactionKind = "initramfs-state"
	TransactionKindCleanup         TransactionKind = "cleanup"
	TransactionKindRefreshMetadata TransactionKind = "refresh-md"
	TransactionKindKernelArg       TransactionKind = "kernel-arg"
)

// LayeringType describes how much work a deployment needs on top of its
// base commit.
type LayeringType string

const (
	// LayeringTypeNone means the deployment is the base commit as-is.
	LayeringTypeNone LayeringType = "none"
	// LayeringTypeLocal covers removals and local replacements only; no
	// repository metadata is needed.
	LayeringTypeLocal LayeringType = "local"
	// LayeringTypeRepos requires packages resolved from repository metadata.
	LayeringTypeRepos LayeringType = "repos"
)

// UpgraderFlags tune a single SysrootUpgrader instance.
type UpgraderFlags struct {
	AllowOlder         bool
	DryRun             bool
	SyntheticPull      bool
	PkgcacheOnly       bool
	IgnoreUnconfigured bool
}

// DeployFlags are the user-facing switches of a deploy request.
type DeployFlags struct {
	AllowDowngrade bool
	DryRun         bool
	CacheOnly      bool
	NoPullBase     bool
	NoOverrides    bool
	DownloadOnly   bool
	SkipPurge      bool
	Reboot         bool
}

type CleanupFlags struct {
	Base         bool
	Pending      bool
	Rollback     bool
	RepoMetadata bool
}

// Any reports whether at least one cleanup action was requested.
func (f CleanupFlags) Any() bool {
	return f.Base || f.Pending || f.Rollback || f.RepoMetadata
}

type WriteDeploymentsOptions struct {
	SkipPostclean bool
}
