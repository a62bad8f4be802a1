package types

import "fmt"

type NevraReplacement struct {
	Old Nevra `yaml:"old"`
	New Nevra `yaml:"new"`
}

// LayeringInfo is the package-level delta between a deployment and its
// base commit.
type LayeringInfo struct {
	IsLayered            bool               `yaml:"is_layered"`
	BaseCommit           string             `yaml:"base_commit,omitempty"`
	LayeredPackages      []string           `yaml:"layered_packages,omitempty"`
	LocalPackages        []string           `yaml:"local_packages,omitempty"`
	RemovedBasePackages  []Nevra            `yaml:"removed_base_packages,omitempty"`
	ReplacedBasePackages []NevraReplacement `yaml:"replaced_base_packages,omitempty"`
}

// Deployment is one bootable tree. It is never edited in place; the
// sysroot replaces the whole list instead.
type Deployment struct {
	OSName     string       `yaml:"osname"`
	Checksum   string       `yaml:"checksum"`
	Serial     int          `yaml:"serial"`
	KernelArgs []string     `yaml:"kernel_args,omitempty"`
	Layering   LayeringInfo `yaml:"layering"`
	Origin     Origin       `yaml:"-"`
}

// ID is the checksum.serial form used in messages and file names.
func (d Deployment) ID() string {
	return fmt.Sprintf("%s.%d", d.Checksum, d.Serial)
}

func (d Deployment) Equal(other Deployment) bool {
	return d.Checksum == other.Checksum && d.Serial == other.Serial
}

// BaseChecksum is the commit the deployment was layered on, or its own
// checksum when not layered.
func (d Deployment) BaseChecksum() string {
	if d.Layering.IsLayered && d.Layering.BaseCommit != "" {
		return d.Layering.BaseCommit
	}
	return d.Checksum
}
