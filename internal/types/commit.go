package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Commit is the metadata the content store keeps for one tree.
type Commit struct {
	Checksum  string        `yaml:"checksum"`
	Parent    string        `yaml:"parent,omitempty"`
	Version   string        `yaml:"version,omitempty"`
	Timestamp time.Time     `yaml:"timestamp"`
	Packages  []Nevra       `yaml:"packages,omitempty"`
	Layering  *LayeringInfo `yaml:"layering,omitempty"`
}

// ContentChecksum derives the checksum from everything except the
// timestamp, so that layering the same packages onto the same base yields
// the same commit.
func (c Commit) ContentChecksum() string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "parent %s\nversion %s\n", c.Parent, c.Version)
	for _, pkg := range c.Packages {
		_, _ = io.WriteString(h, "package "+pkg.String()+"\n")
	}
	if c.Layering != nil {
		_, _ = fmt.Fprintf(h, "base %s\n", c.Layering.BaseCommit)
		for _, name := range c.Layering.LayeredPackages {
			_, _ = io.WriteString(h, "layered "+name+"\n")
		}
		for _, record := range c.Layering.LocalPackages {
			_, _ = io.WriteString(h, "local "+record+"\n")
		}
		for _, removed := range c.Layering.RemovedBasePackages {
			_, _ = io.WriteString(h, "removed "+removed.String()+"\n")
		}
		for _, replaced := range c.Layering.ReplacedBasePackages {
			_, _ = fmt.Fprintf(h, "replaced %s %s\n", replaced.Old.String(), replaced.New.String())
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

type PullOptions struct {
	// Synthetic resolves the ref against local content only.
	Synthetic bool
	// TargetCommit pins the pull to a specific checksum.
	TargetCommit string
}

type PullResult struct {
	Commit   string
	Previous string
	Changed  bool
}

type GCResult struct {
	CommitsPruned  int
	PackagesPruned int
}
