package types

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

type PinnedCommit struct {
	Checksum string `toml:"checksum"`
	Version  string `toml:"version,omitempty"`
}

type Initramfs struct {
	Regenerate bool     `toml:"regenerate"`
	Args       []string `toml:"args,omitempty"`
}

// Override is a recorded deviation from the base package set. Remove
// overrides are keyed by package name, replacements by the NEVRA of the
// replacing package.
type Override struct {
	Kind      OverrideKind `toml:"kind"`
	Name      string       `toml:"name,omitempty"`
	Nevra     string       `toml:"nevra,omitempty"`
	ContentID string       `toml:"content_id,omitempty"`
}

func RemoveOverride(name string) Override {
	return Override{Kind: OverrideKindRemove, Name: name}
}

func ReplaceRemoteOverride(nevra string) Override {
	return Override{Kind: OverrideKindReplaceRemote, Nevra: nevra}
}

func ReplaceLocalOverride(pkg ImportedPackage) Override {
	return Override{Kind: OverrideKindReplaceLocal, Nevra: pkg.Nevra, ContentID: pkg.HeaderSHA256}
}

// Key is the token an override is addressed by.
func (o Override) Key() string {
	if o.Kind == OverrideKindRemove {
		return o.Name
	}
	return o.Nevra
}

// Origin is the declarative description of what a deployment contains.
// Mutators never touch the receiver; they return a modified copy.
type Origin struct {
	Refspec       Refspec       `toml:"refspec"`
	Pinned        *PinnedCommit `toml:"pinned,omitempty"`
	Packages      []string      `toml:"packages,omitempty"`
	LocalPackages []string      `toml:"local_packages,omitempty"`
	Overrides     []Override    `toml:"overrides,omitempty"`
	Initramfs     Initramfs     `toml:"initramfs"`
	KernelArgs    []string      `toml:"kernel_args,omitempty"`
	Unconfigured  string        `toml:"unconfigured_state,omitempty"`
}

func (o Origin) Clone() Origin {
	out := o
	if o.Pinned != nil {
		pinned := *o.Pinned
		out.Pinned = &pinned
	}
	out.Packages = slices.Clone(o.Packages)
	out.LocalPackages = slices.Clone(o.LocalPackages)
	out.Overrides = slices.Clone(o.Overrides)
	out.Initramfs.Args = slices.Clone(o.Initramfs.Args)
	out.KernelArgs = slices.Clone(o.KernelArgs)
	return out
}

// Equal compares two origins treating nil and empty lists alike.
func (o Origin) Equal(other Origin) bool {
	return reflect.DeepEqual(o.normalized(), other.normalized())
}

func (o Origin) normalized() Origin {
	out := o.Clone()
	if len(out.Packages) == 0 {
		out.Packages = nil
	}
	if len(out.LocalPackages) == 0 {
		out.LocalPackages = nil
	}
	if len(out.Overrides) == 0 {
		out.Overrides = nil
	}
	if len(out.Initramfs.Args) == 0 {
		out.Initramfs.Args = nil
	}
	if len(out.KernelArgs) == 0 {
		out.KernelArgs = nil
	}
	return out
}

// RemovedPackages lists base package names removed through overrides.
func (o Origin) RemovedPackages() []string {
	var names []string
	for _, override := range o.Overrides {
		if override.Kind == OverrideKindRemove {
			names = append(names, override.Name)
		}
	}
	return names
}

// HasLayering reports whether the origin asks for anything beyond the
// plain base commit.
func (o Origin) HasLayering() bool {
	return len(o.Packages) > 0 ||
		len(o.LocalPackages) > 0 ||
		len(o.Overrides) > 0 ||
		o.Initramfs.Regenerate
}

// WithRebase points the origin at a new refspec. Any pin and unconfigured
// marker belong to the old ref and are dropped.
func (o Origin) WithRebase(refspec Refspec) Origin {
	out := o.Clone()
	out.Refspec = refspec
	out.Pinned = nil
	out.Unconfigured = ""
	return out
}

func (o Origin) WithPinnedCommit(checksum string, version string) Origin {
	out := o.Clone()
	out.Pinned = &PinnedCommit{Checksum: checksum, Version: version}
	return out
}

func (o Origin) WithoutPinnedCommit() Origin {
	out := o.Clone()
	out.Pinned = nil
	return out
}

func (o Origin) WithInitramfs(regenerate bool, args []string) Origin {
	out := o.Clone()
	out.Initramfs = Initramfs{Regenerate: regenerate, Args: slices.Clone(args)}
	return out
}

func (o Origin) WithKernelArgs(args []string) Origin {
	out := o.Clone()
	out.KernelArgs = slices.Clone(args)
	return out
}

// AddPackages requests additional packages by name.
func (o Origin) AddPackages(names []string) (Origin, error) {
	out := o.Clone()
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return Origin{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("package name is empty")
		}
		if slices.Contains(out.Packages, name) {
			return Origin{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("package '%s' is already requested", name))
		}
		if slices.Contains(out.localOverrideNames(), name) {
			return Origin{}, overriddenLocally(name)
		}
		out.Packages = append(out.Packages, name)
	}
	return out, nil
}

// AddLocalPackages records imported local packages. A NEVRA recorded with
// different header content is a conflict.
func (o Origin) AddLocalPackages(records []ImportedPackage) (Origin, error) {
	out := o.Clone()
	for _, pkg := range records {
		if err := out.checkLocalContent(pkg); err != nil {
			return Origin{}, err
		}
		if nevra, err := ParseNevra(pkg.Nevra); err == nil && slices.Contains(out.localOverrideNames(), nevra.Name) {
			return Origin{}, overriddenLocally(nevra.Name)
		}
		out.LocalPackages = append(out.LocalPackages, pkg.Record())
	}
	return out, nil
}

// checkLocalContent rejects a local package whose NEVRA is already recorded,
// either as a requested local package or as a local replacement.
func (o Origin) checkLocalContent(pkg ImportedPackage) error {
	existing := make([]ImportedPackage, 0, len(o.LocalPackages)+len(o.Overrides))
	for _, record := range o.LocalPackages {
		prev, err := ParsePackageRecord(record)
		if err != nil {
			return err
		}
		existing = append(existing, prev)
	}
	for _, override := range o.Overrides {
		if override.Kind == OverrideKindReplaceLocal {
			existing = append(existing, ImportedPackage{HeaderSHA256: override.ContentID, Nevra: override.Nevra})
		}
	}
	for _, prev := range existing {
		if prev.Nevra != pkg.Nevra {
			continue
		}
		if prev.HeaderSHA256 != pkg.HeaderSHA256 {
			return errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg(fmt.Sprintf("package '%s' was previously imported with different content", pkg.Nevra))
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("package '%s' is already requested", pkg.Nevra))
	}
	return nil
}

func (o Origin) localOverrideNames() []string {
	var names []string
	for _, override := range o.Overrides {
		if override.Kind != OverrideKindReplaceLocal {
			continue
		}
		if nevra, err := ParseNevra(override.Nevra); err == nil {
			names = append(names, nevra.Name)
		}
	}
	return names
}

func overriddenLocally(name string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("package '%s' is already overridden by a local package", name))
}

// RemovePackages drops requested packages. Each token may be a name
// requested from repositories, or the name or NEVRA of a local package.
func (o Origin) RemovePackages(names []string) (Origin, error) {
	out := o.Clone()
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if idx := slices.Index(out.Packages, name); idx >= 0 {
			out.Packages = slices.Delete(out.Packages, idx, idx+1)
			continue
		}
		idx := slices.IndexFunc(out.LocalPackages, func(record string) bool {
			pkg, err := ParsePackageRecord(record)
			if err != nil {
				return false
			}
			if pkg.Nevra == name {
				return true
			}
			nevra, err := ParseNevra(pkg.Nevra)
			return err == nil && nevra.Name == name
		})
		if idx < 0 {
			return Origin{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("package '%s' is not currently requested", name))
		}
		out.LocalPackages = slices.Delete(out.LocalPackages, idx, idx+1)
	}
	return out, nil
}

func (o Origin) AddOverrides(overrides []Override) (Origin, error) {
	out := o.Clone()
	for _, override := range overrides {
		key := override.Key()
		if strings.TrimSpace(key) == "" {
			return Origin{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("override target is empty")
		}
		if override.Kind == OverrideKindReplaceLocal {
			if err := out.checkReplaceLocal(override); err != nil {
				return Origin{}, err
			}
			out.Overrides = append(out.Overrides, override)
			continue
		}
		for _, existing := range out.Overrides {
			if existing.Kind == override.Kind && existing.Key() == key {
				return Origin{}, errbuilder.New().
					WithCode(errbuilder.CodeInvalidArgument).
					WithMsg(fmt.Sprintf("override already exists for package '%s'", key))
			}
		}
		out.Overrides = append(out.Overrides, override)
	}
	return out, nil
}

// checkReplaceLocal validates a local replacement against the recorded local
// content and against packages requested by a name the replacement shadows.
func (o Origin) checkReplaceLocal(override Override) error {
	if err := o.checkLocalContent(ImportedPackage{HeaderSHA256: override.ContentID, Nevra: override.Nevra}); err != nil {
		return err
	}
	nevra, err := ParseNevra(override.Nevra)
	if err != nil {
		return err
	}
	if slices.Contains(o.Packages, nevra.Name) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("package '%s' is already requested", nevra.Name))
	}
	for _, record := range o.LocalPackages {
		pkg, err := ParsePackageRecord(record)
		if err != nil {
			return err
		}
		if local, err := ParseNevra(pkg.Nevra); err == nil && local.Name == nevra.Name {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("package '%s' is already requested as a local package", nevra.Name))
		}
	}
	return nil
}

// RemoveOverride drops the override of the given kind addressed by key.
// The boolean is false, and the origin returned unchanged, when no such
// override exists.
func (o Origin) RemoveOverride(key string, kind OverrideKind) (Origin, bool) {
	idx := slices.IndexFunc(o.Overrides, func(override Override) bool {
		return override.Kind == kind && override.Key() == key
	})
	if idx < 0 {
		return o, false
	}
	out := o.Clone()
	out.Overrides = slices.Delete(out.Overrides, idx, idx+1)
	return out, true
}

func (o Origin) RemoveAllOverrides() (Origin, bool) {
	if len(o.Overrides) == 0 {
		return o, false
	}
	out := o.Clone()
	out.Overrides = nil
	return out, true
}
