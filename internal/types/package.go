package types

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// ImportedPackage identifies a package imported from a local archive.
type ImportedPackage struct {
	HeaderSHA256 string
	Nevra        string
}

// Record renders the sha256:nevra form stored in origins.
func (p ImportedPackage) Record() string {
	return p.HeaderSHA256 + ":" + p.Nevra
}

func ParsePackageRecord(record string) (ImportedPackage, error) {
	sha, nevra, ok := strings.Cut(strings.TrimSpace(record), ":")
	if !ok || sha == "" || nevra == "" {
		return ImportedPackage{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid package record: %q", record))
	}
	return ImportedPackage{HeaderSHA256: sha, Nevra: nevra}, nil
}

// PackageArchive is an open package archive whose ownership can be handed
// over exactly once.
type PackageArchive struct {
	mu    sync.Mutex
	name  string
	rc    io.ReadCloser
	taken bool
}

func NewPackageArchive(name string, rc io.ReadCloser) *PackageArchive {
	return &PackageArchive{name: name, rc: rc}
}

func OpenPackageArchive(path string) (*PackageArchive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("failed to open package archive %s", path)).
			WithCause(err)
	}
	return NewPackageArchive(path, file), nil
}

func (a *PackageArchive) Name() string {
	return a.name
}

// Take transfers the underlying reader to the caller, who becomes
// responsible for closing it. A second Take fails.
func (a *PackageArchive) Take() (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.taken {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("package archive %s was already transferred", a.name))
	}
	a.taken = true
	return a.rc, nil
}

// Close releases the archive if it was never taken.
func (a *PackageArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.taken {
		return nil
	}
	a.taken = true
	if a.rc == nil {
		return nil
	}
	return a.rc.Close()
}
