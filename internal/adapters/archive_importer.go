package adapters

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

// PackageHeaderEntry is the archive member holding the package header.
// It must be the first member of the archive.
const PackageHeaderEntry = "HEADER.yaml"

type packageHeader struct {
	Name    string `yaml:"name"`
	Epoch   string `yaml:"epoch,omitempty"`
	Version string `yaml:"version"`
	Release string `yaml:"release"`
	Arch    string `yaml:"arch"`
	Relabel bool   `yaml:"relabel,omitempty"`
}

// ArchiveImporter reads package archives: a tar stream whose first member
// is a YAML header naming the package, followed by the payload files.
type ArchiveImporter struct{}

func NewArchiveImporter() ArchiveImporter {
	return ArchiveImporter{}
}

func (ArchiveImporter) ImportArchive(ctx context.Context, batch ports.ImportBatch, archive io.Reader, policy ports.ImportPolicy) (types.ImportedPackage, error) {
	if err := ctx.Err(); err != nil {
		return types.ImportedPackage{}, err
	}
	reader := tar.NewReader(archive)
	first, err := reader.Next()
	if err != nil {
		return types.ImportedPackage{}, invalidArchive("missing header", err)
	}
	if first.Name != PackageHeaderEntry {
		return types.ImportedPackage{}, invalidArchive(fmt.Sprintf("first member is %s, expected %s", first.Name, PackageHeaderEntry), nil)
	}
	rawHeader, err := io.ReadAll(reader)
	if err != nil {
		return types.ImportedPackage{}, invalidArchive("unreadable header", err)
	}
	var header packageHeader
	if err := yaml.Unmarshal(rawHeader, &header); err != nil {
		return types.ImportedPackage{}, invalidArchive("malformed header", err)
	}
	nevra := types.Nevra{
		Name:    strings.TrimSpace(header.Name),
		Epoch:   strings.TrimSpace(header.Epoch),
		Version: strings.TrimSpace(header.Version),
		Release: strings.TrimSpace(header.Release),
		Arch:    strings.TrimSpace(header.Arch),
	}
	if nevra.Name == "" || nevra.Version == "" || nevra.Release == "" || nevra.Arch == "" {
		return types.ImportedPackage{}, invalidArchive("header must set name, version, release and arch", nil)
	}

	var payload bytes.Buffer
	writer := tar.NewWriter(&payload)
	for {
		if err := ctx.Err(); err != nil {
			return types.ImportedPackage{}, err
		}
		member, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.ImportedPackage{}, invalidArchive("corrupt payload", err)
		}
		if err := writer.WriteHeader(member); err != nil {
			return types.ImportedPackage{}, invalidArchive("corrupt payload", err)
		}
		if _, err := io.Copy(writer, reader); err != nil {
			return types.ImportedPackage{}, invalidArchive("corrupt payload", err)
		}
	}
	if err := writer.Close(); err != nil {
		return types.ImportedPackage{}, invalidArchive("corrupt payload", err)
	}

	header.Relabel = policy.Relabel
	stored, err := yaml.Marshal(header)
	if err != nil {
		return types.ImportedPackage{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode package header").
			WithCause(err)
	}
	sum := sha256.Sum256(rawHeader)
	pkg := types.ImportedPackage{
		HeaderSHA256: hex.EncodeToString(sum[:]),
		Nevra:        nevra.String(),
	}
	if err := batch.PutPackage(ctx, pkg, stored, payload.Bytes()); err != nil {
		return types.ImportedPackage{}, err
	}
	return pkg, nil
}

func invalidArchive(reason string, cause error) error {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("invalid package archive: " + reason)
	if cause != nil {
		return builder.WithCause(cause)
	}
	return builder
}
