package core

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

const (
	revisionChecksumPrefix = "revision="
	revisionVersionPrefix  = "version="
	checksumLength         = 64
)

// ParseRevision classifies a revision string. Exactly one of checksum and
// version is returned non-empty.
func ParseRevision(revision string) (checksum string, version string, err error) {
	raw := strings.TrimSpace(revision)
	switch {
	case raw == "":
		return "", "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("revision is empty")
	case strings.HasPrefix(raw, revisionChecksumPrefix):
		value := strings.TrimPrefix(raw, revisionChecksumPrefix)
		if !IsChecksum(value) {
			return "", "", errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("invalid checksum in revision '%s'", revision))
		}
		return strings.ToLower(value), "", nil
	case strings.HasPrefix(raw, revisionVersionPrefix):
		value := strings.TrimPrefix(raw, revisionVersionPrefix)
		if value == "" {
			return "", "", errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("empty version in revision '%s'", revision))
		}
		return "", value, nil
	case IsChecksum(raw):
		return strings.ToLower(raw), "", nil
	default:
		return "", raw, nil
	}
}

// IsChecksum reports whether value looks like a sha256 content checksum.
func IsChecksum(value string) bool {
	if len(value) != checksumLength {
		return false
	}
	for _, r := range strings.ToLower(value) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// ShortChecksum abbreviates a checksum for messages.
func ShortChecksum(checksum string) string {
	if len(checksum) <= 7 {
		return checksum
	}
	return checksum[:7]
}
