package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRevision(t *testing.T) {
	csum := strings.Repeat("ab", 32)
	tests := []struct {
		name         string
		input        string
		wantChecksum string
		wantVersion  string
		wantErr      bool
	}{
		{name: "bare checksum", input: csum, wantChecksum: csum},
		{name: "upper checksum", input: strings.ToUpper(csum), wantChecksum: csum},
		{name: "prefixed checksum", input: "revision=" + csum, wantChecksum: csum},
		{name: "prefixed version", input: "version=39.20240101.0", wantVersion: "39.20240101.0"},
		{name: "bare version", input: "39.20240101.0", wantVersion: "39.20240101.0"},
		{name: "short hex is a version", input: "abc123", wantVersion: "abc123"},
		{name: "bad prefixed checksum", input: "revision=abc", wantErr: true},
		{name: "empty version", input: "version=", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checksum, version, err := ParseRevision(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantChecksum, checksum)
			require.Equal(t, tt.wantVersion, version)
		})
	}
}
