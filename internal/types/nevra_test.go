package types

import (
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseNevra(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Nevra
		wantErr bool
	}{
		{
			name:  "plain",
			input: "bash-5.2.15-3.fc39.x86_64",
			want:  Nevra{Name: "bash", Version: "5.2.15", Release: "3.fc39", Arch: "x86_64"},
		},
		{
			name:  "dashed name with epoch",
			input: "vim-minimal-2:9.0.2120-1.x86_64",
			want:  Nevra{Name: "vim-minimal", Epoch: "2", Version: "9.0.2120", Release: "1", Arch: "x86_64"},
		},
		{name: "missing arch", input: "bash-5.2.15-3", wantErr: true},
		{name: "missing release", input: "bash.x86_64", wantErr: true},
		{name: "empty epoch", input: "bash-:5.2-1.x86_64", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNevra(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected nevra (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNevraStringOmitsZeroEpoch(t *testing.T) {
	require.Equal(t, "nano-7.2-5.x86_64", Nevra{Name: "nano", Epoch: "0", Version: "7.2", Release: "5", Arch: "x86_64"}.String())
	require.Equal(t, "vim-2:9.0-1.noarch", Nevra{Name: "vim", Epoch: "2", Version: "9.0", Release: "1", Arch: "noarch"}.String())
}

func TestNevraMatches(t *testing.T) {
	pkg := Nevra{Name: "vim-minimal", Version: "9.0", Release: "1", Arch: "x86_64"}
	for _, pattern := range []string{"vim-minimal", "vim-*", "vim-minimal.x86_64", "vim-minimal-9.0", "vim-minimal-9.0-1", "vim-minimal-9.0-1.x86_64"} {
		require.True(t, pkg.Matches(pattern), pattern)
	}
	for _, pattern := range []string{"", "vim", "vim-minimal.aarch64", "emacs*"} {
		require.False(t, pkg.Matches(pattern), pattern)
	}
}

func TestParsePackageRecord(t *testing.T) {
	record := ImportedPackage{HeaderSHA256: "abc123", Nevra: "htop-3.3.0-1.x86_64"}.Record()
	require.Equal(t, "abc123:htop-3.3.0-1.x86_64", record)

	parsed, err := ParsePackageRecord(record)
	require.NoError(t, err)
	require.Equal(t, "htop-3.3.0-1.x86_64", parsed.Nevra)

	_, err = ParsePackageRecord("htop-3.3.0-1.x86_64")
	require.Error(t, err)
}
