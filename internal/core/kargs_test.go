package core

import (
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseKernelArgsKeepsQuotedValues(t *testing.T) {
	args := ParseKernelArgs(`root=UUID=abc  quiet  dyndbg="file a.c +p" rhgb`)
	want := []string{"root=UUID=abc", "quiet", `dyndbg="file a.c +p"`, "rhgb"}
	if diff := cmp.Diff(want, args.Strings()); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
}

func TestKernelArgEditApply(t *testing.T) {
	existing := "root=/dev/sda1 quiet console=tty0 console=ttyS0,115200 rw"
	tests := []struct {
		name     string
		edit     KernelArgEdit
		want     []string
		wantErr  bool
		wantCode errbuilder.ErrCode
	}{
		{
			name: "delete suppresses append and replace",
			edit: KernelArgEdit{Existing: "a b=1", Delete: []string{"a"}, Append: []string{"c"}, Replace: []string{"b=2"}},
			want: []string{"b=1"},
		},
		{
			name: "delete exact value",
			edit: KernelArgEdit{Existing: existing, Delete: []string{"console=tty0"}},
			want: []string{"root=/dev/sda1", "quiet", "console=ttyS0,115200", "rw"},
		},
		{
			name:     "delete bare key with multiple values",
			edit:     KernelArgEdit{Existing: existing, Delete: []string{"console"}},
			wantErr:  true,
			wantCode: errbuilder.CodeInvalidArgument,
		},
		{
			name:     "delete missing",
			edit:     KernelArgEdit{Existing: existing, Delete: []string{"nomodeset"}},
			wantErr:  true,
			wantCode: errbuilder.CodeNotFound,
		},
		{
			name: "replace then append",
			edit: KernelArgEdit{Existing: existing, Replace: []string{"root=/dev/sdb1"}, Append: []string{"nomodeset"}},
			want: []string{"root=/dev/sdb1", "quiet", "console=tty0", "console=ttyS0,115200", "rw", "nomodeset"},
		},
		{
			name: "replace specific value",
			edit: KernelArgEdit{Existing: existing, Replace: []string{"console=tty0=tty1"}},
			want: []string{"root=/dev/sda1", "quiet", "console=tty1", "console=ttyS0,115200", "rw"},
		},
		{
			name:     "replace ambiguous key",
			edit:     KernelArgEdit{Existing: existing, Replace: []string{"console=tty1"}},
			wantErr:  true,
			wantCode: errbuilder.CodeInvalidArgument,
		},
		{
			name:     "replace missing key",
			edit:     KernelArgEdit{Existing: existing, Replace: []string{"selinux=0"}},
			wantErr:  true,
			wantCode: errbuilder.CodeNotFound,
		},
		{
			name: "append duplicates are kept",
			edit: KernelArgEdit{Existing: "quiet", Append: []string{"quiet", "", "mitigations=off"}},
			want: []string{"quiet", "quiet", "mitigations=off"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.edit.Apply()
			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, tt.wantCode, errbuilder.CodeOf(err))
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected args (-want +got):\n%s", diff)
			}
		})
	}
}
