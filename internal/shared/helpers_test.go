package shared

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCommandError(t *testing.T) {
	base := errors.New("exit status 1")
	err := CommandError([]byte("  permission denied\n"), base)
	require.ErrorIs(t, err, base)
	require.Equal(t, "permission denied: exit status 1", err.Error())
	require.Equal(t, base, CommandError(nil, base))
}

func TestHTTPStatusError(t *testing.T) {
	require.Equal(t, "status=404 url=http://repo/packages.yaml", HTTPStatusError(404, "http://repo/packages.yaml").Error())
}

func TestTrimNonEmpty(t *testing.T) {
	got := TrimNonEmpty([]string{" a ", "", "  ", "b"})
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Fatalf("unexpected values (-want +got):\n%s", diff)
	}
}
