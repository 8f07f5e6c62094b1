package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyIsStableAndTotal(t *testing.T) {
	k1 := Key("", "https://example.com/a", "Title")
	k2 := Key("", "https://example.com/a", "Title")
	require.Equal(t, k1, k2)
	require.NotEmpty(t, k1)
}

func TestKeyDistinguishesInputs(t *testing.T) {
	k1 := Key("", "https://example.com/a", "Title")
	k2 := Key("", "https://example.com/b", "Title")
	require.NotEqual(t, k1, k2)

	k3 := Key("upstream-1", "https://example.com/a", "Title")
	k4 := Key("upstream-2", "https://example.com/a", "Title")
	require.NotEqual(t, k3, k4)
}

func TestKeyPrefersUpstreamID(t *testing.T) {
	k1 := Key("upstream-1", "https://example.com/a", "Title A")
	k2 := Key("upstream-1", "https://example.com/b", "Title B")
	require.Equal(t, k1, k2, "same upstream id must dedupe regardless of url/title drift")
}
