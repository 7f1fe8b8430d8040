package tenant

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignalPrecedenceHeaderOverCookieOverSubdomain(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "http://acme.craftline.example/orders", nil)
	r.Header.Set(SignalHeader, "From-Header")
	r.Header.Set("Cookie", SignalCookie+"=from-cookie")

	slug, err := SignalFromRequest(r)
	require.NoError(t, err)
	require.Equal(t, "from-header", slug)

	r.Header.Del(SignalHeader)
	slug, err = SignalFromRequest(r)
	require.NoError(t, err)
	require.Equal(t, "from-cookie", slug)

	r.Header.Del("Cookie")
	slug, err = SignalFromRequest(r)
	require.NoError(t, err)
	require.Equal(t, "acme", slug)
}

func TestSignalFailsClosedWithoutAnySignal(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "http://craftline.example/orders", nil)
	_, err := SignalFromRequest(r)
	require.ErrorIs(t, err, ErrNoSignal)
}

func TestSubdomainLabel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"acme.craftline.example":      "acme",
		"acme.craftline.example:8080": "acme",
		"www.craftline.example":       "",
		"craftline.example":           "",
		"localhost":                   "",
		"Big-Shop.craftline.example":  "big-shop",
	}
	for host, want := range cases {
		require.Equal(t, want, subdomainLabel(host), host)
	}
}

func TestBuildDatabaseName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tenant_big_shop_2026", BuildDatabaseName("big-shop", 2026))
}

func TestValidSlug(t *testing.T) {
	t.Parallel()

	require.True(t, ValidSlug("acme"))
	require.True(t, ValidSlug("big-shop-2"))
	require.False(t, ValidSlug("Acme"))
	require.False(t, ValidSlug("-acme"))
	require.False(t, ValidSlug("acme_shop"))
	require.False(t, ValidSlug(""))
}
