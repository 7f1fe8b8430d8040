package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRequirePrincipalAttachesIdentity(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	roleID := uuid.New()

	var got Principal
	handler := RequirePrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	r := httptest.NewRequest("POST", "/api/v1/access-control/apply", nil)
	r.Header.Set(UserHeader, userID.String())
	r.Header.Set(RoleHeader, roleID.String())
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, userID, got.UserID)
	require.Equal(t, roleID, got.RoleID)
}

func TestRequirePrincipalRejectsMissingUser(t *testing.T) {
	t.Parallel()

	handler := RequirePrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	r := httptest.NewRequest("POST", "/api/v1/access-control/apply", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdminToken(t *testing.T) {
	t.Parallel()

	handler := RequireAdminToken("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest("POST", "/api/v1/admin/tenants", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusForbidden, w.Code)

	r.Header.Set(AdminTokenHeader, "s3cret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)
}
