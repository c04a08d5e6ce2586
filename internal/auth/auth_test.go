package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrincipal(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/documents", nil)
	r.Header.Set(HeaderUserID, "u1")
	r.Header.Set(HeaderUserRole, "member")
	r.Header.Set(HeaderTenantID, "t1")

	p, err := ResolvePrincipal(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "member", p.Role)
	assert.Equal(t, "t1", p.TenantID)
}

func TestResolvePrincipalMissingUser(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/documents", nil)

	_, err := ResolvePrincipal(r)
	assert.Error(t, err)
}

func TestResolveScope(t *testing.T) {
	tenant := uuid.New()

	r := httptest.NewRequest("GET", "/v1/documents", nil)
	r.Header.Set(HeaderTenantID, tenant.String())

	scope := ResolveScope(r, false)
	require.True(t, scope.Filtered())
	assert.Equal(t, tenant, *scope.Tenant)
}

func TestResolveScopeCrossTenantAdminOnly(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/documents", nil)
	r.Header.Set(HeaderTenantID, "*")

	scope := ResolveScope(r, true)
	assert.True(t, scope.CrossTenant)

	// Для не-администратора сквозная область не выдается
	scope = ResolveScope(r, false)
	assert.False(t, scope.CrossTenant)
	assert.False(t, scope.Filtered())
}
