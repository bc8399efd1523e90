//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/testutil"
)

func TestRegister(t *testing.T) {
	tenant := testutil.RandomSlug("tenant")

	t.Run("creates user with base employee role", func(t *testing.T) {
		c := newTestClient(t)
		email := testutil.RandomEmail()

		resp, err := c.POST("/api/v1/auth/register", map[string]any{
			"tenant_id": tenant,
			"email":     email,
			"password":  testPassword,
			"name":      "New Employee",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		user := decodeData[struct {
			ID       string   `json:"id"`
			TenantID string   `json:"tenant_id"`
			Email    string   `json:"email"`
			Roles    []string `json:"roles"`
		}](t, resp)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, tenant, user.TenantID)
		assert.Equal(t, email, user.Email)
		assert.Equal(t, []string{string(domain.RoleEmployee)}, user.Roles)
	})

	t.Run("rejects duplicate email within tenant", func(t *testing.T) {
		c := newTestClient(t)
		email := testutil.RandomEmail()
		c.RegisterUser(t, tenant, email, testPassword, "First")

		resp, err := c.POST("/api/v1/auth/register", map[string]any{
			"tenant_id": tenant,
			"email":     email,
			"password":  testPassword,
			"name":      "Second",
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("same email may register in another tenant", func(t *testing.T) {
		c := newTestClient(t)
		email := testutil.RandomEmail()
		c.RegisterUser(t, tenant, email, testPassword, "Tenant A")
		c.RegisterUser(t, testutil.RandomSlug("tenant"), email, testPassword, "Tenant B")
	})

	t.Run("rejects short password", func(t *testing.T) {
		c := newTestClient(t)
		resp, err := c.POST("/api/v1/auth/register", map[string]any{
			"tenant_id": tenant,
			"email":     testutil.RandomEmail(),
			"password":  "short",
			"name":      "Weak",
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogin(t *testing.T) {
	tenant := testutil.RandomSlug("tenant")
	email := testutil.RandomEmail()

	c := newTestClient(t)
	c.RegisterUser(t, tenant, email, testPassword, "Login User")

	t.Run("sets auth cookies", func(t *testing.T) {
		resp, err := c.POST("/api/v1/auth/login", map[string]any{
			"tenant_id": tenant,
			"email":     email,
			"password":  testPassword,
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		cookies := map[string]*http.Cookie{}
		for _, ck := range resp.Cookies() {
			cookies[ck.Name] = ck
		}
		require.Contains(t, cookies, "access_token")
		require.Contains(t, cookies, "refresh_token")
		require.Contains(t, cookies, "csrf_token")
		assert.True(t, cookies["access_token"].HttpOnly)
		assert.True(t, cookies["refresh_token"].HttpOnly)
		// The CSRF token must be readable by the frontend.
		assert.False(t, cookies["csrf_token"].HttpOnly)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		resp, err := c.POST("/api/v1/auth/login", map[string]any{
			"tenant_id": tenant,
			"email":     email,
			"password":  "wrong-password",
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects login against the wrong tenant", func(t *testing.T) {
		resp, err := c.POST("/api/v1/auth/login", map[string]any{
			"tenant_id": testutil.RandomSlug("tenant"),
			"email":     email,
			"password":  testPassword,
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestMe(t *testing.T) {
	tenant := testutil.RandomSlug("tenant")
	user := newUser(t, tenant, "")

	t.Run("returns the authenticated user", func(t *testing.T) {
		resp, err := user.Client.GET("/api/v1/me")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		me := decodeData[struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		}](t, resp)
		assert.Equal(t, user.ID, me.ID)
		assert.Equal(t, user.Email, me.Email)
	})

	t.Run("requires authentication", func(t *testing.T) {
		resp, err := newTestClient(t).GET("/api/v1/me")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestUserAdministration(t *testing.T) {
	tenant := testutil.RandomSlug("tenant")
	admin := newUser(t, tenant, "", domain.RoleAdmin)
	employee := newUser(t, tenant, "")

	t.Run("admin lists tenant users", func(t *testing.T) {
		resp, err := admin.Client.GET("/api/v1/users")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		users := decodeData[[]struct {
			ID string `json:"id"`
		}](t, resp)
		ids := make([]string, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		assert.Contains(t, ids, admin.ID)
		assert.Contains(t, ids, employee.ID)
	})

	t.Run("employee may not list users", func(t *testing.T) {
		resp, err := employee.Client.GET("/api/v1/users")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin updates roles", func(t *testing.T) {
		resp, err := admin.Client.PUT("/api/v1/users/"+employee.ID+"/roles", map[string]any{
			"roles": []string{string(domain.RoleEmployee), string(domain.RoleHSSEExpert)},
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		updated := decodeData[struct {
			Roles []string `json:"roles"`
		}](t, resp)
		assert.Contains(t, updated.Roles, string(domain.RoleHSSEExpert))
	})

	t.Run("employee may not update roles", func(t *testing.T) {
		resp, err := employee.Client.PUT("/api/v1/users/"+admin.ID+"/roles", map[string]any{
			"roles": []string{string(domain.RoleAdmin)},
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestLogout(t *testing.T) {
	tenant := testutil.RandomSlug("tenant")
	user := newUser(t, tenant, "")

	resp, err := user.Client.POST("/api/v1/auth/logout", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = user.Client.GET("/api/v1/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
