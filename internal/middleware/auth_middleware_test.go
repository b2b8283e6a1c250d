package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	auth := NewAuthMiddleware(testSecret, "internal-key")
	router := gin.New()
	router.Use(auth.JWTAuth())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/accounts/:accountId/balance", auth.RequireAccountMatch(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/api/accounts", auth.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return router
}

func signToken(t *testing.T, accountID int64, role string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		AccountID: accountID,
		Username:  "tester",
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthSkipsHealthEndpoint(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthRejectsMissingToken(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, http.MethodGet, "/api/accounts/7/balance", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthRejectsBadToken(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, http.MethodGet, "/api/accounts/7/balance", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, http.MethodGet, "/api/accounts/7/balance", signToken(t, 7, "user"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAccountMatchBlocksOtherAccounts(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, http.MethodGet, "/api/accounts/8/balance", signToken(t, 7, "user"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAccountMatchAllowsAdmin(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, http.MethodGet, "/api/accounts/8/balance", signToken(t, 7, "admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdminBlocksUsers(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, http.MethodPost, "/api/accounts", signToken(t, 7, "user"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodPost, "/api/accounts", signToken(t, 7, "admin"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestInternalKeyBypassesJWT(t *testing.T) {
	router := testRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", nil)
	req.Header.Set("X-Internal-Key", "internal-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}
