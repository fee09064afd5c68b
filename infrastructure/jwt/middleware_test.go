package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/jwt"
)

const secret = "test-secret"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", jwt.Middleware(secret), func(c *gin.Context) {
		claims, ok := jwt.GetClaims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.Sub)
	})
	return r
}

func sign(t *testing.T, key string, exp time.Time) string {
	t.Helper()
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, jwt.Claims{
		Sub:              "user-1",
		RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: gojwt.NewNumericDate(exp)},
	})
	s, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func do(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	r := newRouter()

	w := do(r, "Bearer "+sign(t, secret, time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer "+sign(t, "other", time.Now().Add(time.Hour))).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer "+sign(t, secret, time.Now().Add(-time.Hour))).Code)
}
