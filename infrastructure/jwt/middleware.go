// Package jwt guards the API with HS256 bearer tokens issued by the auth service.
package jwt

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const claimsKey = "claims"

// Claims carries the caller identity. Sub is the user id.
type Claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

var errSigningMethod = errors.New("unexpected signing method")

// Middleware rejects requests without a valid bearer token.
func Middleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	keyFunc := func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errSigningMethod
		}
		return key, nil
	}

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing or malformed authorization header"})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, keyFunc)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// GetClaims returns the claims stored by Middleware.
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
