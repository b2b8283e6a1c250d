package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type AuthMiddleware struct {
	jwtSecret   string
	internalKey string
	skipPaths   map[string]bool
}

func NewAuthMiddleware(jwtSecret, internalKey string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret:   jwtSecret,
		internalKey: internalKey,
		skipPaths: map[string]bool{
			"/health":  true,
			"/ready":   true,
			"/version": true,
			"/metrics": true,
		},
	}
}

type Claims struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth validates bearer tokens and stores the caller identity on the
// request context. Internal service calls use X-Internal-Key instead.
func (a *AuthMiddleware) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		if key := c.GetHeader("X-Internal-Key"); key != "" && key == a.internalKey {
			c.Set("internal", true)
			c.Set("role", "internal")
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Authorization header must be 'Bearer <token>'")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set("account_id", claims.AccountID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireAccountMatch rejects requests where the token's account does not
// match the accountId path parameter. Admin and internal callers bypass it.
func (a *AuthMiddleware) RequireAccountMatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if role == "admin" || role == "internal" {
			c.Next()
			return
		}

		pathID := c.Param("accountId")
		if pathID == "" {
			c.Next()
			return
		}

		tokenID, ok := c.Get("account_id")
		if !ok || fmt.Sprintf("%d", tokenID) != pathID {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "Access denied",
				"message": "Token does not grant access to this account",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdmin restricts an endpoint to admin or internal callers.
func (a *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if role != "admin" && role != "internal" {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "Access denied",
				"message": "Admin privileges required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"message": message,
	})
	c.Abort()
}
