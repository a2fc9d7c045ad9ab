package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userKey = "auth.user"

// User is the authenticated caller extracted from a validated token.
type User struct {
	ID          string
	Roles       []string
	Permissions []string
	TenantID    string
}

// IsAdmin reports whether the caller carries an administrative role.
func (u User) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == "admin" || r == "super_admin" {
			return true
		}
	}
	return false
}

// Verifier validates RS256 bearer tokens against a KeySet.
type Verifier struct {
	Keys     *KeySet
	Audience string
	Issuer   string
}

func NewVerifier(jwksURL, audience, issuer string) *Verifier {
	return &Verifier{Keys: NewKeySet(jwksURL), Audience: audience, Issuer: issuer}
}

// Verify parses and validates a raw token and returns the caller.
func (v *Verifier) Verify(tokenString string) (User, error) {
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing key ID")
		}
		return v.Keys.Key(kid)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, keyfunc, opts...); err != nil {
		return User{}, fmt.Errorf("invalid token: %w", err)
	}
	sub, _ := claims["sub"].(string)
	return User{
		ID:          sub,
		Roles:       stringSlice(claims["roles"]),
		Permissions: stringSlice(claims["permissions"]),
		TenantID:    str(claims["tenant_id"]),
	}, nil
}

// Middleware authenticates the request and stores the caller in the gin
// context. Missing or invalid credentials abort with 401.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		user, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the authenticated caller is an admin.
// Must run after Middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := FromContext(c)
		if !ok || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// InternalSecret authenticates service-to-service calls by shared secret.
func InternalSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader("X-Internal-Secret") != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid internal API secret"})
			return
		}
		c.Next()
	}
}

// FromContext returns the authenticated caller stored by Middleware.
func FromContext(c *gin.Context) (User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return User{}, false
	}
	user, ok := v.(User)
	return user, ok
}

// StubUser is a test/internal helper that injects a fixed caller without
// token validation.
func StubUser(u User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(userKey, u)
		c.Next()
	}
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
