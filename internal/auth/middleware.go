package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenQueryParam carries the token for clients that can't set headers,
// such as browser websocket connections.
const TokenQueryParam = "token"

// Middleware guards the bridge with a shared bearer token.
// An empty token disables the check.
type Middleware struct {
	token []byte
}

func NewMiddleware(token string) *Middleware {
	return &Middleware{token: []byte(token)}
}

// Enabled reports whether requests must carry a token.
func (m *Middleware) Enabled() bool { return m != nil && len(m.token) > 0 }

// GinAuth returns a Gin middleware function for authentication
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}
		if !m.authenticate(c.Request) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Authentication required",
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// authenticate accepts "Authorization: Bearer <token>" or ?token=<token>.
func (m *Middleware) authenticate(r *http.Request) bool {
	var presented string
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			presented = strings.TrimSpace(value)
		}
	}
	if presented == "" {
		presented = r.URL.Query().Get(TokenQueryParam)
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), m.token) == 1
}
