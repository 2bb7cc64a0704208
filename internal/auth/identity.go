package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Identity is the authenticated caller. Every ledger operation receives it
// explicitly.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Wallet string `json:"wallet,omitempty"`
}

// SetIdentity stores id on the request context
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(identityKey, id)
}

// FromContext returns the identity resolved by RequireAuth
func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok && id.UserID != ""
}

// MustIdentity returns the caller's identity, or writes 401 and returns
// false when the request carries none
func MustIdentity(c *gin.Context) (Identity, bool) {
	id, ok := FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "code": "USER_NOT_AUTHENTICATED"})
	}
	return id, ok
}
