package relay

import (
	"github.com/gin-gonic/gin"

	"kutter-server/internal/auth"
)

// claimsFromRequest authenticates a socket upgrade request. The token may
// arrive as a query parameter or as the session cookie; failure means the
// upgrade is rejected outright.
func claimsFromRequest(c *gin.Context, cfg auth.TokenConfig) (*auth.Claims, bool) {
	token := c.Query("token")
	if token == "" {
		if v, err := c.Cookie("token"); err == nil {
			token = v
		}
	}
	if token == "" {
		return nil, false
	}

	claims, err := auth.VerifyToken(token, cfg)
	if err != nil {
		return nil, false
	}
	return claims, true
}
