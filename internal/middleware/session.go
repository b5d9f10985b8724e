package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/service"
)

// RevocationChecker reports whether a token id was logged out.
type RevocationChecker interface {
	CheckRevoked(ctx context.Context, jti string) error
}

// CheckRevoked rejects tokens whose id was revoked by logout.
// Must run after RequireAuth.
func CheckRevoked(checker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := checker.CheckRevoked(c.Request.Context(), claims.ID); err != nil {
			if errors.Is(err, service.ErrTokenRevoked) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
				return
			}
			// Redis being down must not lock every user out.
			_ = c.Error(err)
		}

		c.Next()
	}
}
