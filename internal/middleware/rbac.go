package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/response"
)

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		code := response.ErrForbidden
		if len(roles) == 1 {
			switch roles[0] {
			case model.RoleStudent:
				code = response.ErrStudentAccessOnly
			case model.RoleTeacher:
				code = response.ErrTeacherAccessOnly
			}
		}
		response.AbortFail(c, http.StatusForbidden, code)
	}
}

// RequireSelf restricts students to routes whose path parameter param names
// their own user id. Teachers pass; handlers check test authorship for them.
func RequireSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		id, err := strconv.ParseInt(c.Param(param), 10, 64)
		if err != nil || id <= 0 {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		if claims.Role == model.RoleStudent && claims.UserID != id {
			response.AbortFail(c, http.StatusForbidden, response.ErrNotOwnRecord)
			return
		}
		c.Next()
	}
}

// RequireOwner restricts a route to the account whose id is in path
// parameter param, whatever its role.
func RequireOwner(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		id, err := strconv.ParseInt(c.Param(param), 10, 64)
		if err != nil || id <= 0 {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		if claims.UserID != id {
			response.AbortFail(c, http.StatusForbidden, response.ErrNotOwnRecord)
			return
		}
		c.Next()
	}
}
