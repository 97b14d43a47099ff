package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"parley/internal/core"
	"parley/internal/domain"
)

const ctxUserKey = "uid"

// authRequired resolves the session token from the cookie or the
// Authorization header and stashes the user id on the context.
func (a *API) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(a.cookieName)
		if token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if token == "" {
			fail(c, core.ErrUnauthorized)
			return
		}
		uid, err := a.tokens.VerifySession(token)
		if err != nil {
			fail(c, err)
			return
		}
		c.Set(ctxUserKey, string(uid))
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.UserID {
	return domain.UserID(c.GetString(ctxUserKey))
}
