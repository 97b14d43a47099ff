// Package http exposes the REST surface: accounts, friendships, chats,
// attachments and call logs. Realtime traffic stays on the websocket
// gateway; handlers here only push notifications through the router.
package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"parley/internal/app"
	"parley/internal/auth"
	"parley/internal/media"
	"parley/internal/storage"
)

type API struct {
	store      *storage.Store
	media      media.Store
	tokens     *auth.Manager
	router     *app.Router
	calls      *app.CallManager
	cookieName string
	secure     bool
}

func NewAPI(store *storage.Store, files media.Store, tokens *auth.Manager, router *app.Router, calls *app.CallManager, cookieName string, secure bool) *API {
	return &API{
		store:      store,
		media:      files,
		tokens:     tokens,
		router:     router,
		calls:      calls,
		cookieName: cookieName,
		secure:     secure,
	}
}

func (a *API) setSession(c *gin.Context, token string) {
	c.SetCookie(a.cookieName, token, int(a.tokens.TTL()/time.Second), "/", "", a.secure, true)
}

func (a *API) clearSession(c *gin.Context) {
	c.SetCookie(a.cookieName, "", -1, "/", "", a.secure, true)
}
