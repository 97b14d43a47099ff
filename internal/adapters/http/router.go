package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"parley/internal/adapters/ws"
	"parley/internal/config"
	"parley/internal/domain"
)

func SetupRouter(ctx context.Context, cfg *config.Config, api *API, gw *ws.Gateway) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Int("port", cfg.Port).Msg("router setup")

	v1 := r.Group("/api/v1")

	user := v1.Group("/user")
	user.POST("/signUp", api.handleRegister)
	user.POST("/login", api.handleLogin)

	userAuth := user.Group("", api.authRequired())
	userAuth.GET("/myProfile", api.handleMyProfile)
	userAuth.PUT("/update-profile", api.handleUpdateProfile)
	userAuth.GET("/logout", api.handleLogout)
	userAuth.GET("/search", api.handleSearchUsers)
	userAuth.PUT("/send-request", api.handleSendRequest)
	userAuth.PUT("/accept-request", api.handleAcceptRequest)
	userAuth.GET("/notifications", api.handleNotifications)
	userAuth.GET("/my-friends", api.handleMyFriends)

	chat := v1.Group("/chat", api.authRequired())
	chat.POST("/new", api.handleNewGroup)
	chat.GET("/myChats", api.handleMyChats)
	chat.GET("/my/groups", api.handleMyGroups)
	chat.PUT("/addMembers", api.handleAddMembers)
	chat.PUT("/removeMembers", api.handleRemoveMember)
	chat.DELETE("/leave/:id", api.handleLeaveGroup)
	chat.POST("/message", api.handleSendAttachments)
	chat.GET("/message/:id", api.handleMessages)
	chat.POST("/start-audio-call", api.handleStartCall(domain.CallAudio))
	chat.POST("/start-video-call", api.handleStartCall(domain.CallVideo))
	chat.GET("/get-call-logs", api.handleCallLogs)
	chat.GET("/:id", api.handleChatDetails)
	chat.PUT("/:id", api.handleRenameGroup)
	chat.DELETE("/:id", api.handleDeleteChat)

	v1.GET("/files/:id", api.authRequired(), api.handleDownload)

	r.GET("/ws", func(c *gin.Context) {
		gw.HandleWS(ctx, c)
	})

	return r
}
