package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"parley/internal/app"
	"parley/internal/core"
	"parley/internal/domain"
)

func (a *API) handleRegister(c *gin.Context) {
	name := c.PostForm("name")
	username := c.PostForm("username")
	password := c.PostForm("password")
	bio := c.PostForm("bio")
	if name == "" || username == "" || len(password) < 6 {
		badRequest(c, "name, username and a password of at least 6 characters are required")
		return
	}

	u, err := domain.NewUser(name, username)
	if err != nil {
		fail(c, fmt.Errorf("%s: %w", err, core.ErrInvalidRequest))
		return
	}
	u.Bio = bio

	if fh, err := c.FormFile("avatar"); err == nil {
		att, err := a.media.Save(fh)
		if err != nil {
			fail(c, err)
			return
		}
		u.Avatar = domain.Avatar{PublicID: att.PublicID, URL: att.URL}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fail(c, err)
		return
	}
	if err := a.store.CreateUser(c.Request.Context(), u, hash); err != nil {
		if errors.Is(err, core.ErrConflict) {
			fail(c, fmt.Errorf("username already taken: %w", core.ErrConflict))
			return
		}
		fail(c, err)
		return
	}

	token, err := a.tokens.Issue(time.Now(), u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	a.setSession(c, token)
	log.Info().Str("module", "adapters.http").Str("user", string(u.ID)).Msg("user registered")
	created(c, gin.H{"user": u, "message": "Welcome to Parley, " + u.Name})
}

func (a *API) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		badRequest(c, "username and password are required")
		return
	}

	u, hash, err := a.store.FindByUsername(c.Request.Context(), req.Username)
	if errors.Is(err, core.ErrNotFound) {
		fail(c, fmt.Errorf("invalid username or password: %w", core.ErrUnauthorized))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		fail(c, fmt.Errorf("invalid username or password: %w", core.ErrUnauthorized))
		return
	}

	token, err := a.tokens.Issue(time.Now(), u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	a.setSession(c, token)
	ok(c, gin.H{"user": u, "message": "Welcome back, " + u.Name})
}

func (a *API) handleLogout(c *gin.Context) {
	a.clearSession(c)
	ok(c, gin.H{"message": "logged out successfully"})
}

func (a *API) handleMyProfile(c *gin.Context) {
	u, err := a.store.FindUser(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"user": u})
}

func (a *API) handleUpdateProfile(c *gin.Context) {
	uid := currentUser(c)
	u, err := a.store.FindUser(c.Request.Context(), uid)
	if err != nil {
		fail(c, err)
		return
	}

	name := c.DefaultPostForm("name", u.Name)
	bio := c.DefaultPostForm("bio", u.Bio)
	avatar := u.Avatar
	if fh, err := c.FormFile("avatar"); err == nil {
		att, err := a.media.Save(fh)
		if err != nil {
			fail(c, err)
			return
		}
		if u.Avatar.PublicID != "" {
			_ = a.media.Remove(u.Avatar.PublicID)
		}
		avatar = domain.Avatar{PublicID: att.PublicID, URL: att.URL}
	}

	if err := a.store.UpdateProfile(c.Request.Context(), uid, name, bio, avatar); err != nil {
		fail(c, err)
		return
	}
	u.Name, u.Bio, u.Avatar = name, bio, avatar
	ok(c, gin.H{"user": u, "message": "profile updated successfully"})
}

func (a *API) handleSearchUsers(c *gin.Context) {
	users, err := a.store.SearchUsers(c.Request.Context(), c.Query("name"), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"users": users})
}

func (a *API) handleSendRequest(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		badRequest(c, "userId is required")
		return
	}
	from := currentUser(c)
	to := domain.UserID(req.UserID)
	if to == from {
		fail(c, fmt.Errorf("cannot send a request to yourself: %w", core.ErrInvalidRequest))
		return
	}
	if _, err := a.store.FindUser(c.Request.Context(), to); err != nil {
		fail(c, err)
		return
	}

	fr := &domain.FriendRequest{
		ID:        domain.RequestID(uuid.NewString()),
		Sender:    from,
		Receiver:  to,
		Status:    domain.RequestPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateFriendRequest(c.Request.Context(), fr); err != nil {
		if errors.Is(err, core.ErrConflict) {
			fail(c, fmt.Errorf("request already sent: %w", core.ErrConflict))
			return
		}
		fail(c, err)
		return
	}

	a.router.Route(app.EvAlert, gin.H{"message": "you have a new friend request"}, []domain.UserID{to})
	created(c, gin.H{"message": "friend request sent"})
}

func (a *API) handleAcceptRequest(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		Accept    *bool  `json:"accept"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RequestID == "" || req.Accept == nil {
		badRequest(c, "requestId and accept are required")
		return
	}
	ctx := c.Request.Context()
	uid := currentUser(c)

	fr, err := a.store.FriendRequestByID(ctx, domain.RequestID(req.RequestID))
	if err != nil {
		fail(c, err)
		return
	}
	if fr.Receiver != uid {
		fail(c, fmt.Errorf("you are not authorized to accept this request: %w", core.ErrUnauthorized))
		return
	}

	if !*req.Accept {
		if err := a.store.ResolveFriendRequest(ctx, fr.ID, domain.RequestRejected); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"message": "friend request rejected"})
		return
	}

	if err := a.store.ResolveFriendRequest(ctx, fr.ID, domain.RequestAccepted); err != nil {
		fail(c, err)
		return
	}

	sender, err := a.store.FindUser(ctx, fr.Sender)
	if err != nil {
		fail(c, err)
		return
	}
	me, err := a.store.FindUser(ctx, uid)
	if err != nil {
		fail(c, err)
		return
	}
	chat := &domain.Chat{
		ID:        domain.ChatID(uuid.NewString()),
		Name:      sender.Name + "-" + me.Name,
		Creator:   uid,
		Members:   []domain.UserID{fr.Sender, uid},
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateChat(ctx, chat); err != nil {
		fail(c, err)
		return
	}

	a.router.Route(app.EvRefetchChats, gin.H{"chatId": chat.ID}, chat.Members)
	ok(c, gin.H{"message": "friend request accepted", "senderId": fr.Sender})
}

func (a *API) handleNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	pending, err := a.store.PendingRequestsFor(ctx, currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	type notification struct {
		ID     domain.RequestID `json:"requestId"`
		Sender *domain.User     `json:"sender"`
	}
	out := make([]notification, 0, len(pending))
	for _, fr := range pending {
		sender, err := a.store.FindUser(ctx, fr.Sender)
		if err != nil {
			continue
		}
		out = append(out, notification{ID: fr.ID, Sender: sender})
	}
	ok(c, gin.H{"requests": out})
}

func (a *API) handleMyFriends(c *gin.Context) {
	friends, err := a.store.Friends(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"friends": friends})
}
