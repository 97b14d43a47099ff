package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"parley/internal/app"
	"parley/internal/core"
	"parley/internal/domain"
)

const maxAttachments = 5

func (a *API) handleNewGroup(c *gin.Context) {
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		badRequest(c, "name and members are required")
		return
	}
	if len(req.Members) < 2 {
		badRequest(c, "a group chat needs at least 3 members")
		return
	}

	uid := currentUser(c)
	members := []domain.UserID{uid}
	for _, m := range req.Members {
		id := domain.UserID(m)
		if id != uid {
			members = append(members, id)
		}
	}

	chat := &domain.Chat{
		ID:        domain.ChatID(uuid.NewString()),
		Name:      req.Name,
		GroupChat: true,
		Creator:   uid,
		Members:   members,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateChat(c.Request.Context(), chat); err != nil {
		fail(c, err)
		return
	}

	a.router.RouteExcept(app.EvAlert, gin.H{"message": "welcome to " + chat.Name}, members, uid)
	a.router.Route(app.EvRefetchChats, gin.H{"chatId": chat.ID}, members)
	created(c, gin.H{"chat": chat, "message": "group created"})
}

func (a *API) handleMyChats(c *gin.Context) {
	chats, err := a.store.ChatsFor(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"chats": chats})
}

func (a *API) handleMyGroups(c *gin.Context) {
	groups, err := a.store.GroupsCreatedBy(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"groups": groups})
}

// loadGroupAsCreator is the shared guard for member management.
func (a *API) loadGroupAsCreator(c *gin.Context, chatID domain.ChatID) (*domain.Chat, bool) {
	chat, err := a.store.ChatByID(c.Request.Context(), chatID)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if !chat.GroupChat {
		fail(c, fmt.Errorf("not a group chat: %w", core.ErrInvalidRequest))
		return nil, false
	}
	if chat.Creator != currentUser(c) {
		fail(c, fmt.Errorf("only the group creator may do this: %w", core.ErrUnauthorized))
		return nil, false
	}
	return chat, true
}

func (a *API) handleAddMembers(c *gin.Context) {
	var req struct {
		ChatID  string   `json:"chatId"`
		Members []string `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == "" || len(req.Members) == 0 {
		badRequest(c, "chatId and members are required")
		return
	}
	chat, okAuth := a.loadGroupAsCreator(c, domain.ChatID(req.ChatID))
	if !okAuth {
		return
	}

	added := make([]domain.UserID, 0, len(req.Members))
	for _, m := range req.Members {
		added = append(added, domain.UserID(m))
	}
	if err := a.store.AddMembers(c.Request.Context(), chat.ID, added); err != nil {
		fail(c, err)
		return
	}

	a.router.Route(app.EvAlert, gin.H{"message": "you have been added to " + chat.Name}, added)
	a.router.Route(app.EvRefetchChats, gin.H{"chatId": chat.ID}, append(chat.Members, added...))
	ok(c, gin.H{"message": "members added successfully"})
}

func (a *API) handleRemoveMember(c *gin.Context) {
	var req struct {
		ChatID string `json:"chatId"`
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == "" || req.UserID == "" {
		badRequest(c, "chatId and userId are required")
		return
	}
	chat, okAuth := a.loadGroupAsCreator(c, domain.ChatID(req.ChatID))
	if !okAuth {
		return
	}
	if len(chat.Members) <= 3 {
		fail(c, fmt.Errorf("a group must keep at least 3 members: %w", core.ErrInvalidRequest))
		return
	}

	removed := domain.UserID(req.UserID)
	if err := a.store.RemoveMember(c.Request.Context(), chat.ID, removed); err != nil {
		fail(c, err)
		return
	}

	a.router.Route(app.EvAlert, gin.H{"message": "you have been removed from " + chat.Name}, []domain.UserID{removed})
	a.router.Route(app.EvRefetchChats, gin.H{"chatId": chat.ID}, chat.Members)
	ok(c, gin.H{"message": "member removed successfully"})
}

func (a *API) handleLeaveGroup(c *gin.Context) {
	ctx := c.Request.Context()
	uid := currentUser(c)
	chat, err := a.store.ChatByID(ctx, domain.ChatID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	if !chat.GroupChat {
		fail(c, fmt.Errorf("not a group chat: %w", core.ErrInvalidRequest))
		return
	}

	var remaining []domain.UserID
	found := false
	for _, m := range chat.Members {
		if m == uid {
			found = true
			continue
		}
		remaining = append(remaining, m)
	}
	if !found {
		fail(c, fmt.Errorf("you are not a member of this chat: %w", core.ErrInvalidRequest))
		return
	}
	if len(remaining) == 0 {
		fail(c, fmt.Errorf("cannot leave an empty group: %w", core.ErrInvalidRequest))
		return
	}

	if err := a.store.RemoveMember(ctx, chat.ID, uid); err != nil {
		fail(c, err)
		return
	}
	if chat.Creator == uid {
		if err := a.store.SetChatCreator(ctx, chat.ID, remaining[0]); err != nil {
			fail(c, err)
			return
		}
	}

	a.router.Route(app.EvRefetchChats, gin.H{"chatId": chat.ID}, remaining)
	ok(c, gin.H{"message": "you left " + chat.Name})
}

func (a *API) handleSendAttachments(c *gin.Context) {
	ctx := c.Request.Context()
	uid := currentUser(c)

	chatID := domain.ChatID(c.PostForm("chatId"))
	if chatID == "" {
		badRequest(c, "chatId is required")
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "attachments are required")
		return
	}
	files := form.File["files"]
	if len(files) == 0 || len(files) > maxAttachments {
		badRequest(c, fmt.Sprintf("between 1 and %d files are required", maxAttachments))
		return
	}

	chat, err := a.store.ChatByID(ctx, chatID)
	if err != nil {
		fail(c, err)
		return
	}
	sender, err := a.store.FindUser(ctx, uid)
	if err != nil {
		fail(c, err)
		return
	}
	if !isMember(chat, uid) {
		fail(c, fmt.Errorf("you are not a member of this chat: %w", core.ErrUnauthorized))
		return
	}

	attachments := make([]domain.Attachment, 0, len(files))
	for _, fh := range files {
		att, err := a.media.Save(fh)
		if err != nil {
			for _, saved := range attachments {
				_ = a.media.Remove(saved.PublicID)
			}
			fail(c, err)
			return
		}
		attachments = append(attachments, att)
	}

	msg := &domain.Message{
		ID:          domain.MessageID(uuid.NewString()),
		ChatID:      chat.ID,
		Sender:      uid,
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.SaveMessage(ctx, msg); err != nil {
		fail(c, err)
		return
	}

	a.router.Route(app.EvNewMessage, gin.H{
		"message": msg,
		"sender":  gin.H{"id": sender.ID, "name": sender.Name},
		"chatId":  chat.ID,
	}, chat.Members)
	a.router.Route(app.EvNewMessageAlert, gin.H{"chatId": chat.ID}, chat.Members)
	log.Info().Str("module", "adapters.http").Str("chat", string(chat.ID)).
		Int("files", len(attachments)).Msg("attachments sent")
	ok(c, gin.H{"message": msg})
}

func (a *API) handleChatDetails(c *gin.Context) {
	ctx := c.Request.Context()
	chat, err := a.store.ChatByID(ctx, domain.ChatID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	if !isMember(chat, currentUser(c)) {
		fail(c, fmt.Errorf("you are not a member of this chat: %w", core.ErrUnauthorized))
		return
	}

	if c.Query("populate") == "true" {
		members := make([]domain.User, 0, len(chat.Members))
		for _, m := range chat.Members {
			u, err := a.store.FindUser(ctx, m)
			if err != nil {
				continue
			}
			members = append(members, *u)
		}
		ok(c, gin.H{"chat": chat, "members": members})
		return
	}
	ok(c, gin.H{"chat": chat})
}

func (a *API) handleRenameGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		badRequest(c, "name is required")
		return
	}
	chat, okAuth := a.loadGroupAsCreator(c, domain.ChatID(c.Param("id")))
	if !okAuth {
		return
	}
	if err := a.store.RenameChat(c.Request.Context(), chat.ID, req.Name); err != nil {
		fail(c, err)
		return
	}
	a.router.Route(app.EvRefetchChats, gin.H{"chatId": chat.ID}, chat.Members)
	ok(c, gin.H{"message": "group renamed successfully"})
}

func (a *API) handleDeleteChat(c *gin.Context) {
	ctx := c.Request.Context()
	uid := currentUser(c)
	chat, err := a.store.ChatByID(ctx, domain.ChatID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	if chat.GroupChat && chat.Creator != uid {
		fail(c, fmt.Errorf("only the group creator may delete it: %w", core.ErrUnauthorized))
		return
	}
	if !chat.GroupChat && !isMember(chat, uid) {
		fail(c, fmt.Errorf("you are not a member of this chat: %w", core.ErrUnauthorized))
		return
	}

	if err := a.store.DeleteChat(ctx, chat.ID); err != nil {
		fail(c, err)
		return
	}
	a.router.Route(app.EvRefetchChats, gin.H{"chatId": chat.ID}, chat.Members)
	ok(c, gin.H{"message": "chat deleted successfully"})
}

func (a *API) handleMessages(c *gin.Context) {
	ctx := c.Request.Context()
	chat, err := a.store.ChatByID(ctx, domain.ChatID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	if !isMember(chat, currentUser(c)) {
		fail(c, fmt.Errorf("you are not a member of this chat: %w", core.ErrUnauthorized))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	const limit = 20
	messages, total, err := a.store.MessagesPage(ctx, chat.ID, page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	totalPages := (total + limit - 1) / limit
	ok(c, gin.H{"messages": messages, "totalPages": totalPages})
}

func (a *API) handleStartCall(kind domain.CallKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ID string `json:"id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
			badRequest(c, "to user id is required")
			return
		}
		ctx := c.Request.Context()
		from := currentUser(c)
		to := domain.UserID(req.ID)

		sess, err := a.calls.Start(ctx, kind, from, to, "")
		if err != nil {
			fail(c, err)
			return
		}
		caller, err := a.store.FindUser(ctx, from)
		if err != nil {
			fail(c, err)
			return
		}
		callee, err := a.store.FindUser(ctx, to)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"data": gin.H{
			"from":     caller,
			"to":       callee,
			"roomID":   sess.ID,
			"streamID": to,
			"userID":   from,
			"username": caller.Username,
		}})
	}
}

func (a *API) handleCallLogs(c *gin.Context) {
	ctx := c.Request.Context()
	uid := currentUser(c)
	logs, err := a.store.CallLogsFor(ctx, uid)
	if err != nil {
		fail(c, err)
		return
	}

	type callLog struct {
		ID       domain.CallID   `json:"id"`
		Kind     domain.CallKind `json:"kind"`
		Name     string          `json:"name"`
		Avatar   domain.Avatar   `json:"avatar"`
		Incoming bool            `json:"incoming"`
		Missed   bool            `json:"missed"`
		At       time.Time       `json:"at"`
	}
	out := make([]callLog, 0, len(logs))
	for _, sess := range logs {
		peer, err := a.store.FindUser(ctx, sess.Peer(uid))
		if err != nil {
			continue
		}
		out = append(out, callLog{
			ID:       sess.ID,
			Kind:     sess.Kind,
			Name:     peer.Name,
			Avatar:   peer.Avatar,
			Incoming: sess.Receiver == uid,
			Missed:   sess.Verdict != domain.VerdictAccepted,
			At:       sess.StartedAt,
		})
	}
	ok(c, gin.H{"callLogs": out})
}

func (a *API) handleDownload(c *gin.Context) {
	f, name, err := a.media.Open(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	c.DataFromReader(http.StatusOK, stat.Size(), "application/octet-stream", f, nil)
}

func isMember(chat *domain.Chat, uid domain.UserID) bool {
	for _, m := range chat.Members {
		if m == uid {
			return true
		}
	}
	return false
}
