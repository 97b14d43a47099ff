package app

import "parley/internal/domain"

// Wire event names shared by the websocket adapter and the realtime
// services. Call signaling names carry the call kind as a prefix, e.g.
// audio_call_notification / video_call_notification.
const (
	EvNewMessage      = "new_message"
	EvNewMessageAlert = "new_message_alert"
	EvStartTyping     = "start_typing"
	EvStopTyping      = "stop_typing"
	EvChatJoined      = "chat_joined"
	EvChatLeft        = "chat_left"
	EvOnlineUsers     = "online_users"
	EvAlert           = "alert"
	EvRefetchChats    = "refetch_chats"
)

func EvStartCall(k domain.CallKind) string        { return "start_" + string(k) + "_call" }
func EvCallNotPicked(k domain.CallKind) string    { return string(k) + "_call_not_picked" }
func EvCallAcceptedIn(k domain.CallKind) string   { return string(k) + "_call_accepted" }
func EvCallDeniedIn(k domain.CallKind) string     { return string(k) + "_call_denied" }
func EvUserIsBusy(k domain.CallKind) string       { return "user_is_busy_" + string(k) + "_call" }
func evCallNotification(k domain.CallKind) string { return string(k) + "_call_notification" }
func evCallMissed(k domain.CallKind) string       { return string(k) + "_call_missed" }
func evCallAccepted(k domain.CallKind) string     { return string(k) + "_call_accepted" }
func evCallDenied(k domain.CallKind) string       { return string(k) + "_call_denied" }
func evOnAnotherCall(k domain.CallKind) string    { return "on_another_" + string(k) + "_call" }

// CallNotification rings the receiver's client with everything it needs
// to join the same media room as the caller.
type CallNotification struct {
	From     *domain.User  `json:"from"`
	RoomID   string        `json:"roomId"`
	StreamID domain.UserID `json:"streamId"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

// CallSignal is the {to, from} pair echoed on verdict notifications.
type CallSignal struct {
	From domain.UserID `json:"from"`
	To   domain.UserID `json:"to"`
}
