package domain

import "time"

type (
	ChatID    string
	MessageID string
	RequestID string
)

type Chat struct {
	ID        ChatID    `json:"id"`
	Name      string    `json:"name"`
	GroupChat bool      `json:"groupChat"`
	Creator   UserID    `json:"creator"`
	Members   []UserID  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// Attachment references a file held by the media host.
type Attachment struct {
	PublicID string `json:"publicId"`
	URL      string `json:"url"`
}

type Message struct {
	ID          MessageID    `json:"id"`
	ChatID      ChatID       `json:"chatId"`
	Sender      UserID       `json:"sender"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

type FriendRequest struct {
	ID        RequestID     `json:"id"`
	Sender    UserID        `json:"sender"`
	Receiver  UserID        `json:"receiver"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}
