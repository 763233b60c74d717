package model

import "time"

type MessageID string

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindVideo MessageKind = "video"
	MessageKindFile  MessageKind = "file"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindVideo, MessageKindFile:
		return true
	}
	return false
}

// MessageStatus timestamps are set once and never retracted.
type MessageStatus struct {
	SentAt      time.Time  `json:"sentAt"`
	DeliveredAt *time.Time `json:"deliveredAt"`
	ReadAt      *time.Time `json:"readAt"`
}

type Message struct {
	ID         MessageID
	ChatID     ChatID
	SenderID   UserID
	Body       string
	Kind       MessageKind
	Status     MessageStatus
	DeletedFor []UserID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MessageView is a message with the sender resolved to its public handle.
type MessageView struct {
	ID        MessageID     `json:"id"`
	ChatID    ChatID        `json:"chatId"`
	SenderID  Handle        `json:"senderId"`
	Body      string        `json:"message"`
	Kind      MessageKind   `json:"messageType"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (m *Message) View(sender Handle) *MessageView {
	return &MessageView{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  sender,
		Body:      m.Body,
		Kind:      m.Kind,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (m *Message) DeletedForUser(userID UserID) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}
