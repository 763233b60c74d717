package model

import "time"

type ChatID string

type ChatKind string

const (
	ChatKindPrivate ChatKind = "private"
	ChatKindGroup   ChatKind = "group"
)

type Chat struct {
	ID            ChatID
	Kind          ChatKind
	Participants  []UserID
	LastMessageID *MessageID
	LastRead      map[UserID]time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *Chat) HasParticipant(userID UserID) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the other participant of a private chat.
func (c *Chat) Counterpart(userID UserID) (UserID, bool) {
	if c.Kind != ChatKindPrivate {
		return "", false
	}
	for _, id := range c.Participants {
		if id != userID {
			return id, true
		}
	}
	return "", false
}

// LastReadBy defaults to the zero epoch when the user never read the chat.
func (c *Chat) LastReadBy(userID UserID) time.Time {
	if at, ok := c.LastRead[userID]; ok {
		return at
	}
	return time.Unix(0, 0).UTC()
}

type MessagePreview struct {
	Text     string    `json:"text"`
	SenderID Handle    `json:"senderId"`
	Time     time.Time `json:"time"`
}

type ChatSummary struct {
	ChatID            ChatID          `json:"chatId"`
	Kind              ChatKind        `json:"chatType"`
	User              *Identity       `json:"user"`
	Online            bool            `json:"online"`
	LastMessage       *MessagePreview `json:"lastMessage"`
	UnreadCount       int             `json:"unreadCount"`
	InvitationPending bool            `json:"invitationPending"`
	Connected         bool            `json:"connected"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}
