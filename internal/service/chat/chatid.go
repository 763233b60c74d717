package chat

import (
	"sort"
	"strings"
	"time"

	"uk.co.dudmesh.parley/internal/model"
)

const chatIDSeparator = "_"

// PrivateChatID derives the id of the private chat between two users. The
// result does not depend on argument order.
func PrivateChatID(a, b model.Handle) model.ChatID {
	pair := []string{string(a), string(b)}
	sort.Strings(pair)
	return model.ChatID(strings.Join(pair, chatIDSeparator))
}

func NewPrivateChat(a, b *model.User, now time.Time) *model.Chat {
	return &model.Chat{
		ID:           PrivateChatID(a.Handle, b.Handle),
		Kind:         model.ChatKindPrivate,
		Participants: []model.UserID{a.ID, b.ID},
		LastRead:     map[model.UserID]time.Time{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
