// Package chatlist assembles the chat overview shown to a user.
package chatlist

import (
	"context"
	"fmt"
	"time"

	"uk.co.dudmesh.parley/internal/model"
)

type Store interface {
	ChatsForUser(ctx context.Context, userID model.UserID) ([]*model.Chat, error)
	UsersByIDs(ctx context.Context, userIDs []model.UserID) (map[model.UserID]*model.User, error)
	MessagesByIDs(ctx context.Context, messageIDs []model.MessageID) (map[model.MessageID]*model.Message, error)
	UnreadCount(ctx context.Context, chatID model.ChatID, viewerID model.UserID, since time.Time) (int, error)
	InvitationCounterparts(ctx context.Context, userID model.UserID, status model.InvitationStatus) (map[model.UserID]struct{}, error)
}

type Users interface {
	Resolve(ctx context.Context, handle model.Handle) (*model.User, error)
}

type Presence interface {
	Online(handle model.Handle) bool
}

type service struct {
	store    Store
	users    Users
	presence Presence
}

func New(store Store, users Users, presence Presence) *service {
	return &service{
		store:    store,
		users:    users,
		presence: presence,
	}
}

// List returns the viewer's chats, most recently updated first. Users,
// last messages and invitation state are each loaded with a single query
// whatever the number of chats.
func (s *service) List(ctx context.Context, viewer model.Handle) ([]model.ChatSummary, error) {
	user, err := s.users.Resolve(ctx, viewer)
	if err != nil {
		return nil, err
	}

	chats, err := s.store.ChatsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var userIDs []model.UserID
	var messageIDs []model.MessageID
	seen := map[model.UserID]struct{}{}
	for _, chat := range chats {
		for _, id := range chat.Participants {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				userIDs = append(userIDs, id)
			}
		}
		if chat.LastMessageID != nil {
			messageIDs = append(messageIDs, *chat.LastMessageID)
		}
	}

	users, err := s.store.UsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.MessagesByIDs(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.InvitationCounterparts(ctx, user.ID, model.InvitationStatusPending)
	if err != nil {
		return nil, err
	}
	accepted, err := s.store.InvitationCounterparts(ctx, user.ID, model.InvitationStatusAccepted)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		unread, err := s.store.UnreadCount(ctx, chat.ID, user.ID, chat.LastReadBy(user.ID))
		if err != nil {
			return nil, fmt.Errorf("chat %s: %w", chat.ID, err)
		}

		summary := model.ChatSummary{
			ChatID:      chat.ID,
			Kind:        chat.Kind,
			UnreadCount: unread,
			UpdatedAt:   chat.UpdatedAt,
		}

		if counterpartID, ok := chat.Counterpart(user.ID); ok {
			if counterpart, ok := users[counterpartID]; ok {
				summary.User = counterpart.Identity()
				summary.Online = s.presence.Online(counterpart.Handle)
			}
			_, summary.InvitationPending = pending[counterpartID]
			_, summary.Connected = accepted[counterpartID]
		}

		if chat.LastMessageID != nil {
			if message, ok := messages[*chat.LastMessageID]; ok {
				summary.LastMessage = &model.MessagePreview{
					Text: message.Body,
					Time: message.CreatedAt,
				}
				if sender, ok := users[message.SenderID]; ok {
					summary.LastMessage.SenderID = sender.Handle
				}
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}
