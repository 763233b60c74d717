package chat

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"uk.co.dudmesh.parley/internal/clock"
	"uk.co.dudmesh.parley/internal/model"
	"uk.co.dudmesh.parley/internal/store"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// offsets past this are beyond any chat and are served as empty pages
	maxOffset = math.MaxInt32
)

type Store interface {
	InTx(ctx context.Context, fn func(tx *store.Store) error) error
	ChatByID(ctx context.Context, chatID model.ChatID) (*model.Chat, error)
	MessageByID(ctx context.Context, messageID model.MessageID) (*model.Message, error)
	MarkDelivered(ctx context.Context, messageID model.MessageID, at time.Time) (bool, error)
	MarkChatRead(ctx context.Context, chatID model.ChatID, readerID model.UserID, at time.Time) (int64, error)
	LastReadAt(ctx context.Context, chatID model.ChatID, userID model.UserID) (time.Time, error)
	UnreadCount(ctx context.Context, chatID model.ChatID, viewerID model.UserID, since time.Time) (int, error)
	MessagesPage(ctx context.Context, chatID model.ChatID, viewerID model.UserID, offset, limit int) ([]*model.Message, error)
	DeleteMessageFor(ctx context.Context, messageID model.MessageID, userID model.UserID, at time.Time) error
	UsersByIDs(ctx context.Context, userIDs []model.UserID) (map[model.UserID]*model.User, error)
}

type Users interface {
	Resolve(ctx context.Context, handle model.Handle) (*model.User, error)
}

type Paging struct {
	Default int
	Max     int
}

type SendParams struct {
	ChatID model.ChatID      `json:"chatId"`
	Sender model.Handle      `json:"-"`
	Body   string            `json:"message"`
	Kind   model.MessageKind `json:"messageType"`
}

// Sent is a persisted message together with the handles of every chat
// participant, sender included.
type Sent struct {
	Message      *model.MessageView
	Participants []model.Handle
}

type HistoryParams struct {
	ChatID model.ChatID `json:"chatId"`
	Viewer model.Handle `json:"-"`
	Page   int          `json:"page"`
	Limit  int          `json:"limit"`
}

type Page struct {
	ChatID   model.ChatID         `json:"chatId"`
	Page     int                  `json:"page"`
	Messages []*model.MessageView `json:"messages"`
}

type service struct {
	store  Store
	users  Users
	clock  clock.Clock
	paging Paging
}

func New(store Store, users Users, clock clock.Clock, paging Paging) *service {
	if paging.Default <= 0 {
		paging.Default = DefaultPageSize
	}
	if paging.Max <= 0 {
		paging.Max = MaxPageSize
	}
	if paging.Default > paging.Max {
		paging.Default = paging.Max
	}
	return &service{
		store:  store,
		users:  users,
		clock:  clock,
		paging: paging,
	}
}

// participant resolves the handle and checks that the user belongs to the chat.
func (s *service) participant(ctx context.Context, chatID model.ChatID, handle model.Handle) (*model.Chat, *model.User, error) {
	user, err := s.users.Resolve(ctx, handle)
	if err != nil {
		return nil, nil, err
	}

	chat, err := s.store.ChatByID(ctx, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching chat %s: %w", chatID, err)
	}

	if !chat.HasParticipant(user.ID) {
		return nil, nil, model.ErrorNotParticipant
	}

	return chat, user, nil
}

// Join checks that the chat exists and that the viewer may subscribe to it.
func (s *service) Join(ctx context.Context, chatID model.ChatID, viewer model.Handle) (*model.Chat, error) {
	chat, _, err := s.participant(ctx, chatID, viewer)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *service) SendMessage(ctx context.Context, params *SendParams) (*Sent, error) {
	body := strings.TrimSpace(params.Body)
	if body == "" {
		return nil, model.ErrorEmptyMessage
	}

	kind := params.Kind
	if kind == "" {
		kind = model.MessageKindText
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%s: %w", kind, model.ErrorInvalidMessageKind)
	}

	chat, sender, err := s.participant(ctx, params.ChatID, params.Sender)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	message := &model.Message{
		ID:        model.NewMessageID(),
		ChatID:    chat.ID,
		SenderID:  sender.ID,
		Body:      params.Body,
		Kind:      kind,
		Status:    model.MessageStatus{SentAt: now},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateMessage(ctx, message); err != nil {
			return err
		}
		return tx.SetLastMessage(ctx, chat.ID, message.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}

	participants, err := s.store.UsersByIDs(ctx, chat.Participants)
	if err != nil {
		return nil, err
	}

	sent := &Sent{Message: message.View(sender.Handle)}
	for _, userID := range chat.Participants {
		if user, ok := participants[userID]; ok {
			sent.Participants = append(sent.Participants, user.Handle)
		}
	}
	return sent, nil
}

// MarkDelivered records the first delivery of a message to one of the other
// participants. Later acknowledgements leave the timestamp unchanged.
func (s *service) MarkDelivered(ctx context.Context, messageID model.MessageID, reader model.Handle) (*model.MessageView, error) {
	message, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", messageID, err)
	}

	_, user, err := s.participant(ctx, message.ChatID, reader)
	if err != nil {
		return nil, err
	}

	if message.SenderID != user.ID {
		if _, err := s.store.MarkDelivered(ctx, message.ID, s.clock.Now()); err != nil {
			return nil, err
		}
		message, err = s.store.MessageByID(ctx, messageID)
		if err != nil {
			return nil, fmt.Errorf("fetching message %s: %w", messageID, err)
		}
	}

	senders, err := s.store.UsersByIDs(ctx, []model.UserID{message.SenderID})
	if err != nil {
		return nil, err
	}
	var handle model.Handle
	if sender, ok := senders[message.SenderID]; ok {
		handle = sender.Handle
	}
	return message.View(handle), nil
}

// MarkRead marks every message from the other participants as read and
// advances the reader's last-read marker. It returns the read time.
func (s *service) MarkRead(ctx context.Context, chatID model.ChatID, reader model.Handle) (time.Time, error) {
	chat, user, err := s.participant(ctx, chatID, reader)
	if err != nil {
		return time.Time{}, err
	}
	return s.markRead(ctx, chat, user)
}

func (s *service) markRead(ctx context.Context, chat *model.Chat, user *model.User) (time.Time, error) {
	now := s.clock.Now()
	if _, err := s.store.MarkChatRead(ctx, chat.ID, user.ID, now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

func (s *service) UnreadCount(ctx context.Context, chatID model.ChatID, viewer model.Handle) (int, error) {
	chat, user, err := s.participant(ctx, chatID, viewer)
	if err != nil {
		return 0, err
	}

	since, err := s.store.LastReadAt(ctx, chat.ID, user.ID)
	if err != nil {
		return 0, err
	}
	return s.store.UnreadCount(ctx, chat.ID, user.ID, since)
}

// History returns one page of the chat oldest first. Viewing a page marks
// the chat as read for the viewer.
func (s *service) History(ctx context.Context, params *HistoryParams) (*Page, error) {
	chat, user, err := s.participant(ctx, params.ChatID, params.Viewer)
	if err != nil {
		return nil, err
	}

	if _, err := s.markRead(ctx, chat, user); err != nil {
		return nil, err
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit <= 0 {
		limit = s.paging.Default
	}
	if limit > s.paging.Max {
		limit = s.paging.Max
	}

	if page-1 > maxOffset/limit {
		return &Page{ChatID: chat.ID, Page: page, Messages: []*model.MessageView{}}, nil
	}

	messages, err := s.store.MessagesPage(ctx, chat.ID, user.ID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	senders, err := s.store.UsersByIDs(ctx, chat.Participants)
	if err != nil {
		return nil, err
	}

	views := make([]*model.MessageView, len(messages))
	for i, message := range messages {
		var handle model.Handle
		if sender, ok := senders[message.SenderID]; ok {
			handle = sender.Handle
		}
		views[len(messages)-1-i] = message.View(handle)
	}

	return &Page{
		ChatID:   chat.ID,
		Page:     page,
		Messages: views,
	}, nil
}

// DeleteForMe hides a message from the viewer's own history.
func (s *service) DeleteForMe(ctx context.Context, messageID model.MessageID, viewer model.Handle) error {
	message, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("fetching message %s: %w", messageID, err)
	}

	_, user, err := s.participant(ctx, message.ChatID, viewer)
	if err != nil {
		return err
	}

	return s.store.DeleteMessageFor(ctx, message.ID, user.ID, s.clock.Now())
}
