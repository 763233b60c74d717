package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"uk.co.dudmesh.parley/internal/model"
)

type messageRow struct {
	ID          model.MessageID   `db:"id"`
	ChatID      model.ChatID      `db:"chat_id"`
	SenderID    model.UserID      `db:"sender_id"`
	Body        string            `db:"body"`
	Kind        model.MessageKind `db:"kind"`
	SentAt      time.Time         `db:"sent_at"`
	DeliveredAt sql.NullTime      `db:"delivered_at"`
	ReadAt      sql.NullTime      `db:"read_at"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
}

func (r *messageRow) toModel() *model.Message {
	message := &model.Message{
		ID:       r.ID,
		ChatID:   r.ChatID,
		SenderID: r.SenderID,
		Body:     r.Body,
		Kind:     r.Kind,
		Status: model.MessageStatus{
			SentAt: r.SentAt,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.DeliveredAt.Valid {
		at := r.DeliveredAt.Time
		message.Status.DeliveredAt = &at
	}
	if r.ReadAt.Valid {
		at := r.ReadAt.Time
		message.Status.ReadAt = &at
	}
	return message
}

func (s *Store) CreateMessage(ctx context.Context, message *model.Message) error {
	rows, err := s.exec(ctx, `insert into messages
		(id, chat_id, sender_id, body, kind, sent_at, created_at, updated_at)
		values(?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.ChatID, message.SenderID, message.Body, message.Kind,
		message.Status.SentAt, message.CreatedAt, message.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("expected 1 row to be affected, got %d", rows)
	}
	return nil
}

func (s *Store) MessageByID(ctx context.Context, messageID model.MessageID) (*model.Message, error) {
	row := &messageRow{}
	err := s.get(ctx, row, `select * from messages where id = ?`, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorMessageNotFound
		}
		return nil, fmt.Errorf("fetching message: %w", err)
	}

	message := row.toModel()
	err = s.selectAll(ctx, &message.DeletedFor, `select user_id from message_deletions
		where message_id = ? order by created_at`, messageID)
	if err != nil {
		return nil, fmt.Errorf("fetching message deletions: %w", err)
	}
	return message, nil
}

func (s *Store) MessagesByIDs(ctx context.Context, messageIDs []model.MessageID) (map[model.MessageID]*model.Message, error) {
	messages := make(map[model.MessageID]*model.Message, len(messageIDs))
	if len(messageIDs) == 0 {
		return messages, nil
	}

	var rows []*messageRow
	if err := s.selectIn(ctx, &rows, `select * from messages where id in (?)`, messageIDs); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	for _, row := range rows {
		messages[row.ID] = row.toModel()
	}
	return messages, nil
}

// MarkDelivered records the first delivery only. It reports whether the
// timestamp was set by this call.
func (s *Store) MarkDelivered(ctx context.Context, messageID model.MessageID, at time.Time) (bool, error) {
	rows, err := s.exec(ctx, `update messages set delivered_at = ?, updated_at = ?
		where id = ? and delivered_at is null`, at, at, messageID)
	if err != nil {
		return false, fmt.Errorf("marking message delivered: %w", err)
	}
	return rows == 1, nil
}

// MessagesPage returns a page of the chat newest first, skipping messages
// the viewer deleted for themselves.
func (s *Store) MessagesPage(ctx context.Context, chatID model.ChatID, viewerID model.UserID, offset, limit int) ([]*model.Message, error) {
	var rows []*messageRow
	err := s.selectAll(ctx, &rows, `select m.* from messages m
		where m.chat_id = ?
		and not exists (select 1 from message_deletions d where d.message_id = m.id and d.user_id = ?)
		order by m.created_at desc, m.id desc
		limit ? offset ?`, chatID, viewerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetching messages page: %w", err)
	}

	messages := make([]*model.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toModel())
	}
	return messages, nil
}

// UnreadCount counts messages from anyone but the viewer created strictly after since.
func (s *Store) UnreadCount(ctx context.Context, chatID model.ChatID, viewerID model.UserID, since time.Time) (int, error) {
	var count int
	err := s.get(ctx, &count, `select count(*) from messages
		where chat_id = ? and sender_id <> ? and created_at > ?`, chatID, viewerID, since)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteMessageFor(ctx context.Context, messageID model.MessageID, userID model.UserID, at time.Time) error {
	_, err := s.exec(ctx, `insert into message_deletions
		(message_id, user_id, created_at)
		values(?, ?, ?)
		on conflict (message_id, user_id) do nothing`, messageID, userID, at)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}
