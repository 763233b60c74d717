package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"uk.co.dudmesh.parley/internal/model"
)

type chatRow struct {
	ID            model.ChatID   `db:"id"`
	Kind          model.ChatKind `db:"kind"`
	LastMessageID sql.NullString `db:"last_message_id"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

type participantRow struct {
	ChatID   model.ChatID `db:"chat_id"`
	UserID   model.UserID `db:"user_id"`
	Position int          `db:"position"`
}

type readRow struct {
	ChatID     model.ChatID `db:"chat_id"`
	UserID     model.UserID `db:"user_id"`
	LastReadAt time.Time    `db:"last_read_at"`
}

func (r *chatRow) toModel() *model.Chat {
	chat := &model.Chat{
		ID:        r.ID,
		Kind:      r.Kind,
		LastRead:  map[model.UserID]time.Time{},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.LastMessageID.Valid {
		id := model.MessageID(r.LastMessageID.String)
		chat.LastMessageID = &id
	}
	return chat
}

// EnsureChat creates the chat unless a chat with the same id already exists
// and returns the stored record. Safe under concurrent callers for the same id.
func (s *Store) EnsureChat(ctx context.Context, chat *model.Chat) (*model.Chat, error) {
	var stored *model.Chat
	err := s.InTx(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `insert into chats
			(id, kind, created_at, updated_at)
			values(?, ?, ?, ?)
			on conflict (id) do nothing`,
			chat.ID, chat.Kind, chat.CreatedAt, chat.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting chat: %w", err)
		}

		for i, userID := range chat.Participants {
			_, err := tx.exec(ctx, `insert into chat_participants
				(chat_id, user_id, position)
				values(?, ?, ?)
				on conflict (chat_id, user_id) do nothing`,
				chat.ID, userID, i)
			if err != nil {
				return fmt.Errorf("inserting chat participant: %w", err)
			}
		}

		stored, err = tx.ChatByID(ctx, chat.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) ChatByID(ctx context.Context, chatID model.ChatID) (*model.Chat, error) {
	row := &chatRow{}
	err := s.get(ctx, row, `select * from chats where id = ?`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorChatNotFound
		}
		return nil, fmt.Errorf("fetching chat: %w", err)
	}

	chats, err := s.withDetails(ctx, []*chatRow{row})
	if err != nil {
		return nil, err
	}
	return chats[0], nil
}

// ChatsForUser returns every chat the user participates in, most recently updated first.
func (s *Store) ChatsForUser(ctx context.Context, userID model.UserID) ([]*model.Chat, error) {
	var rows []*chatRow
	err := s.selectAll(ctx, &rows, `select c.* from chats c
		join chat_participants p on p.chat_id = c.id
		where p.user_id = ?
		order by c.updated_at desc, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching chats: %w", err)
	}
	return s.withDetails(ctx, rows)
}

// withDetails attaches participants and last-read markers with one query each.
func (s *Store) withDetails(ctx context.Context, rows []*chatRow) ([]*model.Chat, error) {
	chats := make([]*model.Chat, 0, len(rows))
	if len(rows) == 0 {
		return chats, nil
	}

	byID := make(map[model.ChatID]*model.Chat, len(rows))
	chatIDs := make([]model.ChatID, 0, len(rows))
	for _, row := range rows {
		chat := row.toModel()
		chats = append(chats, chat)
		byID[chat.ID] = chat
		chatIDs = append(chatIDs, chat.ID)
	}

	var participants []participantRow
	err := s.selectIn(ctx, &participants, `select * from chat_participants
		where chat_id in (?) order by chat_id, position`, chatIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching chat participants: %w", err)
	}
	for _, p := range participants {
		chat := byID[p.ChatID]
		chat.Participants = append(chat.Participants, p.UserID)
	}

	var reads []readRow
	err = s.selectIn(ctx, &reads, `select * from chat_reads where chat_id in (?)`, chatIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching chat reads: %w", err)
	}
	for _, r := range reads {
		byID[r.ChatID].LastRead[r.UserID] = r.LastReadAt
	}

	return chats, nil
}

func (s *Store) SetLastMessage(ctx context.Context, chatID model.ChatID, messageID model.MessageID, at time.Time) error {
	rows, err := s.exec(ctx, `update chats set last_message_id = ?, updated_at = ? where id = ?`,
		messageID, at, chatID)
	if err != nil {
		return fmt.Errorf("updating last message: %w", err)
	}
	if rows != 1 {
		return model.ErrorChatNotFound
	}
	return nil
}

// MarkChatRead sets read_at on every unread message the reader did not send
// and advances the reader's last-read marker. Both happen in one transaction.
func (s *Store) MarkChatRead(ctx context.Context, chatID model.ChatID, readerID model.UserID, at time.Time) (int64, error) {
	var marked int64
	err := s.InTx(ctx, func(tx *Store) error {
		var err error
		marked, err = tx.exec(ctx, `update messages set read_at = ?, updated_at = ?
			where chat_id = ? and sender_id <> ? and read_at is null`,
			at, at, chatID, readerID)
		if err != nil {
			return fmt.Errorf("marking messages read: %w", err)
		}

		_, err = tx.exec(ctx, `insert into chat_reads
			(chat_id, user_id, last_read_at)
			values(?, ?, ?)
			on conflict (chat_id, user_id) do update set last_read_at = excluded.last_read_at
			where chat_reads.last_read_at < excluded.last_read_at`,
			chatID, readerID, at)
		if err != nil {
			return fmt.Errorf("advancing last read: %w", err)
		}
		return nil
	})
	return marked, err
}

// LastReadAt defaults to the zero epoch when the user never read the chat.
func (s *Store) LastReadAt(ctx context.Context, chatID model.ChatID, userID model.UserID) (time.Time, error) {
	var at time.Time
	err := s.get(ctx, &at, `select last_read_at from chat_reads where chat_id = ? and user_id = ?`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Unix(0, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("fetching last read: %w", err)
	}
	return at, nil
}
