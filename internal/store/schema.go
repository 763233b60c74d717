package store

import (
	"context"
	"fmt"
)

// Column types are kept to the subset understood by both sqlite and postgres.
var schema = []string{
	`create table if not exists users (
		id         text not null primary key,
		handle     text not null unique,
		name       text not null default '',
		email      text not null default '',
		verified   boolean not null default false,
		created_at timestamp not null,
		updated_at timestamp null
	)`,
	`create table if not exists chats (
		id              text not null primary key,
		kind            text not null,
		last_message_id text null,
		created_at      timestamp not null,
		updated_at      timestamp not null
	)`,
	`create index if not exists chats_updated_at on chats(updated_at)`,
	`create table if not exists chat_participants (
		chat_id  text not null,
		user_id  text not null,
		position integer not null,
		primary key (chat_id, user_id)
	)`,
	`create index if not exists chat_participants_user on chat_participants(user_id)`,
	`create table if not exists chat_reads (
		chat_id      text not null,
		user_id      text not null,
		last_read_at timestamp not null,
		primary key (chat_id, user_id)
	)`,
	`create table if not exists messages (
		id           text not null primary key,
		chat_id      text not null,
		sender_id    text not null,
		body         text not null,
		kind         text not null,
		sent_at      timestamp not null,
		delivered_at timestamp null,
		read_at      timestamp null,
		created_at   timestamp not null,
		updated_at   timestamp not null
	)`,
	`create index if not exists messages_chat_created on messages(chat_id, created_at)`,
	`create table if not exists message_deletions (
		message_id text not null,
		user_id    text not null,
		created_at timestamp not null,
		primary key (message_id, user_id)
	)`,
	`create table if not exists invitations (
		id           text not null primary key,
		from_user_id text not null,
		to_user_id   text not null,
		status       text not null,
		created_at   timestamp not null,
		updated_at   timestamp not null,
		unique (from_user_id, to_user_id)
	)`,
	`create index if not exists invitations_to_user on invitations(to_user_id, status)`,
}

func (s *Store) createTables(ctx context.Context) error {
	for _, statement := range schema {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(statement), err)
		}
	}
	return nil
}

func firstLine(statement string) string {
	for i, r := range statement {
		if r == '\n' || r == '(' {
			return statement[:i]
		}
	}
	return statement
}
