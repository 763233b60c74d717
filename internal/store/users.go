package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"uk.co.dudmesh.parley/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	rows, err := s.exec(ctx, `insert into users
		(id, handle, name, email, verified, created_at)
		values(?, ?, ?, ?, ?, ?)
		on conflict (handle) do nothing`,
		user.ID, user.Handle, user.Name, user.Email, user.Verified, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	if rows != 1 {
		return model.ErrorHandleTaken
	}
	return nil
}

func (s *Store) UserByHandle(ctx context.Context, handle model.Handle) (*model.User, error) {
	user := &model.User{}
	err := s.get(ctx, user, `select * from users where handle = ?`, handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorUserNotFound
		}
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return user, nil
}

func (s *Store) UserByID(ctx context.Context, userID model.UserID) (*model.User, error) {
	user := &model.User{}
	err := s.get(ctx, user, `select * from users where id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorUserNotFound
		}
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return user, nil
}

// UsersByIDs loads every listed user in one query. Unknown ids are absent from the result.
func (s *Store) UsersByIDs(ctx context.Context, userIDs []model.UserID) (map[model.UserID]*model.User, error) {
	users := make(map[model.UserID]*model.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	var rows []*model.User
	if err := s.selectIn(ctx, &rows, `select * from users where id in (?)`, userIDs); err != nil {
		return nil, fmt.Errorf("fetching users: %w", err)
	}
	for _, user := range rows {
		users[user.ID] = user
	}
	return users, nil
}
