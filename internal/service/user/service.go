package user

import (
	"context"
	"fmt"
	"strings"

	"uk.co.dudmesh.parley/internal/clock"
	"uk.co.dudmesh.parley/internal/model"
)

const MaxHandleLength = 64

type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	UserByHandle(ctx context.Context, handle model.Handle) (*model.User, error)
	UserByID(ctx context.Context, userID model.UserID) (*model.User, error)
}

type service struct {
	store Store
	clock clock.Clock
}

func New(store Store, clock clock.Clock) *service {
	return &service{store: store, clock: clock}
}

// Create registers a new identity. Credentials are managed elsewhere.
func (s *service) Create(ctx context.Context, params *model.CreateUserParams) (*model.User, error) {
	handle := model.Handle(strings.TrimSpace(string(params.Handle)))
	if handle == "" || len(handle) > MaxHandleLength {
		return nil, fmt.Errorf("invalid handle %q: %w", params.Handle, model.ErrorInvalidPayload)
	}

	user := &model.User{
		ID:        model.NewUserID(),
		Handle:    handle,
		Name:      strings.TrimSpace(params.Name),
		Email:     strings.ToLower(strings.TrimSpace(params.Email)),
		CreatedAt: s.clock.Now(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return user, nil
}

// Resolve maps a public handle to the stored identity.
func (s *service) Resolve(ctx context.Context, handle model.Handle) (*model.User, error) {
	if handle == "" {
		return nil, model.ErrorUserNotFound
	}
	user, err := s.store.UserByHandle(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", handle, err)
	}
	return user, nil
}

func (s *service) Fetch(ctx context.Context, userID model.UserID) (*model.User, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return user, nil
}
