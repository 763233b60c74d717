// Package invitation runs the connection request lifecycle between two users.
//
// A request for an ordered pair is created pending and moves to accepted or
// rejected. Accepting materializes the private chat of the pair. A rejected
// request is reopened in place when the same user invites again, so there is
// never more than one record per ordered pair.
package invitation

import (
	"context"
	"errors"
	"fmt"

	"uk.co.dudmesh.parley/internal/clock"
	"uk.co.dudmesh.parley/internal/model"
	"uk.co.dudmesh.parley/internal/registry"
	"uk.co.dudmesh.parley/internal/service/chat"
	"uk.co.dudmesh.parley/internal/store"
)

// StaleEvent tells a user to re-fetch their invitation list.
const StaleEvent = "invitation-list-stale"

type Store interface {
	InTx(ctx context.Context, fn func(tx *store.Store) error) error
	InvitationByID(ctx context.Context, invitationID model.InvitationID) (*model.Invitation, error)
	InvitationsTo(ctx context.Context, userID model.UserID, status model.InvitationStatus) ([]*model.Invitation, error)
	UsersByIDs(ctx context.Context, userIDs []model.UserID) (map[model.UserID]*model.User, error)
}

type Users interface {
	Resolve(ctx context.Context, handle model.Handle) (*model.User, error)
	Fetch(ctx context.Context, userID model.UserID) (*model.User, error)
}

type Notifier interface {
	SendToUser(handle model.Handle, name string, data interface{}, except *registry.Session) int
}

type Invited struct {
	ID         model.InvitationID `json:"invitationRequestId"`
	FromUserID model.Handle       `json:"fromUserId"`
	ToUserID   model.Handle       `json:"toUserId"`
}

type Acceptance struct {
	ID         model.InvitationID `json:"invitationRequestId"`
	FromUserID model.Handle       `json:"fromUserId"`
	ChatID     model.ChatID       `json:"chatId"`
}

type Rejection struct {
	ID         model.InvitationID     `json:"invitationRequestId"`
	FromUserID model.Handle           `json:"fromUserId"`
	Status     model.InvitationStatus `json:"status"`
}

type stale struct {
	ID     model.InvitationID     `json:"invitationRequestId"`
	Status model.InvitationStatus `json:"status"`
}

type service struct {
	store    Store
	users    Users
	notifier Notifier
	clock    clock.Clock
}

func New(store Store, users Users, notifier Notifier, clock clock.Clock) *service {
	return &service{
		store:    store,
		users:    users,
		notifier: notifier,
		clock:    clock,
	}
}

func (s *service) Invite(ctx context.Context, from, to model.Handle) (*Invited, error) {
	if from == to {
		return nil, model.ErrorSelfInvitation
	}

	fromUser, err := s.users.Resolve(ctx, from)
	if err != nil {
		return nil, err
	}
	toUser, err := s.users.Resolve(ctx, to)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invitation := &model.Invitation{
		ID:         model.NewInvitationID(),
		FromUserID: fromUser.ID,
		ToUserID:   toUser.ID,
		Status:     model.InvitationStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.store.InTx(ctx, func(tx *store.Store) error {
		reverse, err := tx.InvitationByPair(ctx, toUser.ID, fromUser.ID)
		if err != nil && !errors.Is(err, model.ErrorInvitationNotFound) {
			return err
		}
		if reverse != nil && reverse.Status == model.InvitationStatusAccepted {
			return model.ErrorAlreadyConnected
		}

		created, err := tx.InsertInvitation(ctx, invitation)
		if err != nil {
			return err
		}
		if created {
			return nil
		}

		existing, err := tx.InvitationByPair(ctx, fromUser.ID, toUser.ID)
		if err != nil {
			return err
		}

		switch existing.Status {
		case model.InvitationStatusPending:
			return model.ErrorInvitationPending
		case model.InvitationStatusAccepted:
			return model.ErrorAlreadyConnected
		}

		reopened, err := tx.TransitionInvitation(ctx, existing.ID,
			model.InvitationStatusRejected, model.InvitationStatusPending, now)
		if err != nil {
			return err
		}
		if !reopened {
			return model.ErrorInvitationPending
		}

		existing.Status = model.InvitationStatusPending
		existing.UpdatedAt = now
		invitation = existing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inviting %s: %w", to, err)
	}

	s.notifier.SendToUser(toUser.Handle, StaleEvent, &stale{ID: invitation.ID, Status: invitation.Status}, nil)

	return &Invited{
		ID:         invitation.ID,
		FromUserID: fromUser.Handle,
		ToUserID:   toUser.Handle,
	}, nil
}

// addressed loads an invitation on behalf of its invitee. An invitation
// addressed to someone else is reported as not found.
func (s *service) addressed(ctx context.Context, invitationID model.InvitationID, actor model.Handle) (*model.Invitation, *model.User, error) {
	user, err := s.users.Resolve(ctx, actor)
	if err != nil {
		return nil, nil, err
	}

	invitation, err := s.store.InvitationByID(ctx, invitationID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching invitation %s: %w", invitationID, err)
	}
	if invitation.ToUserID != user.ID {
		return nil, nil, model.ErrorInvitationNotFound
	}
	if invitation.Status != model.InvitationStatusPending {
		return nil, nil, fmt.Errorf("invitation is %s: %w", invitation.Status, model.ErrorInvalidInvitationState)
	}

	return invitation, user, nil
}

// Accept moves the invitation to accepted and creates the private chat of the
// pair in the same transaction. Only the invitee may accept.
func (s *service) Accept(ctx context.Context, invitationID model.InvitationID, actor model.Handle) (*Acceptance, error) {
	invitation, invitee, err := s.addressed(ctx, invitationID, actor)
	if err != nil {
		return nil, err
	}

	inviter, err := s.users.Fetch(ctx, invitation.FromUserID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var privateChat *model.Chat
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		accepted, err := tx.TransitionInvitation(ctx, invitation.ID,
			model.InvitationStatusPending, model.InvitationStatusAccepted, now)
		if err != nil {
			return err
		}
		if !accepted {
			return model.ErrorInvalidInvitationState
		}

		privateChat, err = tx.EnsureChat(ctx, chat.NewPrivateChat(inviter, invitee, now))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("accepting invitation %s: %w", invitationID, err)
	}

	s.notifier.SendToUser(inviter.Handle, StaleEvent, &stale{ID: invitation.ID, Status: model.InvitationStatusAccepted}, nil)

	return &Acceptance{
		ID:         invitation.ID,
		FromUserID: inviter.Handle,
		ChatID:     privateChat.ID,
	}, nil
}

func (s *service) Reject(ctx context.Context, invitationID model.InvitationID, actor model.Handle) (*Rejection, error) {
	invitation, _, err := s.addressed(ctx, invitationID, actor)
	if err != nil {
		return nil, err
	}

	inviter, err := s.users.Fetch(ctx, invitation.FromUserID)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx *store.Store) error {
		rejected, err := tx.TransitionInvitation(ctx, invitation.ID,
			model.InvitationStatusPending, model.InvitationStatusRejected, s.clock.Now())
		if err != nil {
			return err
		}
		if !rejected {
			return model.ErrorInvalidInvitationState
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rejecting invitation %s: %w", invitationID, err)
	}

	s.notifier.SendToUser(inviter.Handle, StaleEvent, &stale{ID: invitation.ID, Status: model.InvitationStatusRejected}, nil)

	return &Rejection{
		ID:         invitation.ID,
		FromUserID: inviter.Handle,
		Status:     model.InvitationStatusRejected,
	}, nil
}

// Pending lists the requests waiting for the user's answer, most recent first.
func (s *service) Pending(ctx context.Context, handle model.Handle) ([]*model.InvitationView, error) {
	user, err := s.users.Resolve(ctx, handle)
	if err != nil {
		return nil, err
	}

	invitations, err := s.store.InvitationsTo(ctx, user.ID, model.InvitationStatusPending)
	if err != nil {
		return nil, err
	}

	fromIDs := make([]model.UserID, 0, len(invitations))
	for _, invitation := range invitations {
		fromIDs = append(fromIDs, invitation.FromUserID)
	}
	inviters, err := s.store.UsersByIDs(ctx, fromIDs)
	if err != nil {
		return nil, err
	}

	views := make([]*model.InvitationView, 0, len(invitations))
	for _, invitation := range invitations {
		views = append(views, &model.InvitationView{
			ID:        invitation.ID,
			Status:    invitation.Status,
			FromUser:  inviters[invitation.FromUserID].Identity(),
			CreatedAt: invitation.CreatedAt,
		})
	}
	return views, nil
}
