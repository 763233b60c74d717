package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"uk.co.dudmesh.parley/internal/model"
)

// InsertInvitation creates the invitation unless one already exists for the
// same ordered (from, to) pair. It reports whether a row was created.
func (s *Store) InsertInvitation(ctx context.Context, invitation *model.Invitation) (bool, error) {
	rows, err := s.exec(ctx, `insert into invitations
		(id, from_user_id, to_user_id, status, created_at, updated_at)
		values(?, ?, ?, ?, ?, ?)
		on conflict (from_user_id, to_user_id) do nothing`,
		invitation.ID, invitation.FromUserID, invitation.ToUserID, invitation.Status,
		invitation.CreatedAt, invitation.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("inserting invitation: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) InvitationByID(ctx context.Context, invitationID model.InvitationID) (*model.Invitation, error) {
	invitation := &model.Invitation{}
	err := s.get(ctx, invitation, `select * from invitations where id = ?`, invitationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorInvitationNotFound
		}
		return nil, fmt.Errorf("fetching invitation: %w", err)
	}
	return invitation, nil
}

func (s *Store) InvitationByPair(ctx context.Context, fromUserID, toUserID model.UserID) (*model.Invitation, error) {
	invitation := &model.Invitation{}
	err := s.get(ctx, invitation, `select * from invitations where from_user_id = ? and to_user_id = ?`,
		fromUserID, toUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorInvitationNotFound
		}
		return nil, fmt.Errorf("fetching invitation: %w", err)
	}
	return invitation, nil
}

// TransitionInvitation moves the invitation to the next status only if it is
// currently in the expected one. It reports whether the transition happened.
func (s *Store) TransitionInvitation(ctx context.Context, invitationID model.InvitationID, from, to model.InvitationStatus, at time.Time) (bool, error) {
	rows, err := s.exec(ctx, `update invitations set status = ?, updated_at = ?
		where id = ? and status = ?`, to, at, invitationID, from)
	if err != nil {
		return false, fmt.Errorf("updating invitation status: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) InvitationsTo(ctx context.Context, userID model.UserID, status model.InvitationStatus) ([]*model.Invitation, error) {
	var invitations []*model.Invitation
	err := s.selectAll(ctx, &invitations, `select * from invitations
		where to_user_id = ? and status = ?
		order by updated_at desc, id`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("fetching invitations: %w", err)
	}
	return invitations, nil
}

// InvitationCounterparts returns the set of users that share an invitation in
// the given status with userID, in either direction, using a single query.
func (s *Store) InvitationCounterparts(ctx context.Context, userID model.UserID, status model.InvitationStatus) (map[model.UserID]struct{}, error) {
	var counterparts []model.UserID
	err := s.selectAll(ctx, &counterparts, `select case when from_user_id = ? then to_user_id else from_user_id end
		from invitations
		where (from_user_id = ? or to_user_id = ?) and status = ?`, userID, userID, userID, status)
	if err != nil {
		return nil, fmt.Errorf("fetching invitation counterparts: %w", err)
	}

	set := make(map[model.UserID]struct{}, len(counterparts))
	for _, id := range counterparts {
		set[id] = struct{}{}
	}
	return set, nil
}
