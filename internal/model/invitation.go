package model

import "time"

type InvitationID string

type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusRejected InvitationStatus = "rejected"
)

type Invitation struct {
	ID         InvitationID     `db:"id" json:"invitationRequestId"`
	FromUserID UserID           `db:"from_user_id" json:"-"`
	ToUserID   UserID           `db:"to_user_id" json:"-"`
	Status     InvitationStatus `db:"status" json:"status"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updatedAt"`
}

// InvitationView is an invitation with both ends resolved to public identities.
type InvitationView struct {
	ID        InvitationID     `json:"invitationRequestId"`
	Status    InvitationStatus `json:"status"`
	FromUser  *Identity        `json:"fromUser"`
	ToUser    *Identity        `json:"toUser,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
