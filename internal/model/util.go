package model

import (
	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
)

// CreateID returns a random base58 encoded uuid.
func CreateID() string {
	id, _ := uuid.NewRandom()
	return base58.Encode(id[:])
}

func NewUserID() UserID             { return UserID(CreateID()) }
func NewMessageID() MessageID       { return MessageID(CreateID()) }
func NewInvitationID() InvitationID { return InvitationID(CreateID()) }
