package model

import "errors"

var ErrorUserNotFound = errors.New("user not found")
var ErrorSenderMismatch = errors.New("sender mismatch")
var ErrorMissingIdentity = errors.New("caller identity missing")
var ErrorInvalidToken = errors.New("invalid token")
var ErrorHandleTaken = errors.New("handle already registered")

var ErrorChatNotFound = errors.New("chat not found")
var ErrorNotParticipant = errors.New("not a chat participant")
var ErrorMessageNotFound = errors.New("message not found")
var ErrorEmptyMessage = errors.New("message body is empty")
var ErrorInvalidMessageKind = errors.New("invalid message kind")

var ErrorInvitationNotFound = errors.New("invitation not found")
var ErrorInvitationPending = errors.New("already pending")
var ErrorAlreadyConnected = errors.New("already connected")
var ErrorInvalidInvitationState = errors.New("invalid invitation state")
var ErrorSelfInvitation = errors.New("cannot invite yourself")

var ErrorMissingTarget = errors.New("signal target missing")
var ErrorPayloadTooLarge = errors.New("signal payload too large")
var ErrorUnknownEvent = errors.New("unknown event")
var ErrorInvalidPayload = errors.New("invalid event payload")

// IsClientError reports whether err is a sentinel whose text can be shown to the caller as-is.
func IsClientError(err error) bool {
	return ClientError(err) != nil
}

// ClientError unwraps err to the first sentinel that can be shown to the
// caller, or returns nil.
func ClientError(err error) error {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

var clientErrors = []error{
	ErrorUserNotFound,
	ErrorSenderMismatch,
	ErrorChatNotFound,
	ErrorNotParticipant,
	ErrorMessageNotFound,
	ErrorEmptyMessage,
	ErrorInvalidMessageKind,
	ErrorInvitationNotFound,
	ErrorInvitationPending,
	ErrorAlreadyConnected,
	ErrorInvalidInvitationState,
	ErrorSelfInvitation,
	ErrorMissingTarget,
	ErrorPayloadTooLarge,
	ErrorUnknownEvent,
	ErrorInvalidPayload,
	ErrorHandleTaken,
}
