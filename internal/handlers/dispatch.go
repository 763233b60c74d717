package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"uk.co.dudmesh.parley/internal/metrics"
	"uk.co.dudmesh.parley/internal/model"
	"uk.co.dudmesh.parley/internal/registry"
	"uk.co.dudmesh.parley/internal/relay"
	"uk.co.dudmesh.parley/internal/service/chat"
	"uk.co.dudmesh.parley/internal/service/invitation"
)

const (
	EventError           = "error"
	EventChatReady       = "chat-ready"
	EventReceiveMessage  = "receive-message"
	EventChatListUpdate  = "chat-list-update"
	EventDeliveryReceipt = "delivery-receipt"
	EventReadReceipt     = "read-receipt"
	EventMessagesPage    = "messages-page"
	EventChatList        = "chat-list"
)

type ChatService interface {
	Join(ctx context.Context, chatID model.ChatID, viewer model.Handle) (*model.Chat, error)
	SendMessage(ctx context.Context, params *chat.SendParams) (*chat.Sent, error)
	MarkDelivered(ctx context.Context, messageID model.MessageID, reader model.Handle) (*model.MessageView, error)
	MarkRead(ctx context.Context, chatID model.ChatID, reader model.Handle) (time.Time, error)
	History(ctx context.Context, params *chat.HistoryParams) (*chat.Page, error)
	DeleteForMe(ctx context.Context, messageID model.MessageID, viewer model.Handle) error
}

type ChatListService interface {
	List(ctx context.Context, viewer model.Handle) ([]model.ChatSummary, error)
}

type InvitationService interface {
	Invite(ctx context.Context, from, to model.Handle) (*invitation.Invited, error)
	Accept(ctx context.Context, invitationID model.InvitationID, actor model.Handle) (*invitation.Acceptance, error)
	Reject(ctx context.Context, invitationID model.InvitationID, actor model.Handle) (*invitation.Rejection, error)
	Pending(ctx context.Context, handle model.Handle) ([]*model.InvitationView, error)
}

type SignalRelay interface {
	Forward(from *registry.Session, event string, data json.RawMessage) error
}

// Frame is one inbound socket message. Ack is set when the client expects
// an acknowledgement.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
}

type AckResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type ErrorEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

type eventFunc func(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error)

// route handles one inbound event. When the frame carries no ack and reply
// is set, the result is emitted back to the session under that name.
type route struct {
	reply  string
	handle eventFunc
}

type Dispatcher struct {
	registry    *registry.Registry
	relay       SignalRelay
	chats       ChatService
	chatList    ChatListService
	invitations InvitationService
	routes      map[string]route
}

func NewDispatcher(reg *registry.Registry, signals SignalRelay, chats ChatService, chatList ChatListService, invitations InvitationService) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		relay:       signals,
		chats:       chats,
		chatList:    chatList,
		invitations: invitations,
	}

	d.routes = map[string]route{
		"join-chat":         {reply: EventChatReady, handle: d.joinChat},
		"leave-chat":        {handle: d.leaveChat},
		"send-message":      {handle: d.sendMessage},
		"fetch-messages":    {reply: EventMessagesPage, handle: d.fetchMessages},
		"message-delivered": {handle: d.messageDelivered},
		"message-read":      {handle: d.messageRead},
		"delete-message":    {handle: d.deleteMessage},
		"fetch-chat-list":   {reply: EventChatList, handle: d.fetchChatList},
		"invite-user":       {handle: d.inviteUser},
		"accept-invitation": {handle: d.acceptInvitation},
		"reject-invitation": {handle: d.rejectInvitation},
		"list-invitations":  {handle: d.listInvitations},
	}
	for event := range relay.Events {
		event := event
		d.routes[event] = route{handle: func(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
			return nil, d.relay.Forward(session, event, data)
		}}
	}

	return d
}

// Dispatch runs the handler for one frame to completion. An ack-bearing
// frame is acknowledged exactly once whatever the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, session *registry.Session, frame *Frame) {
	label := frame.Event
	rt, ok := d.routes[frame.Event]

	var result interface{}
	var err error
	if ok {
		result, err = rt.handle(ctx, session, frame.Data)
	} else {
		label = "unknown"
		err = fmt.Errorf("%q: %w", frame.Event, model.ErrorUnknownEvent)
	}

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.Events.WithLabelValues(label, outcome).Inc()

	switch {
	case frame.Ack != "" && err != nil:
		session.Reply(frame.Ack, &AckResult{Message: d.message(session, frame.Event, err)})
	case frame.Ack != "":
		session.Reply(frame.Ack, &AckResult{Success: true, Data: result})
	case err != nil:
		session.Emit(EventError, &ErrorEvent{Event: frame.Event, Message: d.message(session, frame.Event, err)})
	case rt.reply != "":
		session.Emit(rt.reply, result)
	}
}

// message is the text shown to the caller. Unexpected errors are logged and
// replaced by a generic message.
func (d *Dispatcher) message(session *registry.Session, event string, err error) string {
	if sentinel := model.ClientError(err); sentinel != nil {
		return sentinel.Error()
	}
	log.Errorf("socket: %s from %s failed: %v", event, session.User.Handle, err)
	return "internal error"
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return model.ErrorInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%v: %w", err, model.ErrorInvalidPayload)
	}
	return nil
}

type chatRequest struct {
	ChatID model.ChatID `json:"chatId"`
}

func decodeChat(data json.RawMessage) (model.ChatID, error) {
	req := &chatRequest{}
	if err := decode(data, req); err != nil {
		return "", err
	}
	if req.ChatID == "" {
		return "", fmt.Errorf("chatId: %w", model.ErrorInvalidPayload)
	}
	return req.ChatID, nil
}

type messageRequest struct {
	MessageID model.MessageID `json:"messageId"`
}

func decodeMessage(data json.RawMessage) (model.MessageID, error) {
	req := &messageRequest{}
	if err := decode(data, req); err != nil {
		return "", err
	}
	if req.MessageID == "" {
		return "", fmt.Errorf("messageId: %w", model.ErrorInvalidPayload)
	}
	return req.MessageID, nil
}

func (d *Dispatcher) joinChat(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	chatID, err := decodeChat(data)
	if err != nil {
		return nil, err
	}
	if _, err := d.chats.Join(ctx, chatID, session.User.Handle); err != nil {
		return nil, err
	}
	d.registry.Join(session, registry.ChatRoom(chatID))
	return &chatRequest{ChatID: chatID}, nil
}

func (d *Dispatcher) leaveChat(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	chatID, err := decodeChat(data)
	if err != nil {
		return nil, err
	}
	d.registry.Leave(session, registry.ChatRoom(chatID))
	return &chatRequest{ChatID: chatID}, nil
}

type sendRequest struct {
	chat.SendParams
	SenderID model.Handle `json:"senderId"`
}

type receivedMessage struct {
	Message *model.MessageView `json:"message"`
}

type chatListUpdate struct {
	MessageID model.MessageID `json:"messageId"`
	SenderID  model.Handle    `json:"senderId"`
	ChatID    model.ChatID    `json:"chatId"`
}

func (d *Dispatcher) sendMessage(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	req := &sendRequest{}
	if err := decode(data, req); err != nil {
		return nil, err
	}
	if req.SenderID != "" && req.SenderID != session.User.Handle {
		return nil, model.ErrorSenderMismatch
	}

	params := req.SendParams
	params.Sender = session.User.Handle
	sent, err := d.chats.SendMessage(ctx, &params)
	if err != nil {
		return nil, err
	}

	d.registry.Broadcast(registry.ChatRoom(sent.Message.ChatID), EventReceiveMessage, &receivedMessage{Message: sent.Message}, session)

	update := &chatListUpdate{
		MessageID: sent.Message.ID,
		SenderID:  sent.Message.SenderID,
		ChatID:    sent.Message.ChatID,
	}
	for _, participant := range sent.Participants {
		d.registry.SendToUser(participant, EventChatListUpdate, update, session)
	}

	return sent.Message, nil
}

func (d *Dispatcher) fetchMessages(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	params := &chat.HistoryParams{}
	if err := decode(data, params); err != nil {
		return nil, err
	}
	params.Viewer = session.User.Handle
	return d.chats.History(ctx, params)
}

type deliveryReceipt struct {
	UserID      model.Handle    `json:"userId"`
	MessageID   model.MessageID `json:"messageId"`
	ChatID      model.ChatID    `json:"chatId"`
	DeliveredAt *time.Time      `json:"deliveredAt"`
}

func (d *Dispatcher) messageDelivered(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	messageID, err := decodeMessage(data)
	if err != nil {
		return nil, err
	}

	view, err := d.chats.MarkDelivered(ctx, messageID, session.User.Handle)
	if err != nil {
		return nil, err
	}

	receipt := &deliveryReceipt{
		UserID:      session.User.Handle,
		MessageID:   view.ID,
		ChatID:      view.ChatID,
		DeliveredAt: view.Status.DeliveredAt,
	}
	d.registry.Broadcast(registry.ChatRoom(view.ChatID), EventDeliveryReceipt, receipt, session)
	return receipt, nil
}

type readReceipt struct {
	UserID model.Handle `json:"userId"`
	ChatID model.ChatID `json:"chatId"`
	ReadAt time.Time    `json:"readAt"`
}

func (d *Dispatcher) messageRead(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	chatID, err := decodeChat(data)
	if err != nil {
		return nil, err
	}

	readAt, err := d.chats.MarkRead(ctx, chatID, session.User.Handle)
	if err != nil {
		return nil, err
	}

	receipt := &readReceipt{
		UserID: session.User.Handle,
		ChatID: chatID,
		ReadAt: readAt,
	}
	d.registry.Broadcast(registry.ChatRoom(chatID), EventReadReceipt, receipt, session)
	return receipt, nil
}

func (d *Dispatcher) deleteMessage(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	messageID, err := decodeMessage(data)
	if err != nil {
		return nil, err
	}
	if err := d.chats.DeleteForMe(ctx, messageID, session.User.Handle); err != nil {
		return nil, err
	}
	return &messageRequest{MessageID: messageID}, nil
}

func (d *Dispatcher) fetchChatList(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	return d.chatList.List(ctx, session.User.Handle)
}

type inviteRequest struct {
	ToUserID model.Handle `json:"toUserId"`
}

func (d *Dispatcher) inviteUser(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	req := &inviteRequest{}
	if err := decode(data, req); err != nil {
		return nil, err
	}
	if req.ToUserID == "" {
		return nil, fmt.Errorf("toUserId: %w", model.ErrorInvalidPayload)
	}
	return d.invitations.Invite(ctx, session.User.Handle, req.ToUserID)
}

type invitationRequest struct {
	ID model.InvitationID `json:"invitationRequestId"`
}

func decodeInvitation(data json.RawMessage) (model.InvitationID, error) {
	req := &invitationRequest{}
	if err := decode(data, req); err != nil {
		return "", err
	}
	if req.ID == "" {
		return "", fmt.Errorf("invitationRequestId: %w", model.ErrorInvalidPayload)
	}
	return req.ID, nil
}

func (d *Dispatcher) acceptInvitation(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	invitationID, err := decodeInvitation(data)
	if err != nil {
		return nil, err
	}
	return d.invitations.Accept(ctx, invitationID, session.User.Handle)
}

func (d *Dispatcher) rejectInvitation(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	invitationID, err := decodeInvitation(data)
	if err != nil {
		return nil, err
	}
	return d.invitations.Reject(ctx, invitationID, session.User.Handle)
}

func (d *Dispatcher) listInvitations(ctx context.Context, session *registry.Session, data json.RawMessage) (interface{}, error) {
	return d.invitations.Pending(ctx, session.User.Handle)
}
