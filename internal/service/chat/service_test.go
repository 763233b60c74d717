package chat

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uk.co.dudmesh.parley/internal/clock"
	"uk.co.dudmesh.parley/internal/model"
	"uk.co.dudmesh.parley/internal/service/user"
	"uk.co.dudmesh.parley/internal/store"
	"uk.co.dudmesh.parley/internal/store/storetest"
)

type fixture struct {
	store   *store.Store
	service *service
	alice   *model.User
	bob     *model.User
	chat    *model.Chat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s := storetest.New(t)
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)
	users := user.New(s, clk)

	alice, err := users.Create(ctx, &model.CreateUserParams{Handle: "alice", Name: "Alice"})
	require.NoError(t, err)
	bob, err := users.Create(ctx, &model.CreateUserParams{Handle: "bob", Name: "Bob"})
	require.NoError(t, err)
	_, err = users.Create(ctx, &model.CreateUserParams{Handle: "carol", Name: "Carol"})
	require.NoError(t, err)

	chat, err := s.EnsureChat(ctx, NewPrivateChat(alice, bob, clk.Now()))
	require.NoError(t, err)

	return &fixture{
		store:   s,
		service: New(s, users, clk, Paging{}),
		alice:   alice,
		bob:     bob,
		chat:    chat,
	}
}

func (f *fixture) send(t *testing.T, from model.Handle, body string) *model.MessageView {
	t.Helper()
	sent, err := f.service.SendMessage(context.Background(), &SendParams{
		ChatID: f.chat.ID,
		Sender: from,
		Body:   body,
	})
	require.NoError(t, err)
	return sent.Message
}

func TestPrivateChatID(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(model.ChatID("alice_bob"), PrivateChatID("bob", "alice"))
	assert.Equal(PrivateChatID("alice", "bob"), PrivateChatID("bob", "alice"))
	assert.Equal(PrivateChatID("x1", "x10"), PrivateChatID("x10", "x1"))

	a := &model.User{ID: "1", Handle: "zed"}
	b := &model.User{ID: "2", Handle: "amy"}
	chat := NewPrivateChat(a, b, time.Now())
	assert.Equal(model.ChatID("amy_zed"), chat.ID)
	assert.Equal(model.ChatKindPrivate, chat.Kind)
	assert.ElementsMatch([]model.UserID{"1", "2"}, chat.Participants)
}

func TestSendMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	t.Run("Send", func(t *testing.T) {
		sent, err := f.service.SendMessage(ctx, &SendParams{ChatID: f.chat.ID, Sender: "alice", Body: "hello"})
		assert.Nil(err)
		if assert.NotNil(sent) {
			assert.Equal(model.Handle("alice"), sent.Message.SenderID)
			assert.Equal("hello", sent.Message.Body)
			assert.Equal(model.MessageKindText, sent.Message.Kind)
			assert.False(sent.Message.Status.SentAt.IsZero())
			assert.Nil(sent.Message.Status.DeliveredAt)
			assert.Nil(sent.Message.Status.ReadAt)
			assert.ElementsMatch([]model.Handle{"alice", "bob"}, sent.Participants)

			chat, err := f.store.ChatByID(ctx, f.chat.ID)
			assert.Nil(err)
			if assert.NotNil(chat.LastMessageID) {
				assert.Equal(sent.Message.ID, *chat.LastMessageID)
			}
		}
	})

	t.Run("Unknown sender", func(t *testing.T) {
		_, err := f.service.SendMessage(ctx, &SendParams{ChatID: f.chat.ID, Sender: "mallory", Body: "hi"})
		assert.ErrorIs(err, model.ErrorUserNotFound)
	})

	t.Run("Not a participant", func(t *testing.T) {
		_, err := f.service.SendMessage(ctx, &SendParams{ChatID: f.chat.ID, Sender: "carol", Body: "hi"})
		assert.ErrorIs(err, model.ErrorNotParticipant)
	})

	t.Run("Unknown chat", func(t *testing.T) {
		_, err := f.service.SendMessage(ctx, &SendParams{ChatID: "alice_carol", Sender: "alice", Body: "hi"})
		assert.ErrorIs(err, model.ErrorChatNotFound)
	})

	t.Run("Invalid content", func(t *testing.T) {
		_, err := f.service.SendMessage(ctx, &SendParams{ChatID: f.chat.ID, Sender: "alice", Body: "  "})
		assert.ErrorIs(err, model.ErrorEmptyMessage)

		_, err = f.service.SendMessage(ctx, &SendParams{ChatID: f.chat.ID, Sender: "alice", Body: "x", Kind: "sticker"})
		assert.ErrorIs(err, model.ErrorInvalidMessageKind)
	})
}

func TestUnreadCount(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		f.send(t, "bob", fmt.Sprintf("message %d", i))
	}

	count, err := f.service.UnreadCount(ctx, f.chat.ID, "alice")
	assert.Nil(err)
	assert.Equal(5, count)

	count, err = f.service.UnreadCount(ctx, f.chat.ID, "bob")
	assert.Nil(err)
	assert.Equal(0, count)

	readAt, err := f.service.MarkRead(ctx, f.chat.ID, "alice")
	assert.Nil(err)
	assert.False(readAt.IsZero())

	count, err = f.service.UnreadCount(ctx, f.chat.ID, "alice")
	assert.Nil(err)
	assert.Equal(0, count)

	f.send(t, "bob", "one more")

	count, err = f.service.UnreadCount(ctx, f.chat.ID, "alice")
	assert.Nil(err)
	assert.Equal(1, count)
}

func TestReceipts(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	message := f.send(t, "bob", "ping")

	t.Run("Delivered is set once", func(t *testing.T) {
		first, err := f.service.MarkDelivered(ctx, message.ID, "alice")
		assert.Nil(err)
		if assert.NotNil(first) && assert.NotNil(first.Status.DeliveredAt) {
			second, err := f.service.MarkDelivered(ctx, message.ID, "alice")
			assert.Nil(err)
			assert.True(first.Status.DeliveredAt.Equal(*second.Status.DeliveredAt))
			assert.Equal(model.Handle("bob"), second.SenderID)
		}
	})

	t.Run("Sender acknowledgement is ignored", func(t *testing.T) {
		own := f.send(t, "alice", "pong")
		view, err := f.service.MarkDelivered(ctx, own.ID, "alice")
		assert.Nil(err)
		assert.Nil(view.Status.DeliveredAt)
	})

	t.Run("Unknown message", func(t *testing.T) {
		_, err := f.service.MarkDelivered(ctx, "missing", "alice")
		assert.ErrorIs(err, model.ErrorMessageNotFound)
	})

	t.Run("Read is set once", func(t *testing.T) {
		_, err := f.service.MarkRead(ctx, f.chat.ID, "alice")
		assert.Nil(err)
		first, err := f.store.MessageByID(ctx, message.ID)
		assert.Nil(err)
		if assert.NotNil(first.Status.ReadAt) {
			_, err = f.service.MarkRead(ctx, f.chat.ID, "alice")
			assert.Nil(err)
			second, err := f.store.MessageByID(ctx, message.ID)
			assert.Nil(err)
			assert.True(first.Status.ReadAt.Equal(*second.Status.ReadAt))
		}
	})

	t.Run("Outsider cannot acknowledge", func(t *testing.T) {
		_, err := f.service.MarkRead(ctx, f.chat.ID, "carol")
		assert.ErrorIs(err, model.ErrorNotParticipant)
	})
}

func TestHistory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 25; i++ {
		f.send(t, "alice", fmt.Sprintf("message %02d", i))
	}

	t.Run("First page is the newest, oldest first", func(t *testing.T) {
		page, err := f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "bob", Limit: 10})
		assert.Nil(err)
		if assert.Len(page.Messages, 10) {
			assert.Equal(1, page.Page)
			assert.Equal("message 15", page.Messages[0].Body)
			assert.Equal("message 24", page.Messages[9].Body)
		}
	})

	t.Run("Last page", func(t *testing.T) {
		page, err := f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "bob", Page: 3, Limit: 10})
		assert.Nil(err)
		if assert.Len(page.Messages, 5) {
			assert.Equal("message 00", page.Messages[0].Body)
		}
	})

	t.Run("Pages past the end are empty", func(t *testing.T) {
		page, err := f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "bob", Page: 4, Limit: 10})
		assert.Nil(err)
		assert.Len(page.Messages, 0)

		for _, n := range []int{math.MaxInt32, math.MaxInt} {
			page, err = f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "bob", Page: n, Limit: 10})
			assert.Nil(err)
			assert.Equal(n, page.Page)
			assert.Len(page.Messages, 0)
		}
	})

	t.Run("Default and maximum page size", func(t *testing.T) {
		page, err := f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "bob"})
		assert.Nil(err)
		assert.Len(page.Messages, DefaultPageSize)

		page, err = f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "bob", Limit: 1000})
		assert.Nil(err)
		assert.Len(page.Messages, 25)
	})

	t.Run("Fetching marks read", func(t *testing.T) {
		count, err := f.service.UnreadCount(ctx, f.chat.ID, "bob")
		assert.Nil(err)
		assert.Equal(0, count)

		page, err := f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "alice", Limit: 1})
		assert.Nil(err)
		if assert.Len(page.Messages, 1) {
			assert.NotNil(page.Messages[0].Status.ReadAt)
		}
	})

	t.Run("Deleted for me", func(t *testing.T) {
		page, err := f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "alice", Limit: 1})
		assert.Nil(err)
		newest := page.Messages[0]

		assert.Nil(f.service.DeleteForMe(ctx, newest.ID, "alice"))
		assert.Nil(f.service.DeleteForMe(ctx, newest.ID, "alice"))

		page, err = f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "alice", Limit: 1})
		assert.Nil(err)
		assert.NotEqual(newest.ID, page.Messages[0].ID)

		page, err = f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "bob", Limit: 1})
		assert.Nil(err)
		assert.Equal(newest.ID, page.Messages[0].ID)

		assert.ErrorIs(f.service.DeleteForMe(ctx, newest.ID, "carol"), model.ErrorNotParticipant)
	})
}

func TestSendThenFetch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	hello := f.send(t, "alice", "hello")

	page, err := f.service.History(ctx, &HistoryParams{ChatID: f.chat.ID, Viewer: "bob"})
	assert.Nil(err)
	if assert.Len(page.Messages, 1) {
		assert.Equal(hello.ID, page.Messages[0].ID)
		assert.Equal(model.Handle("alice"), page.Messages[0].SenderID)
	}

	stored, err := f.store.MessageByID(ctx, hello.ID)
	assert.Nil(err)
	assert.NotNil(stored.Status.ReadAt)

	count, err := f.service.UnreadCount(ctx, f.chat.ID, "alice")
	assert.Nil(err)
	assert.Equal(0, count)

	count, err = f.service.UnreadCount(ctx, f.chat.ID, "bob")
	assert.Nil(err)
	assert.Equal(0, count)

	chat, err := f.service.Join(ctx, f.chat.ID, "bob")
	assert.Nil(err)
	assert.Equal(f.chat.ID, chat.ID)
}
