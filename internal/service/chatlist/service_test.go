package chatlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uk.co.dudmesh.parley/internal/clock"
	"uk.co.dudmesh.parley/internal/model"
	"uk.co.dudmesh.parley/internal/registry"
	"uk.co.dudmesh.parley/internal/service/chat"
	"uk.co.dudmesh.parley/internal/service/invitation"
	"uk.co.dudmesh.parley/internal/service/user"
	"uk.co.dudmesh.parley/internal/store"
	"uk.co.dudmesh.parley/internal/store/storetest"
)

type countingStore struct {
	*store.Store
	lookups int
}

func (c *countingStore) UsersByIDs(ctx context.Context, userIDs []model.UserID) (map[model.UserID]*model.User, error) {
	c.lookups++
	return c.Store.UsersByIDs(ctx, userIDs)
}

func (c *countingStore) MessagesByIDs(ctx context.Context, messageIDs []model.MessageID) (map[model.MessageID]*model.Message, error) {
	c.lookups++
	return c.Store.MessagesByIDs(ctx, messageIDs)
}

func (c *countingStore) InvitationCounterparts(ctx context.Context, userID model.UserID, status model.InvitationStatus) (map[model.UserID]struct{}, error) {
	c.lookups++
	return c.Store.InvitationCounterparts(ctx, userID, status)
}

func TestList(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := storetest.New(t)
	clk := clock.NewFake(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC), time.Second)
	reg := registry.New(16)
	users := user.New(s, clk)
	invitations := invitation.New(s, users, reg, clk)
	chats := chat.New(s, users, clk, chat.Paging{})

	created := map[model.Handle]*model.User{}
	for _, handle := range []model.Handle{"alice", "bob", "carol", "dave"} {
		u, err := users.Create(ctx, &model.CreateUserParams{Handle: handle, Name: string(handle)})
		require.NoError(t, err)
		created[handle] = u
	}

	connect := func(from, to model.Handle) {
		invited, err := invitations.Invite(ctx, from, to)
		require.NoError(t, err)
		_, err = invitations.Accept(ctx, invited.ID, to)
		require.NoError(t, err)
	}
	send := func(chatID model.ChatID, from model.Handle, body string) {
		_, err := chats.SendMessage(ctx, &chat.SendParams{ChatID: chatID, Sender: from, Body: body})
		require.NoError(t, err)
	}

	connect("alice", "bob")
	connect("carol", "alice")
	_, err := invitations.Invite(ctx, "alice", "dave")
	require.NoError(t, err)
	_, err = s.EnsureChat(ctx, chat.NewPrivateChat(created["alice"], created["dave"], clk.Now()))
	require.NoError(t, err)

	send("alice_bob", "bob", "hi")
	send("alice_bob", "bob", "are you there?")
	send("alice_carol", "alice", "lunch?")

	reg.Register(reg.NewSession(created["carol"]))

	counting := &countingStore{Store: s}
	service := New(counting, users, reg)

	summaries, err := service.List(ctx, "alice")
	assert.Nil(err)
	assert.Equal(4, counting.lookups)

	if !assert.Len(summaries, 3) {
		return
	}

	t.Run("Most recently updated first", func(t *testing.T) {
		assert.Equal(model.ChatID("alice_carol"), summaries[0].ChatID)
		assert.Equal(model.ChatID("alice_bob"), summaries[1].ChatID)
		assert.Equal(model.ChatID("alice_dave"), summaries[2].ChatID)
	})

	t.Run("Counterpart and presence", func(t *testing.T) {
		assert.Equal(model.Handle("carol"), summaries[0].User.Handle)
		assert.True(summaries[0].Online)
		assert.Equal(model.Handle("bob"), summaries[1].User.Handle)
		assert.False(summaries[1].Online)
	})

	t.Run("Last message and unread", func(t *testing.T) {
		if assert.NotNil(summaries[0].LastMessage) {
			assert.Equal("lunch?", summaries[0].LastMessage.Text)
			assert.Equal(model.Handle("alice"), summaries[0].LastMessage.SenderID)
		}
		assert.Equal(0, summaries[0].UnreadCount)

		if assert.NotNil(summaries[1].LastMessage) {
			assert.Equal("are you there?", summaries[1].LastMessage.Text)
			assert.Equal(model.Handle("bob"), summaries[1].LastMessage.SenderID)
		}
		assert.Equal(2, summaries[1].UnreadCount)

		assert.Nil(summaries[2].LastMessage)
		assert.Equal(0, summaries[2].UnreadCount)
	})

	t.Run("Invitation annotations", func(t *testing.T) {
		assert.True(summaries[0].Connected)
		assert.False(summaries[0].InvitationPending)
		assert.True(summaries[1].Connected)
		assert.False(summaries[2].Connected)
		assert.True(summaries[2].InvitationPending)
	})

	t.Run("Reading clears unread", func(t *testing.T) {
		_, err := chats.MarkRead(ctx, "alice_bob", "alice")
		require.NoError(t, err)

		summaries, err := service.List(ctx, "alice")
		assert.Nil(err)
		for _, summary := range summaries {
			assert.Equal(0, summary.UnreadCount, summary.ChatID)
		}

		summaries, err = service.List(ctx, "bob")
		assert.Nil(err)
		if assert.Len(summaries, 1) {
			assert.Equal(0, summaries[0].UnreadCount)
			assert.Equal(model.Handle("alice"), summaries[0].User.Handle)
		}
	})

	t.Run("Unknown viewer", func(t *testing.T) {
		_, err := service.List(ctx, "mallory")
		assert.ErrorIs(err, model.ErrorUserNotFound)
	})
}
