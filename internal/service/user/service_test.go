package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"uk.co.dudmesh.parley/internal/clock"
	"uk.co.dudmesh.parley/internal/model"
	"uk.co.dudmesh.parley/internal/store/storetest"
)

func TestUserService(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	createParams := &model.CreateUserParams{
		Handle: " testuser ",
		Name:   "Test User",
		Email:  "TestUser@TestDomain.com",
	}

	service := New(storetest.New(t), clock.NewFake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 0))
	var userID model.UserID

	t.Run("Create", func(t *testing.T) {
		user, err := service.Create(ctx, createParams)
		assert.Nil(err)
		if assert.NotNil(user) {
			userID = user.ID
			assert.Equal(model.Handle("testuser"), user.Handle)
			assert.Equal("testuser@testdomain.com", user.Email)
		}
	})

	t.Run("Create duplicate", func(t *testing.T) {
		_, err := service.Create(ctx, createParams)
		assert.ErrorIs(err, model.ErrorHandleTaken)
	})

	t.Run("Create without handle", func(t *testing.T) {
		_, err := service.Create(ctx, &model.CreateUserParams{Handle: "  "})
		assert.ErrorIs(err, model.ErrorInvalidPayload)
	})

	t.Run("Resolve", func(t *testing.T) {
		user, err := service.Resolve(ctx, "testuser")
		assert.Nil(err)
		if assert.NotNil(user) {
			assert.Equal(userID, user.ID)
		}

		_, err = service.Resolve(ctx, "nobody")
		assert.ErrorIs(err, model.ErrorUserNotFound)
	})

	t.Run("Fetch", func(t *testing.T) {
		user, err := service.Fetch(ctx, userID)
		assert.Nil(err)
		assert.NotNil(user)
	})
}
