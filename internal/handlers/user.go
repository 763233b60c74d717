package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"uk.co.dudmesh.parley/internal/model"
)

type UserService interface {
	Create(ctx context.Context, params *model.CreateUserParams) (*model.User, error)
	Resolve(ctx context.Context, handle model.Handle) (*model.User, error)
}

func CreateUser(userService UserService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.CreateUserParams{}
		if err := c.Bind(params); err != nil {
			return err
		}
		user, err := userService.Create(c.Request().Context(), params)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusCreated, user)
	}
}

func GetUser(userService UserService) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := userService.Resolve(c.Request().Context(), model.Handle(c.Param("handle")))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, user.Identity())
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func Health(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, model.ErrorUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, model.ErrorUserNotFound.Error())
	case errors.Is(err, model.ErrorHandleTaken):
		return echo.NewHTTPError(http.StatusConflict, model.ErrorHandleTaken.Error())
	case errors.Is(err, model.ErrorInvalidPayload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}
