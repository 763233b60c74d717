package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"

	"uk.co.dudmesh.parley/internal/auth"
	"uk.co.dudmesh.parley/internal/boot"
	"uk.co.dudmesh.parley/internal/clock"
	"uk.co.dudmesh.parley/internal/handlers"
	"uk.co.dudmesh.parley/internal/registry"
	"uk.co.dudmesh.parley/internal/relay"
	"uk.co.dudmesh.parley/internal/service/chat"
	"uk.co.dudmesh.parley/internal/service/chatlist"
	"uk.co.dudmesh.parley/internal/service/invitation"
	"uk.co.dudmesh.parley/internal/service/user"
	"uk.co.dudmesh.parley/internal/store"
)

func main() {
	config, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}

	db, err := store.Open(context.Background(), config)
	if err != nil {
		log.Fatalf("store: %+v", err)
	}
	defer db.Close()

	gate, err := auth.New(auth.Options{
		Secret:        config.Auth.Secret,
		PublicJWK:     config.Auth.PublicJWK,
		PublicJWKFile: config.Auth.PublicJWKFile,
		AllowCallerID: config.Auth.AllowCallerID,
	})
	if err != nil {
		log.Fatalf("auth: %+v", err)
	}
	if config.Auth.PublicJWKFile != "" {
		watcher, err := gate.Watch()
		if err != nil {
			log.Fatalf("auth: %+v", err)
		}
		defer watcher.Close()
	}
	if !gate.Enabled() {
		log.Warn("auth: no token verification key and AUTH_ALLOW_CALLER_ID unset, every connection will be refused")
	}

	clk := clock.Real()
	connections := registry.New(config.Socket.SendBuffer)
	userService := user.New(db, clk)
	chatService := chat.New(db, userService, clk, chat.Paging{
		Default: config.Chat.PageSize,
		Max:     config.Chat.MaxPageSize,
	})
	chatListService := chatlist.New(db, userService, connections)
	invitationService := invitation.New(db, userService, connections, clk)
	signals := relay.New(connections, config.Socket.MaxSignalPayload)
	dispatcher := handlers.NewDispatcher(connections, signals, chatService, chatListService, invitationService)

	server := echo.New()
	server.HideBanner = true
	server.Use(middleware.BodyLimit("1M"))
	server.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	server.Use(echoprometheus.NewMiddleware("parley"))
	server.Use(middleware.Recover())
	server.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.AllowedOrigins(),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderXRequestID},
	}))

	server.Logger.SetLevel(log.INFO)

	server.GET("/healthz", handlers.Health(db))
	server.GET("/socket", handlers.Socket(gate, userService, connections, dispatcher, handlers.SocketOptions{
		OriginPatterns: config.AllowedOrigins(),
		MaxFrame:       config.Socket.MaxFrame,
		PingInterval:   config.Socket.PingInterval,
		WriteTimeout:   config.Socket.WriteTimeout,
	}))
	server.GET("/user/:handle", handlers.GetUser(userService))
	if !config.IsProduction() {
		server.POST("/local/user", handlers.CreateUser(userService))
	}

	go func() {
		metrics := echo.New()
		metrics.HideBanner = true
		metrics.GET("/metrics", echoprometheus.NewHandler())
		if err := metrics.Start(":" + config.Server.MetricsPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	go func() {
		if err := server.Start(":" + config.Server.Port); err != nil && err != http.ErrServerClosed {
			server.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		server.Logger.Fatal(err)
	}
}
