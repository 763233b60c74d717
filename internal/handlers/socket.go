package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"uk.co.dudmesh.parley/internal/metrics"
	"uk.co.dudmesh.parley/internal/model"
	"uk.co.dudmesh.parley/internal/registry"
)

const (
	defaultPingInterval = 25 * time.Second
	defaultWriteTimeout = 10 * time.Second
	pingTimeout         = 5 * time.Second
)

type Authenticator interface {
	Authenticate(r *http.Request) (model.Handle, error)
}

type SocketOptions struct {
	OriginPatterns []string
	MaxFrame       int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

// Socket admits a caller and serves its connection until either side closes
// it. Frames from one connection are handled one at a time in arrival order.
func Socket(gate Authenticator, users UserService, reg *registry.Registry, dispatcher *Dispatcher, options SocketOptions) echo.HandlerFunc {
	if options.PingInterval <= 0 {
		options.PingInterval = defaultPingInterval
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaultWriteTimeout
	}

	acceptOptions := &websocket.AcceptOptions{}
	for _, origin := range options.OriginPatterns {
		if origin == "*" {
			acceptOptions.InsecureSkipVerify = true
		}
	}
	if !acceptOptions.InsecureSkipVerify {
		acceptOptions.OriginPatterns = options.OriginPatterns
	}

	return func(c echo.Context) error {
		handle, err := gate.Authenticate(c.Request())
		if err != nil {
			metrics.Admissions.WithLabelValues(metrics.OutcomeRejected).Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}

		user, err := users.Resolve(c.Request().Context(), handle)
		if err != nil {
			if errors.Is(err, model.ErrorUserNotFound) {
				metrics.Admissions.WithLabelValues(metrics.OutcomeRejected).Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, model.ErrorUserNotFound.Error())
			}
			return err
		}

		conn, err := websocket.Accept(c.Response(), c.Request(), acceptOptions)
		if err != nil {
			// Accept has already written the response
			log.Warnf("socket: upgrade for %s failed: %v", handle, err)
			return nil
		}
		metrics.Admissions.WithLabelValues(metrics.OutcomeOK).Inc()
		if options.MaxFrame > 0 {
			conn.SetReadLimit(options.MaxFrame)
		}

		session := reg.NewSession(user)
		reg.Register(session)
		metrics.Connections.Inc()
		defer func() {
			reg.Unregister(session)
			metrics.Connections.Dec()
		}()

		ctx, cancel := context.WithCancel(c.Request().Context())
		defer cancel()

		go func() {
			writeLoop(ctx, conn, session, options)
			// releases a handler blocked on an ack nobody will write
			reg.Unregister(session)
		}()
		readLoop(ctx, conn, session, dispatcher)

		conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, session *registry.Session, dispatcher *Dispatcher) {
	// handlers run to completion even if the connection drops meanwhile
	handlerCtx := context.WithoutCancel(ctx)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					log.Infof("socket: read from %s (%s) ended: %v", session.User.Handle, session.ID, err)
				}
			}
			return
		}

		frame := &Frame{}
		if err := json.Unmarshal(data, frame); err != nil || frame.Event == "" {
			session.Emit(EventError, &ErrorEvent{Message: model.ErrorInvalidPayload.Error()})
			continue
		}

		dispatcher.Dispatch(handlerCtx, session, frame)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, session *registry.Session, options SocketOptions) {
	ticker := time.NewTicker(options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case ev := <-session.Outbox():
			writeCtx, cancel := context.WithTimeout(ctx, options.WriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				log.Warnf("socket: write %s to %s failed: %v", ev.Name, session.User.Handle, err)
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Infof("socket: ping to %s failed: %v", session.User.Handle, err)
				conn.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}
