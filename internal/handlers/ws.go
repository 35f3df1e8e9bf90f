package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chathubhq/chathub/internal/auth"
	"github.com/chathubhq/chathub/internal/fanout"
)

// WSHandler upgrades operator connections and hands them to the fanout
// hub. Authentication happens before the upgrade via the JWT middleware
// (token query parameter for browser clients).
type WSHandler struct {
	hub      *fanout.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(log *slog.Logger, hub *fanout.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// operator clients connect from configured frontends only;
			// auth is enforced by the JWT middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "ws")),
	}
}

func (h *WSHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Connect)
}

// Connect runs one operator connection until it closes. The first frame
// tells the client its session id so REST calls can exclude themselves
// from fanout.
func (h *WSHandler) Connect(c echo.Context) error {
	operatorID, err := auth.OperatorIDFromContext(c)
	if err != nil {
		return err
	}
	tenantID := auth.TenantIDFromContext(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.Any("error", err))
		return nil
	}

	session := h.hub.Register(operatorID, tenantID)
	h.logger.Info("operator connected",
		slog.String("operator_id", operatorID),
		slog.String("session_id", session.ID))

	hello, _ := json.Marshal(map[string]string{
		"type":       "hello",
		"session_id": session.ID,
	})
	session.Send(hello)

	h.hub.ServeConn(conn, session)

	h.logger.Info("operator disconnected",
		slog.String("operator_id", operatorID),
		slog.String("session_id", session.ID))
	return nil
}
