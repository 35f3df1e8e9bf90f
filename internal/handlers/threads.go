package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/chathubhq/chathub/internal/auth"
	"github.com/chathubhq/chathub/internal/config"
	"github.com/chathubhq/chathub/internal/dispatch"
	"github.com/chathubhq/chathub/internal/fanout"
	"github.com/chathubhq/chathub/internal/message"
	"github.com/chathubhq/chathub/internal/platform"
	"github.com/chathubhq/chathub/internal/thread"
)

// sessionHeader lets a client name its own WebSocket session so its REST
// writes are not echoed back to it.
const sessionHeader = "X-Session-ID"

// ThreadService is the thread access the handler needs.
type ThreadService interface {
	Get(ctx context.Context, id string) (thread.Thread, error)
	ListByTenant(ctx context.Context, tenantID, status, assignedTo string, limit, offset int) ([]thread.Thread, error)
	MarkRead(ctx context.Context, threadID string) error
	SetStatus(ctx context.Context, threadID, status string) error
}

// MessageReader reads and stamps a thread's messages.
type MessageReader interface {
	ListByThread(ctx context.Context, threadID string, page, size int) ([]message.Message, error)
	MarkThreadRead(ctx context.Context, threadID string, at time.Time) (int64, error)
}

// Replier dispatches operator replies.
type Replier interface {
	Send(ctx context.Context, req dispatch.Request) (message.Message, error)
}

// Broadcaster fans events out to connected operator clients.
type Broadcaster interface {
	Publish(event fanout.Event, originSessionID string, scopes ...string)
}

// ThreadsHandler serves the operator-facing thread API.
type ThreadsHandler struct {
	threads  ThreadService
	messages MessageReader
	replier  Replier
	hub      Broadcaster
	validate *validator.Validate
	logger   *slog.Logger
}

// NewThreadsHandler creates a ThreadsHandler.
func NewThreadsHandler(log *slog.Logger, threads ThreadService, messages MessageReader, replier Replier, hub Broadcaster) *ThreadsHandler {
	return &ThreadsHandler{
		threads:  threads,
		messages: messages,
		replier:  replier,
		hub:      hub,
		validate: validator.New(),
		logger:   log.With(slog.String("handler", "threads")),
	}
}

func (h *ThreadsHandler) Register(e *echo.Echo) {
	g := e.Group("/threads")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/messages", h.ListMessages)
	g.POST("/:id/messages", h.SendMessage)
	g.POST("/:id/read", h.MarkRead)
	g.PATCH("/:id/status", h.SetStatus)
}

// List returns the tenant's threads, most recently active first.
func (h *ThreadsHandler) List(c echo.Context) error {
	tenantID := auth.TenantIDFromContext(c)
	page, size := pagination(c)

	items, err := h.threads.ListByTenant(c.Request().Context(), tenantID,
		strings.TrimSpace(c.QueryParam("status")),
		strings.TrimSpace(c.QueryParam("assigned_to")),
		size, (page-1)*size)
	if err != nil {
		h.logger.Error("list threads", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list threads")
	}
	if items == nil {
		items = []thread.Thread{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"threads": items,
		"page":    page,
		"size":    size,
	})
}

// Get returns one thread.
func (h *ThreadsHandler) Get(c echo.Context) error {
	th, err := h.loadThread(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, th)
}

// ListMessages returns one page of a thread's messages in conversation
// order.
func (h *ThreadsHandler) ListMessages(c echo.Context) error {
	th, err := h.loadThread(c)
	if err != nil {
		return err
	}
	page, size := pagination(c)

	items, err := h.messages.ListByThread(c.Request().Context(), th.ID, page, size)
	if err != nil {
		h.logger.Error("list messages", slog.String("thread_id", th.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}
	if items == nil {
		items = []message.Message{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"messages": items,
		"page":     page,
		"size":     size,
	})
}

type sendMessageRequest struct {
	Content     string                `json:"content" validate:"required_without=Attachments,max=10000"`
	Attachments []platform.Attachment `json:"attachments" validate:"max=10,dive"`
}

// SendMessage dispatches an operator reply into the thread's platform.
func (h *ThreadsHandler) SendMessage(c echo.Context) error {
	th, err := h.loadThread(c)
	if err != nil {
		return err
	}
	operatorID, err := auth.OperatorIDFromContext(c)
	if err != nil {
		return err
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Content = strings.TrimSpace(req.Content)
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.replier.Send(c.Request().Context(), dispatch.Request{
		TenantID:        auth.TenantIDFromContext(c),
		ThreadID:        th.ID,
		OperatorID:      operatorID,
		OperatorName:    auth.OperatorNameFromContext(c),
		Content:         req.Content,
		Attachments:     req.Attachments,
		OriginSessionID: strings.TrimSpace(c.Request().Header.Get(sessionHeader)),
	})
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrNoSender):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, dispatch.ErrDeliveryFailed):
			// the message is persisted as FAILED; surface both
			return c.JSON(http.StatusBadGateway, map[string]any{
				"error":   "platform delivery failed",
				"message": msg,
			})
		default:
			h.logger.Error("send message", slog.String("thread_id", th.ID), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to send message")
		}
	}
	return c.JSON(http.StatusCreated, msg)
}

// MarkRead zeroes the unread counter and stamps the thread's unread
// inbound messages.
func (h *ThreadsHandler) MarkRead(c echo.Context) error {
	th, err := h.loadThread(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	stamped, err := h.messages.MarkThreadRead(ctx, th.ID, time.Now().UTC())
	if err != nil {
		h.logger.Error("mark messages read", slog.String("thread_id", th.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark read")
	}
	if err := h.threads.MarkRead(ctx, th.ID); err != nil {
		h.logger.Error("mark thread read", slog.String("thread_id", th.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark read")
	}

	origin := strings.TrimSpace(c.Request().Header.Get(sessionHeader))
	h.hub.Publish(fanout.ThreadReadEvent(th.ID), origin,
		fanout.TenantScope(th.TenantID), fanout.ThreadScope(th.ID))

	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"read":   stamped,
	})
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open pending resolved closed archived spam"`
}

// SetStatus changes the thread lifecycle state.
func (h *ThreadsHandler) SetStatus(c echo.Context) error {
	th, err := h.loadThread(c)
	if err != nil {
		return err
	}

	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.threads.SetStatus(c.Request().Context(), th.ID, req.Status); err != nil {
		h.logger.Error("set status", slog.String("thread_id", th.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set status")
	}
	th.Status = req.Status
	return c.JSON(http.StatusOK, th)
}

// loadThread resolves the :id thread and enforces tenant ownership.
func (h *ThreadsHandler) loadThread(c echo.Context) (thread.Thread, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return thread.Thread{}, echo.NewHTTPError(http.StatusBadRequest, "thread id is required")
	}
	th, err := h.threads.Get(c.Request().Context(), id)
	if errors.Is(err, thread.ErrNotFound) {
		return thread.Thread{}, echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	if err != nil {
		h.logger.Error("get thread", slog.String("thread_id", id), slog.Any("error", err))
		return thread.Thread{}, echo.NewHTTPError(http.StatusInternalServerError, "failed to load thread")
	}
	if tenantID := auth.TenantIDFromContext(c); th.TenantID != tenantID {
		return thread.Thread{}, echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	return th, nil
}

func pagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size < 1 {
		size = config.DefaultPageSize
	}
	if size > config.MaxPageSize {
		size = config.MaxPageSize
	}
	return page, size
}
