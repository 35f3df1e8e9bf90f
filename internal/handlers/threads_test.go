package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/chathubhq/chathub/internal/dispatch"
	"github.com/chathubhq/chathub/internal/fanout"
	"github.com/chathubhq/chathub/internal/message"
	"github.com/chathubhq/chathub/internal/thread"
)

type fakeThreadService struct {
	threads    map[string]thread.Thread
	markedRead []string
	statuses   map[string]string
}

func (f *fakeThreadService) Get(ctx context.Context, id string) (thread.Thread, error) {
	th, ok := f.threads[id]
	if !ok {
		return thread.Thread{}, thread.ErrNotFound
	}
	return th, nil
}

func (f *fakeThreadService) ListByTenant(ctx context.Context, tenantID, status, assignedTo string, limit, offset int) ([]thread.Thread, error) {
	var items []thread.Thread
	for _, th := range f.threads {
		if th.TenantID == tenantID {
			items = append(items, th)
		}
	}
	return items, nil
}

func (f *fakeThreadService) MarkRead(ctx context.Context, threadID string) error {
	f.markedRead = append(f.markedRead, threadID)
	return nil
}

func (f *fakeThreadService) SetStatus(ctx context.Context, threadID, status string) error {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[threadID] = status
	return nil
}

type fakeMessageReader struct {
	messages []message.Message
	stamped  int64
}

func (f *fakeMessageReader) ListByThread(ctx context.Context, threadID string, page, size int) ([]message.Message, error) {
	return f.messages, nil
}

func (f *fakeMessageReader) MarkThreadRead(ctx context.Context, threadID string, at time.Time) (int64, error) {
	return f.stamped, nil
}

type fakeReplier struct {
	msg message.Message
	err error
	got dispatch.Request
}

func (f *fakeReplier) Send(ctx context.Context, req dispatch.Request) (message.Message, error) {
	f.got = req
	return f.msg, f.err
}

type recordingHub struct {
	events  []fanout.Event
	origins []string
}

func (r *recordingHub) Publish(event fanout.Event, originSessionID string, scopes ...string) {
	r.events = append(r.events, event)
	r.origins = append(r.origins, originSessionID)
}

func authedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, operatorID, tenantID string) echo.Context {
	c := e.NewContext(req, rec)
	claims := jwt.MapClaims{"sub": operatorID, "operator_id": operatorID, "name": "Olga P"}
	if tenantID != "" {
		claims["tenant_id"] = tenantID
	}
	c.Set("user", &jwt.Token{Claims: claims, Valid: true})
	return c
}

func newThreadsEnv() (*ThreadsHandler, *fakeThreadService, *fakeReplier, *recordingHub) {
	threads := &fakeThreadService{threads: map[string]thread.Thread{
		"th-1": {ID: "th-1", TenantID: "t1", ChannelID: "ch-1", ContactID: "c1", Status: thread.StatusOpen},
	}}
	replier := &fakeReplier{msg: message.Message{ID: "m-1", ThreadID: "th-1", Status: message.StatusSent}}
	hub := &recordingHub{}
	h := NewThreadsHandler(slog.Default(), threads, &fakeMessageReader{stamped: 3}, replier, hub)
	return h, threads, replier, hub
}

func TestGetThread(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newThreadsEnv()
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/threads/th-1", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "op-1", "t1")
	c.SetParamNames("id")
	c.SetParamValues("th-1")

	if err := h.Get(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	var th thread.Thread
	if err := json.Unmarshal(rec.Body.Bytes(), &th); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if th.ID != "th-1" {
		t.Errorf("thread = %+v", th)
	}
}

func TestGetThreadWrongTenant(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newThreadsEnv()
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/threads/th-1", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "op-1", "t2")
	c.SetParamNames("id")
	c.SetParamValues("th-1")

	err := h.Get(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	h, _, replier, _ := newThreadsEnv()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/threads/th-1/messages",
		strings.NewReader(`{"content": "be right there"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(sessionHeader, "sess-9")
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "op-1", "t1")
	c.SetParamNames("id")
	c.SetParamValues("th-1")

	if err := h.SendMessage(c); err != nil {
		t.Fatalf("send: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if replier.got.Content != "be right there" || replier.got.OperatorID != "op-1" {
		t.Errorf("request = %+v", replier.got)
	}
	if replier.got.OperatorName != "Olga P" {
		t.Errorf("operator name = %q", replier.got.OperatorName)
	}
	if replier.got.OriginSessionID != "sess-9" {
		t.Errorf("origin session = %q", replier.got.OriginSessionID)
	}
}

func TestSendMessageEmptyContent(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newThreadsEnv()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/threads/th-1/messages",
		strings.NewReader(`{"content": "   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "op-1", "t1")
	c.SetParamNames("id")
	c.SetParamValues("th-1")

	err := h.SendMessage(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestSendMessageNoSender(t *testing.T) {
	t.Parallel()

	h, _, replier, _ := newThreadsEnv()
	replier.err = dispatch.ErrNoSender
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/threads/th-1/messages",
		strings.NewReader(`{"content": "hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "op-1", "t1")
	c.SetParamNames("id")
	c.SetParamValues("th-1")

	err := h.SendMessage(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestSendMessageDeliveryFailed(t *testing.T) {
	t.Parallel()

	h, _, replier, _ := newThreadsEnv()
	replier.msg = message.Message{ID: "m-1", Status: message.StatusFailed}
	replier.err = dispatch.ErrDeliveryFailed
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/threads/th-1/messages",
		strings.NewReader(`{"content": "hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "op-1", "t1")
	c.SetParamNames("id")
	c.SetParamValues("th-1")

	if err := h.SendMessage(c); err != nil {
		t.Fatalf("send: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMarkRead(t *testing.T) {
	t.Parallel()

	h, threads, _, hub := newThreadsEnv()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/threads/th-1/read", nil)
	req.Header.Set(sessionHeader, "sess-2")
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "op-1", "t1")
	c.SetParamNames("id")
	c.SetParamValues("th-1")

	if err := h.MarkRead(c); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(threads.markedRead) != 1 || threads.markedRead[0] != "th-1" {
		t.Errorf("marked = %v", threads.markedRead)
	}
	if len(hub.events) != 1 || hub.events[0].Type != fanout.EventThreadRead {
		t.Errorf("events = %+v", hub.events)
	}
	if hub.origins[0] != "sess-2" {
		t.Errorf("origin = %q", hub.origins[0])
	}
}

func TestSetStatus(t *testing.T) {
	t.Parallel()

	h, threads, _, _ := newThreadsEnv()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPatch, "/threads/th-1/status",
		strings.NewReader(`{"status": "resolved"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "op-1", "t1")
	c.SetParamNames("id")
	c.SetParamValues("th-1")

	if err := h.SetStatus(c); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if threads.statuses["th-1"] != thread.StatusResolved {
		t.Errorf("statuses = %v", threads.statuses)
	}
}

func TestSetStatusArchivedAndSpam(t *testing.T) {
	t.Parallel()

	for _, status := range []string{thread.StatusArchived, thread.StatusSpam} {
		h, threads, _, _ := newThreadsEnv()
		e := echo.New()

		req := httptest.NewRequest(http.MethodPatch, "/threads/th-1/status",
			strings.NewReader(`{"status": "`+status+`"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := authedContext(e, req, rec, "op-1", "t1")
		c.SetParamNames("id")
		c.SetParamValues("th-1")

		if err := h.SetStatus(c); err != nil {
			t.Fatalf("set status %s: %v", status, err)
		}
		if threads.statuses["th-1"] != status {
			t.Errorf("status %s: statuses = %v", status, threads.statuses)
		}
	}
}

func TestSetStatusInvalid(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newThreadsEnv()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPatch, "/threads/th-1/status",
		strings.NewReader(`{"status": "deleted"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "op-1", "t1")
	c.SetParamNames("id")
	c.SetParamValues("th-1")

	err := h.SetStatus(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
