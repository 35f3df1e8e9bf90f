package message_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chathubhq/chathub/internal/channel"
	"github.com/chathubhq/chathub/internal/db/dbtest"
	"github.com/chathubhq/chathub/internal/message"
	"github.com/chathubhq/chathub/internal/platform"
	"github.com/chathubhq/chathub/internal/thread"
)

func newStoreFixture(t *testing.T) (*message.Store, thread.Thread) {
	t.Helper()

	pool := dbtest.Pool(t)
	ctx := context.Background()
	ch, err := channel.NewService(pool, slog.Default()).GetOrCreate(
		ctx, "tenant-"+uuid.NewString(), platform.TypeTelegram, "acct-"+uuid.NewString(), "")
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	th, err := thread.NewService(pool, slog.Default()).Resolve(
		ctx, ch.TenantID, ch.ID, "contact-"+uuid.NewString(), "Anna")
	if err != nil {
		t.Fatalf("resolve thread: %v", err)
	}
	return message.NewStore(pool, slog.Default()), th
}

func saveMessage(t *testing.T, store *message.Store, th thread.Thread, msg message.Message) message.Message {
	t.Helper()

	msg.TenantID = th.TenantID
	msg.ThreadID = th.ID
	msg.Platform = platform.TypeTelegram
	if msg.Type == "" {
		msg.Type = platform.MessageText
	}
	saved, created, err := store.Save(context.Background(), msg)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !created {
		t.Fatalf("message %q already existed", msg.ExternalID)
	}
	return saved
}

func TestListByThreadPageConcatenation(t *testing.T) {
	store, th := newStoreFixture(t)
	ctx := context.Background()

	// Pairs share a sent_at so ordering falls back to the insert counter.
	const total = 25
	base := time.Now().UTC().Truncate(time.Microsecond)
	inserted := make([]string, 0, total)
	for i := 0; i < total; i++ {
		msg := saveMessage(t, store, th, message.Message{
			Direction:  platform.DirectionInbound,
			ExternalID: "msg-" + uuid.NewString(),
			Content:    "hello",
			SentAt:     base.Add(time.Duration(i/2) * time.Second),
			Status:     message.StatusDelivered,
		})
		inserted = append(inserted, msg.ID)
	}

	const size = 10
	var paged []message.Message
	for page := 1; ; page++ {
		items, err := store.ListByThread(ctx, th.ID, page, size)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		paged = append(paged, items...)
		if len(items) < size {
			break
		}
	}

	if len(paged) != total {
		t.Fatalf("concatenated pages hold %d messages, want %d", len(paged), total)
	}
	for i, msg := range paged {
		if msg.ID != inserted[i] {
			t.Fatalf("position %d: got %s, want %s", i, msg.ID, inserted[i])
		}
		if i > 0 {
			prev := paged[i-1]
			if msg.SentAt.Before(prev.SentAt) {
				t.Fatalf("position %d: sent_at went backwards", i)
			}
			if msg.SentAt.Equal(prev.SentAt) && msg.Seq <= prev.Seq {
				t.Fatalf("position %d: tie not broken by insert order", i)
			}
		}
	}
}

func TestUpdateStatusSkipsRejectedInSQL(t *testing.T) {
	store, th := newStoreFixture(t)
	ctx := context.Background()

	msg := saveMessage(t, store, th, message.Message{
		Direction: platform.DirectionOutbound,
		Content:   "reply",
		SentAt:    time.Now().UTC(),
		Status:    message.StatusQueued,
	})

	for _, status := range []string{message.StatusDelivered, message.StatusRead} {
		if _, err := store.UpdateStatus(ctx, msg.ID, status, time.Now().UTC()); !errors.Is(err, message.ErrBadTransition) {
			t.Fatalf("QUEUED -> %s: err = %v, want ErrBadTransition", status, err)
		}
	}

	if _, err := store.UpdateStatus(ctx, msg.ID, message.StatusSent, time.Now().UTC()); err != nil {
		t.Fatalf("QUEUED -> SENT: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, msg.ID, message.StatusRead, time.Now().UTC()); !errors.Is(err, message.ErrBadTransition) {
		t.Fatalf("SENT -> READ: err = %v, want ErrBadTransition", err)
	}
	if _, err := store.UpdateStatus(ctx, msg.ID, message.StatusDelivered, time.Now().UTC()); err != nil {
		t.Fatalf("SENT -> DELIVERED: %v", err)
	}
	got, err := store.UpdateStatus(ctx, msg.ID, message.StatusRead, time.Now().UTC())
	if err != nil {
		t.Fatalf("DELIVERED -> READ: %v", err)
	}
	if got.Status != message.StatusRead {
		t.Errorf("status = %s", got.Status)
	}
	if _, err := store.UpdateStatus(ctx, msg.ID, message.StatusFailed, time.Now().UTC()); !errors.Is(err, message.ErrBadTransition) {
		t.Fatalf("READ -> FAILED: err = %v, want ErrBadTransition", err)
	}
}

func TestMarkSentAbsorbsWebhookEcho(t *testing.T) {
	store, th := newStoreFixture(t)
	ctx := context.Background()

	queued := saveMessage(t, store, th, message.Message{
		Direction: platform.DirectionOutbound,
		Content:   "reply",
		SentAt:    time.Now().UTC(),
		Status:    message.StatusQueued,
	})

	// The platform webhook lands before MarkSent and claims the external id.
	externalID := "msg-" + uuid.NewString()
	saveMessage(t, store, th, message.Message{
		Direction:  platform.DirectionOutbound,
		ExternalID: externalID,
		Content:    "reply",
		SentAt:     time.Now().UTC(),
		Status:     message.StatusSent,
	})

	sent, err := store.MarkSent(ctx, queued.ID, externalID)
	if err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if sent.ID != queued.ID {
		t.Errorf("id = %s, want the dispatched row %s", sent.ID, queued.ID)
	}
	if sent.Status != message.StatusSent || sent.ExternalID != externalID {
		t.Errorf("row = %s %q", sent.Status, sent.ExternalID)
	}

	survivor, err := store.GetByExternalID(ctx, th.TenantID, platform.TypeTelegram, externalID)
	if err != nil {
		t.Fatalf("get by external id: %v", err)
	}
	if survivor.ID != queued.ID {
		t.Errorf("surviving row = %s, want %s", survivor.ID, queued.ID)
	}
	items, err := store.ListByThread(ctx, th.ID, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("thread holds %d messages, want the dispatched row only", len(items))
	}
}
