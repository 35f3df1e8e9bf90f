package channel_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/chathubhq/chathub/internal/channel"
	"github.com/chathubhq/chathub/internal/db/dbtest"
	"github.com/chathubhq/chathub/internal/platform"
)

func TestGetOrCreateConcurrentConvergence(t *testing.T) {
	pool := dbtest.Pool(t)
	svc := channel.NewService(pool, slog.Default())

	ctx := context.Background()
	tenantID := "tenant-" + uuid.NewString()
	externalID := "acct-" + uuid.NewString()

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch, err := svc.GetOrCreate(ctx, tenantID, platform.TypeTelegram, externalID, "Support Bot")
			ids[i], errs[i] = ch.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got channel %s, worker 0 got %s", i, ids[i], ids[0])
		}
	}

	var count int
	err := pool.QueryRow(ctx,
		`SELECT count(*) FROM channels WHERE COALESCE(tenant_id, '') = $1 AND external_id = $2`,
		tenantID, externalID).Scan(&count)
	if err != nil {
		t.Fatalf("count channels: %v", err)
	}
	if count != 1 {
		t.Errorf("channels = %d, want 1", count)
	}
}

func TestGetOrCreateKeepsDisplayName(t *testing.T) {
	pool := dbtest.Pool(t)
	svc := channel.NewService(pool, slog.Default())

	ctx := context.Background()
	externalID := "acct-" + uuid.NewString()

	first, err := svc.GetOrCreate(ctx, "", platform.TypeWhatsApp, externalID, "Main Line")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := svc.GetOrCreate(ctx, "", platform.TypeWhatsApp, externalID, "")
	if err != nil {
		t.Fatalf("revisit: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("ids diverged: %s vs %s", again.ID, first.ID)
	}
	if again.DisplayName != "Main Line" {
		t.Errorf("display name = %q, want kept", again.DisplayName)
	}
}
