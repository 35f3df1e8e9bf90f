package platform

import (
	"context"
	"testing"
)

type stubAdapter struct {
	t      Type
	marker string
}

func (s *stubAdapter) Type() Type { return s.t }

func (s *stubAdapter) CanHandle(payload []byte) bool {
	return len(payload) > 0 && string(payload[:1]) == s.marker
}

func (s *stubAdapter) Adapt(payload []byte, tenantID string) ([]Draft, error) {
	return []Draft{{Platform: s.t, TenantID: tenantID}}, nil
}

type sendingAdapter struct {
	stubAdapter
}

func (s *sendingAdapter) Send(ctx context.Context, to, content string, attachments []Attachment) (string, error) {
	return "ext-1", nil
}

func TestRegistryGet(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.MustRegister(&stubAdapter{t: TypeTelegram, marker: "t"})

	if _, ok := registry.Get(TypeTelegram); !ok {
		t.Error("expected registered adapter")
	}
	if _, ok := registry.Get(TypeKwork); ok {
		t.Error("expected miss for unregistered type")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.MustRegister(&stubAdapter{t: TypeTelegram, marker: "t"})
	if err := registry.Register(&stubAdapter{t: TypeTelegram, marker: "t"}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestRegistryDetect(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.MustRegister(&stubAdapter{t: TypeTelegram, marker: "t"})
	registry.MustRegister(&stubAdapter{t: TypeWhatsApp, marker: "w"})

	adapter, ok := registry.Detect([]byte("w-payload"))
	if !ok {
		t.Fatal("expected detection to succeed")
	}
	if adapter.Type() != TypeWhatsApp {
		t.Errorf("detected %s", adapter.Type())
	}

	if _, ok := registry.Detect([]byte("x-payload")); ok {
		t.Error("expected detect miss")
	}
}

func TestRegistrySenders(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.MustRegister(&sendingAdapter{stubAdapter{t: TypeTelegram, marker: "t"}})
	registry.MustRegister(&stubAdapter{t: TypeKwork, marker: "k"})

	if _, ok := registry.GetSender(TypeTelegram); !ok {
		t.Error("expected sender for adapter with send capability")
	}
	if _, ok := registry.GetSender(TypeKwork); ok {
		t.Error("expected no sender for receive-only adapter")
	}

	registry.RegisterSender(TypeKwork, &sendingAdapter{stubAdapter{t: TypeKwork, marker: "k"}})
	if _, ok := registry.GetSender(TypeKwork); !ok {
		t.Error("expected explicitly registered sender")
	}
}

func TestRegistryParseType(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.MustRegister(&stubAdapter{t: TypeTelegram, marker: "t"})

	if got, err := registry.ParseType(" Telegram "); err != nil || got != TypeTelegram {
		t.Errorf("parse = %v %v", got, err)
	}
	if _, err := registry.ParseType("viber"); err == nil {
		t.Error("expected unknown platform to fail")
	}
}

func TestPlaceholderContent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msgType  MessageType
		filename string
		want     string
	}{
		{MessageImage, "", "\U0001F4F7 Photo"},
		{MessageVideo, "", "\U0001F3AC Video"},
		{MessageAudio, "", "\U0001F3B5 Audio"},
		{MessageDocument, "report.xlsx", "\U0001F4CE report.xlsx"},
		{MessageDocument, "", "\U0001F4CE Document"},
		{MessageSticker, "", "\U0001F9E9 Sticker"},
		{MessageLocation, "", "\U0001F4CD Location"},
		{MessageContact, "", "\U0001F464 Contact"},
		{MessageText, "", ""},
	}
	for _, tc := range cases {
		if got := PlaceholderContent(tc.msgType, tc.filename); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.msgType, got, tc.want)
		}
	}
}
