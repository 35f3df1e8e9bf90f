package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chathubhq/chathub/internal/platform"
)

const textPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "biz-1",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "15550001111", "phone_number_id": "phone-1"},
				"contacts": [{"wa_id": "79990001122", "profile": {"name": "Ivan"}}],
				"messages": [{
					"from": "79990001122",
					"id": "wamid.abc",
					"timestamp": "1700000000",
					"type": "text",
					"text": {"body": "hi there"}
				}]
			}
		}]
	}]
}`

func TestCanHandle(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter()
	if !adapter.CanHandle([]byte(textPayload)) {
		t.Error("expected business payload to be handled")
	}
	if adapter.CanHandle([]byte(`{"update_id": 1}`)) {
		t.Error("expected telegram payload to be rejected")
	}
}

func TestAdaptText(t *testing.T) {
	t.Parallel()

	drafts, err := NewAdapter().Adapt([]byte(textPayload), "t1")
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("expected one draft, got %d", len(drafts))
	}
	d := drafts[0]
	if d.Platform != platform.TypeWhatsApp {
		t.Errorf("platform = %s", d.Platform)
	}
	if d.ChannelExternalID != "phone-1" {
		t.Errorf("channel id = %s", d.ChannelExternalID)
	}
	if d.ExternalID != "wamid.abc" {
		t.Errorf("external id = %s", d.ExternalID)
	}
	if d.ContactID != "79990001122" || d.SenderName != "Ivan" {
		t.Errorf("contact = %s %q", d.ContactID, d.SenderName)
	}
	if d.Type != platform.MessageText || d.Content != "hi there" {
		t.Errorf("content = %s %q", d.Type, d.Content)
	}
	if d.SentAt.Unix() != 1700000000 {
		t.Errorf("sent at = %v", d.SentAt)
	}
}

func TestAdaptImageCaption(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "phone-1"},
			"messages": [{
				"from": "79990001122",
				"id": "wamid.img1",
				"timestamp": "1700000100",
				"type": "image",
				"image": {"id": "media-1", "mime_type": "image/jpeg", "caption": "the broken part"}
			}]
		}}]}]
	}`)

	drafts, err := NewAdapter().Adapt(payload, "t1")
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	d := drafts[0]
	if d.Type != platform.MessageImage {
		t.Errorf("type = %s", d.Type)
	}
	if d.Content != "the broken part" {
		t.Errorf("content = %q", d.Content)
	}
	if len(d.Attachments) != 1 || d.Attachments[0].PlatformKey != "media-1" {
		t.Errorf("attachments = %+v", d.Attachments)
	}
}

func TestAdaptImageWithoutCaption(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "phone-1"},
			"messages": [{
				"from": "79990001122",
				"id": "wamid.img2",
				"timestamp": "1700000200",
				"type": "image",
				"image": {"id": "media-2", "mime_type": "image/jpeg"}
			}]
		}}]}]
	}`)

	drafts, err := NewAdapter().Adapt(payload, "t1")
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if drafts[0].Content != "\U0001F4F7 Photo" {
		t.Errorf("content = %q", drafts[0].Content)
	}
}

func TestAdaptDocumentFilename(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "phone-1"},
			"messages": [{
				"from": "79990001122",
				"id": "wamid.doc1",
				"timestamp": "1700000300",
				"type": "document",
				"document": {"id": "media-3", "mime_type": "application/pdf", "filename": "contract.pdf"}
			}]
		}}]}]
	}`)

	drafts, err := NewAdapter().Adapt(payload, "t1")
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	d := drafts[0]
	if d.Content != "\U0001F4CE contract.pdf" {
		t.Errorf("content = %q", d.Content)
	}
	if d.Attachments[0].Name != "contract.pdf" {
		t.Errorf("attachment name = %q", d.Attachments[0].Name)
	}
}

func TestAdaptStatusOnlyPayload(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "phone-1"},
			"statuses": [
				{"id": "wamid.out1", "status": "delivered", "timestamp": "1700000400", "recipient_id": "79990001122"},
				{"id": "wamid.out2", "status": "read", "timestamp": "1700000500", "recipient_id": "79990001122"},
				{"id": "wamid.out3", "status": "weird", "timestamp": "1700000600", "recipient_id": "79990001122"}
			]
		}}]}]
	}`)

	adapter := NewAdapter()
	if _, err := adapter.Adapt(payload, "t1"); err != platform.ErrNoMessages {
		t.Errorf("expected ErrNoMessages, got %v", err)
	}

	updates := adapter.AdaptStatuses(payload)
	if len(updates) != 2 {
		t.Fatalf("expected two updates, got %d", len(updates))
	}
	if updates[0].ExternalID != "wamid.out1" || updates[0].Status != platform.StatusDelivered {
		t.Errorf("first update = %+v", updates[0])
	}
	if updates[1].ExternalID != "wamid.out2" || updates[1].Status != platform.StatusRead {
		t.Errorf("second update = %+v", updates[1])
	}
}

func TestVerifyChallenge(t *testing.T) {
	t.Parallel()

	if got, ok := VerifyChallenge("subscribe", "secret", "1234", "secret"); !ok || got != "1234" {
		t.Errorf("expected challenge echo, got %q %v", got, ok)
	}
	if _, ok := VerifyChallenge("subscribe", "wrong", "1234", "secret"); ok {
		t.Error("expected token mismatch to fail")
	}
	if _, ok := VerifyChallenge("unsubscribe", "secret", "1234", "secret"); ok {
		t.Error("expected non-subscribe mode to fail")
	}
	if _, ok := VerifyChallenge("subscribe", "", "1234", ""); ok {
		t.Error("expected empty configured token to fail")
	}
}

func TestSenderText(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if r.URL.Path != "/phone-1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.new"}},
		})
	}))
	defer srv.Close()

	sender := NewSender("tok-1", "phone-1", srv.URL)
	id, err := sender.Send(context.Background(), "79990001122", "reply text", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "wamid.new" {
		t.Errorf("id = %s", id)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody.Type != "text" || gotBody.Text == nil || gotBody.Text.Body != "reply text" {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.To != "79990001122" {
		t.Errorf("to = %s", gotBody.To)
	}
}

func TestSenderAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid recipient", "code": 131026},
		})
	}))
	defer srv.Close()

	sender := NewSender("tok-1", "phone-1", srv.URL)
	if _, err := sender.Send(context.Background(), "bad", "x", nil); err == nil {
		t.Fatal("expected error")
	}
}
