// Package whatsapp adapts WhatsApp Business Cloud API webhook payloads and
// sends operator replies through the Graph API.
package whatsapp

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/chathubhq/chathub/internal/platform"
)

// Type is the WhatsApp platform identifier.
const Type = platform.TypeWhatsApp

const businessObject = "whatsapp_business_account"

type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         metadata        `json:"metadata"`
	Contacts         []contact       `json:"contacts"`
	Messages         []inboundMsg    `json:"messages"`
	Statuses         []statusPayload `json:"statuses"`
}

type metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type inboundMsg struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *mediaPayload `json:"image"`
	Video    *mediaPayload `json:"video"`
	Audio    *mediaPayload `json:"audio"`
	Document *mediaPayload `json:"document"`
	Sticker  *mediaPayload `json:"sticker"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Name      string  `json:"name"`
		Address   string  `json:"address"`
	} `json:"location"`
	Contacts []json.RawMessage `json:"contacts"`
	Context  *struct {
		ID string `json:"id"`
	} `json:"context"`
}

type mediaPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
	SHA256   string `json:"sha256"`
}

type statusPayload struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// Adapter translates Cloud API webhook payloads into drafts and status
// updates.
type Adapter struct{}

// NewAdapter creates a WhatsApp adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Type returns the WhatsApp platform type.
func (a *Adapter) Type() platform.Type {
	return Type
}

// CanHandle detects the Cloud API envelope by its object field.
func (a *Adapter) CanHandle(payload []byte) bool {
	var probe struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Object == businessObject
}

// Adapt flattens entry/changes into drafts. A payload carrying only status
// receipts yields ErrNoMessages; receipts are read via AdaptStatuses.
func (a *Adapter) Adapt(payload []byte, tenantID string) ([]platform.Draft, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil || body.Object != businessObject {
		return nil, platform.ErrMalformedPayload
	}

	var drafts []platform.Draft
	for _, e := range body.Entry {
		for _, ch := range e.Changes {
			names := contactNames(ch.Value.Contacts)
			for _, msg := range ch.Value.Messages {
				draft, ok := adaptMessage(msg, ch.Value.Metadata, names, tenantID)
				if !ok {
					continue
				}
				drafts = append(drafts, draft)
			}
		}
	}
	if len(drafts) == 0 {
		return nil, platform.ErrNoMessages
	}
	return drafts, nil
}

// AdaptStatuses extracts delivery receipts from the payload. Unknown status
// values are skipped.
func (a *Adapter) AdaptStatuses(payload []byte) []platform.StatusUpdate {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil
	}

	var updates []platform.StatusUpdate
	for _, e := range body.Entry {
		for _, ch := range e.Changes {
			for _, st := range ch.Value.Statuses {
				status, ok := mapStatus(st.Status)
				if !ok || st.ID == "" {
					continue
				}
				updates = append(updates, platform.StatusUpdate{
					Platform:   Type,
					ExternalID: st.ID,
					Status:     status,
					OccurredAt: parseTimestamp(st.Timestamp),
				})
			}
		}
	}
	return updates
}

// VerifyChallenge answers the hub subscription handshake: it returns the
// challenge to echo back when the mode and token match.
func VerifyChallenge(mode, token, challenge, verifyToken string) (string, bool) {
	if mode != "subscribe" || verifyToken == "" || token != verifyToken {
		return "", false
	}
	return challenge, true
}

func adaptMessage(msg inboundMsg, meta metadata, names map[string]string, tenantID string) (platform.Draft, bool) {
	if msg.ID == "" || msg.From == "" {
		return platform.Draft{}, false
	}

	draft := platform.Draft{
		TenantID:          tenantID,
		Platform:          Type,
		ChannelExternalID: meta.PhoneNumberID,
		ExternalID:        msg.ID,
		PlatformThreadID:  msg.From,
		Direction:         platform.DirectionInbound,
		ContactID:         msg.From,
		SenderID:          msg.From,
		SenderName:        names[msg.From],
		SentAt:            parseTimestamp(msg.Timestamp),
		Metadata:          map[string]any{},
	}
	if meta.DisplayPhoneNumber != "" {
		draft.Metadata["display_phone_number"] = meta.DisplayPhoneNumber
	}
	if msg.Context != nil && msg.Context.ID != "" {
		draft.ReplyToExternalID = msg.Context.ID
	}

	var media *mediaPayload
	switch msg.Type {
	case "text":
		draft.Type = platform.MessageText
		if msg.Text != nil {
			draft.Content = strings.TrimSpace(msg.Text.Body)
		}
	case "image":
		draft.Type, media = platform.MessageImage, msg.Image
	case "video":
		draft.Type, media = platform.MessageVideo, msg.Video
	case "audio", "voice":
		draft.Type, media = platform.MessageAudio, msg.Audio
	case "document":
		draft.Type, media = platform.MessageDocument, msg.Document
	case "sticker":
		draft.Type, media = platform.MessageSticker, msg.Sticker
	case "location":
		draft.Type = platform.MessageLocation
		if msg.Location != nil {
			draft.Metadata["latitude"] = msg.Location.Latitude
			draft.Metadata["longitude"] = msg.Location.Longitude
			if msg.Location.Name != "" {
				draft.Metadata["location_name"] = msg.Location.Name
			}
		}
	case "contacts":
		draft.Type = platform.MessageContact
	default:
		draft.Type = platform.MessageText
	}

	if media != nil {
		draft.Attachments = []platform.Attachment{{
			Type:        draft.Type,
			PlatformKey: media.ID,
			Mime:        media.MimeType,
			Name:        media.Filename,
		}}
		draft.Content = strings.TrimSpace(media.Caption)
	}
	if draft.Content == "" && draft.Type != platform.MessageText {
		filename := ""
		if media != nil {
			filename = media.Filename
		}
		draft.Content = platform.PlaceholderContent(draft.Type, filename)
	}
	return draft, true
}

func mapStatus(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent":
		return platform.StatusSent, true
	case "delivered":
		return platform.StatusDelivered, true
	case "read":
		return platform.StatusRead, true
	case "failed":
		return platform.StatusFailed, true
	default:
		return "", false
	}
}

func contactNames(contacts []contact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if c.WaID != "" && c.Profile.Name != "" {
			names[c.WaID] = c.Profile.Name
		}
	}
	return names
}

func parseTimestamp(raw string) time.Time {
	unix, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || unix <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}
