// Package telegram adapts Telegram Bot API webhook updates into canonical
// message drafts and sends operator replies through the Bot API.
package telegram

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chathubhq/chathub/internal/platform"
)

// Type is the Telegram platform identifier.
const Type = platform.TypeTelegram

// Adapter translates tgbotapi.Update payloads. selfID is the numeric id of
// the bot account; messages authored by it are adapted as outbound.
type Adapter struct {
	selfID string
}

// NewAdapter creates a Telegram adapter. selfID may be empty when the bot
// identity is unknown; all messages are then treated as inbound.
func NewAdapter(selfID string) *Adapter {
	return &Adapter{selfID: strings.TrimSpace(selfID)}
}

// Type returns the Telegram platform type.
func (a *Adapter) Type() platform.Type {
	return Type
}

// CanHandle detects the Bot API update envelope by its update_id field.
func (a *Adapter) CanHandle(payload []byte) bool {
	var probe struct {
		UpdateID *int64 `json:"update_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.UpdateID != nil
}

// Adapt converts one webhook update into a draft. Telegram delivers one
// message per update; edited messages and non-message updates yield
// ErrNoMessages.
func (a *Adapter) Adapt(payload []byte, tenantID string) ([]platform.Draft, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, platform.ErrMalformedPayload
	}
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return nil, platform.ErrNoMessages
	}
	if msg.Chat == nil {
		return nil, platform.ErrMalformedPayload
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	senderID, senderName := resolveSender(msg)
	direction := a.resolveDirection(senderID)

	// A bot-authored message still belongs to the conversation with the
	// chat's counterpart; keying the thread by the bot's own id would
	// split the dialog in two.
	contactID := senderID
	if direction == platform.DirectionOutbound {
		contactID = chatID
	}

	draft := platform.Draft{
		TenantID:          tenantID,
		Platform:          Type,
		ChannelExternalID: chatID,
		ExternalID:        MessageKey(chatID, msg.MessageID),
		PlatformThreadID:  chatID,
		Direction:         direction,
		ContactID:         contactID,
		SenderID:          senderID,
		SenderName:        senderName,
		SentAt:            time.Unix(int64(msg.Date), 0).UTC(),
		Metadata: map[string]any{
			"chat_type": strings.TrimSpace(msg.Chat.Type),
		},
	}
	if title := strings.TrimSpace(msg.Chat.Title); title != "" {
		draft.Metadata["chat_title"] = title
	}
	if msg.ReplyToMessage != nil {
		draft.ReplyToExternalID = MessageKey(chatID, msg.ReplyToMessage.MessageID)
	}

	draft.Type, draft.Attachments = collectAttachments(msg)
	draft.Content = resolveContent(msg, draft.Type, draft.Attachments)
	return []platform.Draft{draft}, nil
}

// MessageKey composes the platform-unique message identity. Telegram
// message ids are only unique within a chat, so the chat id is prefixed.
func MessageKey(chatID string, messageID int) string {
	return chatID + ":" + strconv.Itoa(messageID)
}

func (a *Adapter) resolveDirection(senderID string) platform.Direction {
	if a.selfID != "" && senderID == a.selfID {
		return platform.DirectionOutbound
	}
	return platform.DirectionInbound
}

func resolveSender(msg *tgbotapi.Message) (string, string) {
	if msg.From != nil {
		id := strconv.FormatInt(msg.From.ID, 10)
		name := strings.TrimSpace(msg.From.UserName)
		if name == "" {
			name = strings.TrimSpace(strings.TrimSpace(msg.From.FirstName) + " " + strings.TrimSpace(msg.From.LastName))
		}
		return id, name
	}
	if msg.SenderChat != nil {
		id := strconv.FormatInt(msg.SenderChat.ID, 10)
		name := strings.TrimSpace(msg.SenderChat.Title)
		if name == "" {
			name = strings.TrimSpace(msg.SenderChat.UserName)
		}
		return id, name
	}
	if msg.Chat != nil {
		return strconv.FormatInt(msg.Chat.ID, 10), strings.TrimSpace(msg.Chat.Title)
	}
	return "", ""
}

// collectAttachments inspects the media fields in priority order: an
// explicit media field always wins over the text fallback.
func collectAttachments(msg *tgbotapi.Message) (platform.MessageType, []platform.Attachment) {
	switch {
	case msg.Document != nil:
		return platform.MessageDocument, []platform.Attachment{{
			Type:        platform.MessageDocument,
			PlatformKey: msg.Document.FileID,
			Mime:        strings.TrimSpace(msg.Document.MimeType),
			Name:        strings.TrimSpace(msg.Document.FileName),
			Size:        int64(msg.Document.FileSize),
		}}
	case len(msg.Photo) > 0:
		photo := pickPhoto(msg.Photo)
		return platform.MessageImage, []platform.Attachment{{
			Type:        platform.MessageImage,
			PlatformKey: photo.FileID,
			Size:        int64(photo.FileSize),
		}}
	case msg.Video != nil:
		return platform.MessageVideo, []platform.Attachment{{
			Type:        platform.MessageVideo,
			PlatformKey: msg.Video.FileID,
			Mime:        strings.TrimSpace(msg.Video.MimeType),
			Name:        strings.TrimSpace(msg.Video.FileName),
			Size:        int64(msg.Video.FileSize),
		}}
	case msg.Audio != nil:
		return platform.MessageAudio, []platform.Attachment{{
			Type:        platform.MessageAudio,
			PlatformKey: msg.Audio.FileID,
			Mime:        strings.TrimSpace(msg.Audio.MimeType),
			Name:        strings.TrimSpace(msg.Audio.FileName),
			Size:        int64(msg.Audio.FileSize),
		}}
	case msg.Voice != nil:
		return platform.MessageAudio, []platform.Attachment{{
			Type:        platform.MessageAudio,
			PlatformKey: msg.Voice.FileID,
			Mime:        strings.TrimSpace(msg.Voice.MimeType),
			Size:        int64(msg.Voice.FileSize),
		}}
	case msg.Sticker != nil:
		return platform.MessageSticker, []platform.Attachment{{
			Type:        platform.MessageSticker,
			PlatformKey: msg.Sticker.FileID,
			Size:        int64(msg.Sticker.FileSize),
		}}
	case msg.Location != nil:
		return platform.MessageLocation, nil
	case msg.Contact != nil:
		return platform.MessageContact, nil
	default:
		return platform.MessageText, nil
	}
}

// resolveContent prefers explicit text, then caption, then a synthesized
// placeholder for media without one.
func resolveContent(msg *tgbotapi.Message, msgType platform.MessageType, attachments []platform.Attachment) string {
	if text := strings.TrimSpace(msg.Text); text != "" {
		return text
	}
	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		return caption
	}
	filename := ""
	if len(attachments) > 0 {
		filename = attachments[0].Name
	}
	return platform.PlaceholderContent(msgType, filename)
}

func pickPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
