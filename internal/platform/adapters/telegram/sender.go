package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chathubhq/chathub/internal/platform"
)

// Sender delivers operator replies through the Bot API.
type Sender struct {
	bot *tgbotapi.BotAPI
}

// NewSender authenticates against the Bot API with the given token.
func NewSender(token string) (*Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Sender{bot: bot}, nil
}

// SelfID returns the numeric id of the authenticated bot account.
func (s *Sender) SelfID() string {
	return strconv.FormatInt(s.bot.Self.ID, 10)
}

// Send posts content to the chat identified by to and returns the
// platform-unique key of the created message.
func (s *Sender) Send(ctx context.Context, to, content string, attachments []platform.Attachment) (string, error) {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram chat id %q: %w", to, err)
	}

	if len(attachments) > 0 {
		return s.sendAttachment(chatID, to, content, attachments[0])
	}

	sent, err := s.bot.Send(tgbotapi.NewMessage(chatID, content))
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	return MessageKey(to, sent.MessageID), nil
}

func (s *Sender) sendAttachment(chatID int64, to, caption string, att platform.Attachment) (string, error) {
	file := tgbotapi.FileID(att.PlatformKey)

	var msg tgbotapi.Chattable
	switch att.Type {
	case platform.MessageImage:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = caption
		msg = photo
	case platform.MessageVideo:
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = caption
		msg = video
	case platform.MessageAudio:
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Caption = caption
		msg = audio
	default:
		doc := tgbotapi.NewDocument(chatID, file)
		doc.Caption = caption
		msg = doc
	}

	sent, err := s.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("telegram send %s: %w", att.Type, err)
	}
	return MessageKey(to, sent.MessageID), nil
}
