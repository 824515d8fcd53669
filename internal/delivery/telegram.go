package delivery

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// TelegramError represents an error from the Telegram API.
type TelegramError struct {
	ChatID     int64
	Code       int
	Message    string
	RetryAfter int // seconds, set for 429 responses
}

func (e *TelegramError) Error() string {
	return fmt.Sprintf("telegram chat %d: error %d: %s", e.ChatID, e.Code, e.Message)
}

// DocumentSender is the part of tgbotapi.BotAPI used for delivery.
type DocumentSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts the report file to manager chats.
type TelegramSender struct {
	bot     DocumentSender
	chatIDs []int64
	limiter *rate.Limiter
}

// NewTelegramSender creates a sender. perSecond caps messages per second
// across all chats; Telegram allows about 30.
func NewTelegramSender(bot DocumentSender, chatIDs []int64, perSecond float64) *TelegramSender {
	if perSecond <= 0 {
		perSecond = 20
	}
	return &TelegramSender{
		bot:     bot,
		chatIDs: chatIDs,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// NewTelegramBot connects to the Bot API. endpoint may be empty for the public API.
func NewTelegramBot(token, endpoint string) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
}

// Name implements Sender.
func (s *TelegramSender) Name() string { return "telegram" }

// Send implements Sender. Every chat is attempted; the first failure is returned.
func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	if len(s.chatIDs) == 0 {
		return fmt.Errorf("no chats configured")
	}
	var firstErr error
	for _, chatID := range s.chatIDs {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
			Name:  msg.Attachment.Filename,
			Bytes: msg.Attachment.Data,
		})
		doc.Caption = msg.Subject
		if _, err := s.bot.Send(doc); err != nil && firstErr == nil {
			firstErr = toTelegramError(chatID, err)
		}
	}
	return firstErr
}

func toTelegramError(chatID int64, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &TelegramError{
			ChatID:     chatID,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
			RetryAfter: apiErr.RetryAfter,
		}
	}
	return fmt.Errorf("telegram chat %d: %w", chatID, err)
}
