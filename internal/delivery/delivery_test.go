package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"gastbokning/internal/apperror"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() Message {
	return Message{
		Subject: "Billing report July 2023",
		Body:    "Attached is the billing report.",
		Attachment: Attachment{
			Filename:    "billing-report-2023-07.csv",
			ContentType: "text/csv",
			Data:        []byte("Apartment,Name\n4,Kristina Utas\n"),
		},
	}
}

func TestEmailSender_Send(t *testing.T) {
	var (
		got  resendRequest
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	sender := NewEmailSender(EmailConfig{
		APIKey:   "re_test",
		From:     "bokning@example.se",
		To:       []string{"admin@example.se"},
		Endpoint: srv.URL,
	})
	require.NoError(t, sender.Send(context.Background(), testMessage()))

	assert.Equal(t, "Bearer re_test", auth)
	assert.Equal(t, []string{"admin@example.se"}, got.To)
	assert.Equal(t, "Billing report July 2023", got.Subject)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "billing-report-2023-07.csv", got.Attachments[0].Filename)
	decoded, err := base64.StdEncoding.DecodeString(got.Attachments[0].Content)
	require.NoError(t, err)
	assert.Equal(t, testMessage().Attachment.Data, decoded)
}

func TestEmailSender_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewEmailSender(EmailConfig{To: []string{"a@example.se"}, Endpoint: srv.URL})
	err := sender.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 401")

	noRecipients := NewEmailSender(EmailConfig{Endpoint: srv.URL})
	assert.Error(t, noRecipients.Send(context.Background(), testMessage()))
}

type fakeBot struct {
	sent []tgbotapi.DocumentConfig
	fail map[int64]error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	doc, ok := c.(tgbotapi.DocumentConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if err := f.fail[doc.ChatID]; err != nil {
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, doc)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestTelegramSender_Send(t *testing.T) {
	bot := &fakeBot{}
	sender := NewTelegramSender(bot, []int64{100, 200}, 100)

	require.NoError(t, sender.Send(context.Background(), testMessage()))
	require.Len(t, bot.sent, 2)
	assert.Equal(t, int64(100), bot.sent[0].ChatID)
	assert.Equal(t, "Billing report July 2023", bot.sent[0].Caption)

	file, ok := bot.sent[1].File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "billing-report-2023-07.csv", file.Name)
}

func TestTelegramSender_APIError(t *testing.T) {
	bot := &fakeBot{fail: map[int64]error{
		100: &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}},
	}}
	sender := NewTelegramSender(bot, []int64{100, 200}, 100)

	err := sender.Send(context.Background(), testMessage())
	var tgErr *TelegramError
	require.ErrorAs(t, err, &tgErr)
	assert.Equal(t, int64(100), tgErr.ChatID)
	assert.Equal(t, 429, tgErr.Code)
	assert.Equal(t, 3, tgErr.RetryAfter)
	assert.Len(t, bot.sent, 1, "remaining chats are still attempted")
}

type stubSender struct {
	name string
	err  error
	n    int
}

func (s *stubSender) Name() string { return s.name }
func (s *stubSender) Send(context.Context, Message) error {
	s.n++
	return s.err
}

func TestDispatcher_Deliver(t *testing.T) {
	logger := zerolog.New(io.Discard)

	ok := &stubSender{name: "email"}
	broken := &stubSender{name: "telegram", err: errors.New("bot blocked")}
	d := NewDispatcher(&logger, ok, nil, broken)

	assert.Equal(t, []string{"email", "telegram"}, d.Channels())

	err := d.Deliver(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, 1, ok.n)
	assert.Equal(t, 1, broken.n)
	assert.True(t, apperror.IsRetryable(err))
	assert.Equal(t, http.StatusBadGateway, apperror.HTTPStatus(err))

	require.NoError(t, NewDispatcher(&logger, ok).Deliver(context.Background(), testMessage()))

	err = NewDispatcher(&logger).Deliver(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrNoChannels)
}
