package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultResendEndpoint is the Resend transactional email API.
const DefaultResendEndpoint = "https://api.resend.com/emails"

// EmailConfig configures the Resend sender.
type EmailConfig struct {
	APIKey   string
	From     string
	To       []string
	Endpoint string
	Timeout  time.Duration
}

// EmailSender posts messages with the report attached to the Resend API.
type EmailSender struct {
	cfg        EmailConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewEmailSender creates an email sender limited to two requests per second.
func NewEmailSender(cfg EmailConfig) *EmailSender {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultResendEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &EmailSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
	}
}

// Name implements Sender.
func (s *EmailSender) Name() string { return "email" }

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	Text        string             `json:"text"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

// Send implements Sender.
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if len(s.cfg.To) == 0 {
		return fmt.Errorf("no recipients configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body := resendRequest{
		From:    s.cfg.From,
		To:      s.cfg.To,
		Subject: msg.Subject,
		Text:    msg.Body,
	}
	if len(msg.Attachment.Data) > 0 {
		body.Attachments = []resendAttachment{{
			Filename: msg.Attachment.Filename,
			Content:  base64.StdEncoding.EncodeToString(msg.Attachment.Data),
		}}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
