// Package delivery sends generated reports to the administrator by email
// and to managers over Telegram.
package delivery

import (
	"context"
	"errors"

	"gastbokning/internal/apperror"

	"github.com/rs/zerolog"
)

// Attachment is a rendered document.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one report delivery.
type Message struct {
	Subject    string
	Body       string
	Attachment Attachment
}

// Sender delivers a message over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans a message out to every configured sender.
type Dispatcher struct {
	senders []Sender
	logger  *zerolog.Logger
}

// NewDispatcher creates a dispatcher; nil senders are skipped.
func NewDispatcher(logger *zerolog.Logger, senders ...Sender) *Dispatcher {
	d := &Dispatcher{logger: logger}
	for _, s := range senders {
		if s != nil {
			d.senders = append(d.senders, s)
		}
	}
	return d
}

// Enabled reports whether at least one channel is configured.
func (d *Dispatcher) Enabled() bool {
	return len(d.senders) > 0
}

// Channels lists the configured sender names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.senders))
	for _, s := range d.senders {
		names = append(names, s.Name())
	}
	return names
}

// ErrNoChannels is returned when delivery is requested without any sender.
var ErrNoChannels = errors.New("no delivery channel configured")

// Deliver sends msg through every sender. Each failing channel contributes
// a retryable *apperror.ExternalServiceError to the joined result.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	if !d.Enabled() {
		return apperror.External("delivery", "send", ErrNoChannels)
	}
	var errs []error
	for _, s := range d.senders {
		if err := s.Send(ctx, msg); err != nil {
			d.logger.Error().Err(err).
				Str("channel", s.Name()).
				Str("filename", msg.Attachment.Filename).
				Msg("Report delivery failed")
			errs = append(errs, apperror.External(s.Name(), "send report", err))
			continue
		}
		d.logger.Info().
			Str("channel", s.Name()).
			Str("filename", msg.Attachment.Filename).
			Msg("Report delivered")
	}
	return errors.Join(errs...)
}
