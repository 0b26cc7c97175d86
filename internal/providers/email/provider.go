package email

import (
	"context"
	"errors"
)

var (
	ErrNoRecipients    = errors.New("email_no_recipients")
	ErrUnknownTemplate = errors.New("email_unknown_template")
)

type Message struct {
	From     string
	To       []string
	Subject  string
	HTMLBody string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
	// SendTemplate renders templateName with data into the message body and sends it.
	SendTemplate(ctx context.Context, msg Message, templateName string, data any) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, msg Message, templateName string, data any) error {
	return nil
}
