// Package email delivers notification emails through a transactional provider.
package email

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
	Domain   string // For Mailgun
}

// NewProvider returns nil with no error when no provider is configured, in
// which case the email channel is skipped.
func NewProvider(config Config, httpClient *http.Client) (Provider, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	switch config.Provider {
	case "":
		return nil, nil
	case "postmark":
		return NewPostmarkProvider(config.APIKey, config.From, httpClient), nil
	case "mailgun":
		return NewMailgunProvider(config.APIKey, config.Domain, config.From, httpClient), nil
	case "resend":
		return NewResendProvider(config.APIKey, config.From), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be either 'postmark', 'mailgun', or 'resend'")
	}
}
