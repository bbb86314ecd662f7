package mail

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

const defaultResendURL = "https://api.resend.com/"

var _ Sender = (*Resend)(nil)

// Resend sends through the Resend API. Every call is bounded by the client timeout.
type Resend struct {
	from   string
	client *resend.Client
}

type resendConfig struct {
	baseURL    string
	httpClient *http.Client
}

// ResendOption configures Resend.
type ResendOption func(*resendConfig)

// WithEndpoint overrides the API base URL (tests, regional endpoints).
func WithEndpoint(u string) ResendOption {
	return func(c *resendConfig) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client; its Timeout is kept.
func WithHTTPClient(hc *http.Client) ResendOption {
	return func(c *resendConfig) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewResend(apiKey, from string, timeout time.Duration, opts ...ResendOption) *Resend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg := resendConfig{
		baseURL:    defaultResendURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client := resend.NewCustomClient(cfg.httpClient, apiKey)
	// пути SDK относительные, базе нужен завершающий слэш
	if u, err := url.Parse(strings.TrimSuffix(cfg.baseURL, "/") + "/"); err == nil {
		client.BaseURL = u
	}
	return &Resend{from: from, client: client}
}

func (r *Resend) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	resp, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("mail: send: %w", err)
	}
	return resp.Id, nil
}
