package coach

import (
	"context"
	"errors"
	"strings"
	"time"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/mail"
	"gymstudio.app/internal/obs"
	"gymstudio.app/internal/storage"
)

const (
	DefaultExpiryDays = 7
	MaxExpiryDays     = 90

	pendingRedirect = "/coach/pending"
)

// ContractRenderer produces the contract document. Equal input must give equal bytes.
type ContractRenderer interface {
	RenderContract(c Coach, k Contract, sig *Signature) ([]byte, error)
}

// Service runs the coach onboarding and lifecycle workflows.
type Service struct {
	store    Store
	accounts auth.Accounts
	objects  storage.ObjectStore
	mailer   mail.Sender
	renderer ContractRenderer
	notifier *Notifier

	now        func() time.Time
	baseURL    string
	expiryDays int
}

// Option customises a Service.
type Option func(*Service) error

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return errors.New("coach: clock is nil")
		}
		s.now = now
		return nil
	}
}

// WithBaseURL sets the public URL used in emails.
func WithBaseURL(u string) Option {
	return func(s *Service) error {
		s.baseURL = strings.TrimRight(strings.TrimSpace(u), "/")
		return nil
	}
}

// WithDefaultExpiryDays sets the invitation lifetime used when the caller passes zero.
func WithDefaultExpiryDays(days int) Option {
	return func(s *Service) error {
		if days < 1 || days > MaxExpiryDays {
			return errors.New("coach: default expiry days out of range")
		}
		s.expiryDays = days
		return nil
	}
}

func WithRenderer(r ContractRenderer) Option {
	return func(s *Service) error {
		s.renderer = r
		return nil
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) error {
		s.notifier = NewNotifier(s.store, p)
		return nil
	}
}

// NewService wires the workflows to their providers.
func NewService(store Store, accounts auth.Accounts, objects storage.ObjectStore, mailer mail.Sender, opts ...Option) (*Service, error) {
	if store == nil || accounts == nil || objects == nil || mailer == nil {
		return nil, errors.New("coach: store, accounts, objects and mailer are required")
	}
	s := &Service{
		store:      store,
		accounts:   accounts,
		objects:    objects,
		mailer:     mailer,
		now:        func() time.Time { return time.Now().UTC() },
		baseURL:    "http://localhost:3000",
		expiryDays: DefaultExpiryDays,
	}
	s.notifier = NewNotifier(store, nil)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) url(path string) string {
	return s.baseURL + path
}

// sendMail renders and sends a template. Failures are logged and counted, never returned.
func (s *Service) sendMail(ctx context.Context, tpl, to string, data any) bool {
	msg, err := mail.Render(tpl, to, data)
	if err == nil {
		_, err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		obs.RecordEmail(tpl, "error")
		obs.Warn(ctx, "email send failed", map[string]any{"template": tpl, "error": err.Error()})
		obs.CaptureError(ctx, err, map[string]string{"component": "mail", "template": tpl})
		return false
	}
	obs.RecordEmail(tpl, "ok")
	return true
}

func requireReviewer(ctx context.Context) error {
	if !auth.IsReviewer(ctx) {
		return Forbiddenf("reviewer privilege required")
	}
	return nil
}

func requireAdmin(ctx context.Context) error {
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		return Forbiddenf("admin privilege required")
	}
	return nil
}
