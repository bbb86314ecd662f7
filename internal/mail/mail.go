package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Message is a single transactional email.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
	// Template is a label for metrics, it is not sent.
	Template string `json:"-"`
}

// Sender is the email dispatcher boundary.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return errors.New("mail: recipient is required")
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return errors.New("mail: empty recipient")
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("mail: subject is required")
	}
	return nil
}

var _ Sender = (*Recorder)(nil)

// Recorder keeps sent messages in memory. Err, when set, is returned from Send.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (r *Recorder) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	r.sent = append(r.sent, msg)
	return fmt.Sprintf("rec-%03d", len(r.sent)), nil
}

// Sent returns a copy of all recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
