package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRenderInvitationEscapesHTML(t *testing.T) {
	msg, err := Render(TplInvitation, "coach@test.com", InvitationData{
		Category:      "cycling",
		URL:           "https://studio.test/onboarding/coach/tok",
		Message:       "<script>alert(1)</script>",
		ExpiresAt:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		DaysRemaining: 7,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if msg.To[0] != "coach@test.com" || msg.Template != TplInvitation {
		t.Fatalf("unexpected message header: %+v", msg)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("custom message not escaped: %s", msg.HTML)
	}
	for _, want := range []string{"https://studio.test/onboarding/coach/tok", "7 day(s)", "2026-03-10"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("text body missing %q: %s", want, msg.Text)
		}
	}
}

func TestRenderCorrectionsListsItems(t *testing.T) {
	msg, err := Render(TplCorrections, "c@test.com", CoachData{
		Name:        "Ana",
		Corrections: []string{"Upload a clearer ID", "Fix bank account"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(msg.Text, "- Upload a clearer ID") || !strings.Contains(msg.HTML, "<li>Fix bank account</li>") {
		t.Fatalf("corrections missing: %s / %s", msg.Text, msg.HTML)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := Render("nope", "x@test.com", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestResendSend(t *testing.T) {
	var got struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		Text    string   `json:"text"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_test" {
			t.Errorf("missing api key")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	s := NewResend("re_test", "Studio <no-reply@studio.test>", time.Second, WithEndpoint(srv.URL))
	id, err := s.Send(context.Background(), Message{To: []string{"a@test.com"}, Subject: "Hi", Text: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "msg_123" {
		t.Fatalf("unexpected id %q", id)
	}
	if got.From != "Studio <no-reply@studio.test>" || got.Subject != "Hi" || len(got.To) != 1 || got.Text != "hello" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestResendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"id":"late"}`))
	}))
	defer srv.Close()

	s := NewResend("k", "from@test.com", 50*time.Millisecond, WithEndpoint(srv.URL))
	if _, err := s.Send(context.Background(), Message{To: []string{"a@test.com"}, Subject: "Hi"}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestResendProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid from"}`))
	}))
	defer srv.Close()

	s := NewResend("k", "bad", time.Second, WithEndpoint(srv.URL))
	id, err := s.Send(context.Background(), Message{To: []string{"a@test.com"}, Subject: "Hi"})
	if err == nil || id != "" {
		t.Fatalf("expected provider error, got %q %v", id, err)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	if _, err := r.Send(context.Background(), Message{Subject: "x"}); err == nil {
		t.Fatal("expected validation error without recipient")
	}
	id, err := r.Send(context.Background(), Message{To: []string{"a@test.com"}, Subject: "x"})
	if err != nil || id != "rec-001" {
		t.Fatalf("unexpected send result %q %v", id, err)
	}
	if len(r.Sent()) != 1 {
		t.Fatalf("expected 1 recorded message")
	}
}
