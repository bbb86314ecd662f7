package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                    "/",
		"/metrics":                            "/metrics",
		"/v1/invitations":                     "/v1/invitations",
		"/v1/invitations?state=pending":       "/v1/invitations",
		"/v1/invitations/01HX/cancel":         "/v1/invitations/:id/cancel",
		"/v1/onboarding/invitations/tok-abc":  "/v1/onboarding/invitations/:id",
		"/v1/coaches/c-1":                     "/v1/coaches/:id",
		"/v1/coaches/c-1/contracts":           "/v1/coaches/:id/contracts",
		"/v1/documents/d-9/verification":      "/v1/documents/:id/verification",
		"/v1/me/documents/proof_of_address":   "/v1/me/documents/proof_of_address",
		"/v1/me/notifications/n-1/read":       "/v1/me/notifications/:id/read",
		"/v1/me/notifications/stream":         "/v1/me/notifications/stream",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentCountsByCanonicalPath(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/coaches/:id/approve", "202"))

	req := httptest.NewRequest(http.MethodPost, "/v1/coaches/abc/approve", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/coaches/:id/approve", "202"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
}
