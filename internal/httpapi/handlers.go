package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/coach"
	"gymstudio.app/internal/notify"
	"gymstudio.app/internal/obs"
	"gymstudio.app/internal/ratelimit"
)

const serviceName = "gymstudio-api"

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Service    *coach.Service
	Accounts   auth.Accounts
	Authorizer *auth.Authorizer
	Hub        *notify.Hub
	Limiter    ratelimit.Limiter
	Ready      readinessChecker

	Version     string
	TokenTTL    time.Duration
	CORSOrigins []string
	// TrustProxy rewrites the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// MaxUploadBytes bounds multipart bodies; JSON bodies are capped at 1 MiB.
	MaxUploadBytes int64
}

// API — HTTP слой.
type API struct {
	svc      *coach.Service
	accounts auth.Accounts
	authz    *auth.Authorizer
	hub      *notify.Hub
	limiter  ratelimit.Limiter
	ready    readinessChecker

	version     string
	tokenTTL    time.Duration
	corsOrigins []string
	trustProxy  bool
	maxUpload   int64
}

func New(d Deps) (*API, error) {
	if d.Service == nil {
		return nil, errors.New("httpapi: coach service is required")
	}
	if d.Accounts == nil {
		return nil, errors.New("httpapi: accounts are required")
	}
	a := &API{
		svc:         d.Service,
		accounts:    d.Accounts,
		authz:       d.Authorizer,
		hub:         d.Hub,
		limiter:     d.Limiter,
		ready:       d.Ready,
		version:     d.Version,
		tokenTTL:    d.TokenTTL,
		corsOrigins: d.CORSOrigins,
		trustProxy:  d.TrustProxy,
		maxUpload:   d.MaxUploadBytes,
	}
	if a.authz == nil {
		authz, err := auth.NewAuthorizer(auth.BuiltinPermissions)
		if err != nil {
			return nil, err
		}
		a.authz = authz
	}
	if a.limiter == nil {
		a.limiter = ratelimit.NewLocal(10, 5)
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 12 * time.Hour
	}
	if a.maxUpload <= 0 {
		a.maxUpload = 32 << 20
	}
	if len(a.corsOrigins) == 0 {
		a.corsOrigins = []string{"http://localhost:3000"}
	}
	return a, nil
}

// Handler возвращает http.Handler для сервера.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	if a.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(middleware.Recoverer)
	r.Use(LoggingJSON)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           600,
	}))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.With(RateLimit(a.limiter, "login")).Post("/v1/auth/login", a.handleLogin)
	r.With(RateLimit(a.limiter, "verify_invitation")).Get("/v1/onboarding/invitations/{token}", a.handleVerifyInvitation)
	r.With(RateLimit(a.limiter, "onboarding"), MaxBodyBytes(a.maxUpload)).Post("/v1/onboarding/invitations/{token}", a.handleSubmitOnboarding)

	r.Group(func(r chi.Router) {
		r.Use(a.withAuth)

		// SSE lives outside the request timeout below.
		r.With(a.authorize(auth.ObjNotifications, auth.ActRead)).Get("/v1/me/notifications/stream", a.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.With(a.authorize(auth.ObjInvitations, auth.ActWrite)).Post("/v1/invitations", a.handleCreateInvitation)
			r.With(a.authorize(auth.ObjInvitations, auth.ActRead)).Get("/v1/invitations", a.handleListInvitations)
			r.With(a.authorize(auth.ObjInvitations, auth.ActWrite)).Post("/v1/invitations/{id}/cancel", a.handleCancelInvitation)
			r.With(a.authorize(auth.ObjInvitations, auth.ActWrite)).Post("/v1/invitations/{id}/resend", a.handleResendInvitation)

			r.With(a.authorize(auth.ObjCoaches, auth.ActRead)).Get("/v1/coaches", a.handleListCoaches)
			r.With(a.authorize(auth.ObjCoaches, auth.ActRead)).Get("/v1/coaches/{id}", a.handleGetCoach)
			r.With(a.authorize(auth.ObjCoaches, auth.ActDelete)).Delete("/v1/coaches/{id}", a.handleDeleteCoach)
			r.With(a.authorize(auth.ObjCoaches, auth.ActReview)).Post("/v1/coaches/{id}/approve", a.handleApprove)
			r.With(a.authorize(auth.ObjCoaches, auth.ActReview)).Post("/v1/coaches/{id}/reject", a.handleReject)
			r.With(a.authorize(auth.ObjCoaches, auth.ActReview)).Post("/v1/coaches/{id}/corrections", a.handleCorrections)
			r.With(a.authorize(auth.ObjContracts, auth.ActWrite)).Post("/v1/coaches/{id}/contracts", a.handleIssueContract)
			r.With(a.authorize(auth.ObjContracts, auth.ActRead)).Get("/v1/coaches/{id}/contracts", a.handleListContracts)

			r.With(a.authorize(auth.ObjDocuments, auth.ActReview)).Put("/v1/documents/{id}/verification", a.handleVerifyDocument)
			r.With(a.authorize(auth.ObjDocuments, auth.ActReview)).Post("/v1/documents/{id}/rejection", a.handleRejectDocument)
			r.With(a.authorize(auth.ObjCertifications, auth.ActReview)).Put("/v1/certifications/{id}/verification", a.handleVerifyCertification)

			r.With(a.authorize(auth.ObjSelf, auth.ActRead)).Get("/v1/me/access", a.handleAccess)
			r.With(a.authorize(auth.ObjSelf, auth.ActWrite)).Patch("/v1/me/profile", a.handleUpdateProfile)
			r.With(a.authorize(auth.ObjSelf, auth.ActWrite), MaxBodyBytes(a.maxUpload)).Put("/v1/me/documents/{type}", a.handleReuploadDocument)
			r.With(a.authorize(auth.ObjNotifications, auth.ActRead)).Get("/v1/me/notifications", a.handleNotifications)
			r.With(a.authorize(auth.ObjNotifications, auth.ActRead)).Post("/v1/me/notifications/{id}/read", a.handleMarkRead)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(auth.RoleCoach))
				r.Use(a.RequireActiveCoach)
				r.Get("/v1/me/dashboard", a.handleDashboard)
				r.Get("/v1/me/contracts", a.handleMyContracts)
				r.With(a.authorize(auth.ObjContracts, auth.ActSign)).Post("/v1/me/contracts/sign", a.handleSignContract)
			})
		})
	})

	return r
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := obs.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

var kindStatus = map[coach.Kind]int{
	coach.KindValidation:        http.StatusBadRequest,
	coach.KindConflict:          http.StatusConflict,
	coach.KindNotFound:          http.StatusNotFound,
	coach.KindInvalidState:      http.StatusConflict,
	coach.KindExpired:           http.StatusGone,
	coach.KindInvalidInvitation: http.StatusUnprocessableEntity,
	coach.KindUpstream:          http.StatusBadGateway,
	coach.KindForbidden:         http.StatusForbidden,
}

// writeServiceError maps workflow errors to a status and the error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *coach.Error
	if !errors.As(err, &ce) {
		obs.Error(r.Context(), "unhandled error", err, map[string]any{"path": r.URL.Path})
		obs.CaptureError(r.Context(), err, nil)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	code, ok := kindStatus[ce.Kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	msg := ce.Msg
	if msg == "" {
		msg = ce.Error()
	}
	payload := map[string]any{
		"error": msg,
		"kind":  ce.Kind,
	}
	if step := coach.StepOf(err); step != "" {
		payload["step"] = step
	}
	if coach.PartialStateOf(err) {
		payload["partial_state_possible"] = true
	}
	if rid := obs.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	if code >= http.StatusInternalServerError {
		obs.Error(r.Context(), "upstream failure", err, map[string]any{"path": r.URL.Path, "step": string(coach.StepOf(err))})
		obs.CaptureError(r.Context(), err, map[string]string{"step": string(coach.StepOf(err))})
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func queryLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func optionalDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := parseDate(raw)
	if err != nil {
		return nil, coach.Validationf("%s: expected YYYY-MM-DD", field)
	}
	return &t, nil
}
