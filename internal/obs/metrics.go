package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "studio_ready",
		Help: "1 when the service passed its last readiness check.",
	})
)

// Метрики workflow
var (
	invitationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_invitations_total",
			Help: "Invitation operations by result.",
		},
		[]string{"op", "result"},
	)

	onboardingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_onboarding_total",
			Help: "Onboarding submissions by result.",
		},
		[]string{"result"},
	)

	onboardingStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_onboarding_step_failures_total",
			Help: "Onboarding failures by step.",
		},
		[]string{"step"},
	)

	uploadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_upload_failures_total",
			Help: "Object storage uploads that failed, by bucket.",
		},
		[]string{"bucket"},
	)

	emailSendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_email_send_total",
			Help: "Transactional email attempts by template and result.",
		},
		[]string{"template", "result"},
	)

	coachTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_coach_transitions_total",
			Help: "Coach lifecycle transitions by target state.",
		},
		[]string{"action"},
	)

	contractVersions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_contract_versions_total",
			Help: "Contract versions issued.",
		},
		[]string{"signed"},
	)
)

var initOnce sync.Once

// Регистрация метрик в default-регистре.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
			invitationsTotal, onboardingTotal, onboardingStepFailures, uploadFailures,
			emailSendTotal, coachTransitions, contractVersions,
		)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the outcome of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

func RecordInvitation(op, result string) { invitationsTotal.WithLabelValues(op, result).Inc() }

func RecordOnboarding(result string) { onboardingTotal.WithLabelValues(result).Inc() }

func RecordOnboardingStepFailure(step string) { onboardingStepFailures.WithLabelValues(step).Inc() }

func RecordUploadFailure(bucket string) { uploadFailures.WithLabelValues(bucket).Inc() }

func RecordEmail(template, result string) { emailSendTotal.WithLabelValues(template, result).Inc() }

func RecordCoachTransition(action string) { coachTransitions.WithLabelValues(action).Inc() }

func RecordContractVersion(signed bool) {
	contractVersions.WithLabelValues(strconv.FormatBool(signed)).Inc()
}

// Обёртка для измерения RPS/latency/в полёте.
// Метка path берётся из шаблона маршрута chi, иначе из CanonicalPath.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		if path == "" {
			path = CanonicalPath(r.URL.Path)
		}

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// resource collections whose next segment is an identifier
var idCollections = map[string]bool{
	"invitations":    true,
	"coaches":        true,
	"documents":      true,
	"certifications": true,
	"notifications":  true,
}

// CanonicalPath replaces identifier segments with ":id" so label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	for i := 1; i < len(parts); i++ {
		prev := parts[i-1]
		if !idCollections[prev] || parts[i] == "stream" {
			continue
		}
		// /v1/me/documents/{type} keeps the document type, it is a small enum
		if prev == "documents" && i >= 2 && parts[i-2] == "me" {
			continue
		}
		parts[i] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
