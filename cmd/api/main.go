package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/coach"
	"gymstudio.app/internal/config"
	"gymstudio.app/internal/contractdoc"
	"gymstudio.app/internal/httpapi"
	"gymstudio.app/internal/mail"
	"gymstudio.app/internal/notify"
	"gymstudio.app/internal/obs"
	"gymstudio.app/internal/ratelimit"
	"gymstudio.app/internal/storage"
	pgstore "gymstudio.app/internal/store/pg"
	"gymstudio.app/internal/supabase"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	flushSentry, err := obs.InitSentry(cfg.SentryDSN, cfg.Environment, version)
	if err != nil {
		log.Fatalf("sentry: %v", err)
	}
	defer flushSentry()

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	shutdownTracing, err := obs.SetupTracing(ctx, "gymstudio-api", version, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	if cfg.AuthSecret != "" {
		auth.SetSecret(cfg.AuthSecret)
	}

	// Хранилище: PostgreSQL, иначе in-memory (только вне production, см. config.Validate)
	var (
		store    coach.Store
		accounts auth.Accounts
		ready    httpapi.ReadyProbe
		pg       *pgstore.Store
	)
	if cfg.PGDSN != "" {
		pg, err = pgstore.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pg
		accounts = auth.NewPGAccounts(pg.DB())
		ready = httpapi.ReadyProbe{DB: pg.DB()}
	} else {
		obs.Warn(ctx, "no database configured, using in-memory store", nil)
		store = coach.NewMemoryStore()
		accounts = auth.NewMemoryAccounts()
	}

	// Файлы и учётные записи через Supabase, если он настроен
	var objects storage.ObjectStore = storage.NewMemory()
	if cfg.SupabaseURL != "" {
		sb := supabase.New(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		objects = supabase.NewStorage(sb)
		accounts = supabase.NewAccounts(sb)
	}

	var mailer mail.Sender
	if cfg.ResendAPIKey != "" {
		mailer = mail.NewResend(cfg.ResendAPIKey, cfg.MailFrom, cfg.MailTimeout)
	} else {
		obs.Warn(ctx, "no mail provider configured, emails are recorded only", nil)
		mailer = &mail.Recorder{}
	}

	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()

	hub := notify.NewHub()
	svc, err := coach.NewService(store, accounts, objects, mailer,
		coach.WithBaseURL(cfg.BaseURL),
		coach.WithDefaultExpiryDays(cfg.InviteDefaultDays),
		coach.WithRenderer(contractdoc.New(contractdoc.Studio{
			Name:           cfg.StudioName,
			LegalName:      cfg.StudioLegalName,
			Address:        cfg.StudioAddress,
			TaxID:          cfg.StudioTaxID,
			Representative: cfg.StudioRepresentative,
			Jurisdiction:   cfg.StudioJurisdiction,
			Currency:       cfg.Currency,
		})),
		coach.WithPublisher(hub),
	)
	if err != nil {
		log.Fatalf("coach service: %v", err)
	}

	// HTTP API
	api, err := httpapi.New(httpapi.Deps{
		Service:     svc,
		Accounts:    accounts,
		Hub:         hub,
		Limiter:     limiter,
		Ready:       ready,
		Version:     version,
		TokenTTL:    cfg.TokenTTL,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
	})
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// без WriteTimeout: SSE-поток держит соединение открытым, таймауты на маршрутах
		IdleTimeout: 60 * time.Second,
	}

	grpcSrv := httpapi.NewGRPC(ready)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	obs.Info(ctx, "starting gymstudio-api", map[string]any{
		"version": version, "http_addr": srv.Addr, "grpc_addr": cfg.GRPCAddr, "environment": cfg.Environment,
	})

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Info(context.Background(), "shutting down", nil)
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Error(shutdownCtx, "http shutdown", err, nil)
	}
	grpcSrv.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		obs.Error(shutdownCtx, "tracing shutdown", err, nil)
	}
	if pg != nil {
		_ = pg.Close()
	}
	obs.Info(context.Background(), "stopped", nil)
}

// newLimiter returns a Redis fixed-window limiter when REDIS_ADDR is set, else an in-process token bucket.
func newLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		// окно, за которое локальная корзина восстанавливается полностью
		window := time.Duration((cfg.RateBurst+cfg.RatePerSec-1)/cfg.RatePerSec) * time.Second
		return ratelimit.NewRedis(client, cfg.RateBurst, window), func() { _ = client.Close() }
	}
	local := ratelimit.NewLocal(cfg.RateBurst, cfg.RatePerSec)
	go local.RunSweeper(ctx, time.Minute)
	return local, func() {}
}
