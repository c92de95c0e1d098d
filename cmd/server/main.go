// Command server runs the content-review HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-content-review/internal/config"
	"github.com/tbourn/go-content-review/internal/domain"
	httpapi "github.com/tbourn/go-content-review/internal/http"
	"github.com/tbourn/go-content-review/internal/http/handlers"
	"github.com/tbourn/go-content-review/internal/moderation"
	"github.com/tbourn/go-content-review/internal/observability"
	"github.com/tbourn/go-content-review/internal/repo"
	"github.com/tbourn/go-content-review/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const purgeEvery = time.Hour

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stderr, cfg.OTEL.ServiceName, cfg.LogPretty)
	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	if cfg.Plans.SeedDemo {
		seedDemoUsers(ctx, db, domain.Limits{Free: cfg.Plans.FreeLimit, Pro: cfg.Plans.ProLimit})
	}
	go purgeIdempotency(ctx, db, log.Logger)

	if worst := cfg.Analysis.WorstCaseAnalysis(); cfg.WriteTimeout < worst {
		log.Warn().
			Dur("write_timeout", cfg.WriteTimeout).
			Dur("worst_case_analysis", worst).
			Msg("WRITE_TIMEOUT is shorter than a fully retried analysis; slow analyses will be cut off")
	}

	var analyzer handlers.Analyzer
	if cfg.OpenAI.APIKey != "" {
		analyzer = moderation.NewOpenAIAnalyzer(cfg.OpenAI.APIKey, cfg.OpenAI.ModerationModel, cfg.OpenAI.ChatModel)
	} else {
		log.Info().Msg("OPENAI_API_KEY not set; /moderate answers 503")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	app := httpapi.NewApp(db, cfg)
	httpapi.RegisterRoutes(r, db, app, analyzer, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Str("base_path", cfg.APIBasePath).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func seedDemoUsers(ctx context.Context, db *gorm.DB, limits domain.Limits) {
	for _, u := range repo.DemoUsers(limits) {
		created, err := repo.SeedUser(ctx, db, u)
		if err != nil {
			log.Error().Err(err).Str("email", u.Email).Msg("seed demo user")
			continue
		}
		if created {
			log.Info().Str("email", u.Email).Str("plan", string(u.Plan)).Msg("seeded demo user")
		}
	}
}

// purgeIdempotency drops expired keys at startup and then hourly.
func purgeIdempotency(ctx context.Context, db *gorm.DB, logger zerolog.Logger) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn().Err(err).Msg("purge idempotency keys")
		case n > 0:
			logger.Info().Int64("deleted", n).Msg("purged expired idempotency keys")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
