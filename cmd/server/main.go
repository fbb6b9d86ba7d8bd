package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"kasirponsel/backend/internal/cache"
	"kasirponsel/backend/internal/config"
	"kasirponsel/backend/internal/httpapi"
	"kasirponsel/backend/internal/service"
	"kasirponsel/backend/internal/store"
	"kasirponsel/backend/internal/store/memory"
	pgstore "kasirponsel/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	settings, err := buildSettings(cfg)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		} else {
			repo = pg
			closers = append(closers, pg.Close)
			log.Println("repository: postgres")
		}
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var reports cache.ReportCache = cache.NoopReportCache{}
	var publisher cache.Publisher = cache.NoopPublisher{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			reports = redisCache
			publisher = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, settings, reports, publisher, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go runDraftCleanup(cleanupCtx, svc, time.Duration(cfg.DraftRetentionDays)*24*time.Hour)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cleanupCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func buildSettings(cfg config.Config) (service.StaticSettings, error) {
	rate, err := decimal.NewFromString(cfg.GSTRatePercent)
	if err != nil {
		return service.StaticSettings{}, fmt.Errorf("GST_RATE_PERCENT %q is not a number", cfg.GSTRatePercent)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return service.StaticSettings{}, fmt.Errorf("GST_RATE_PERCENT %q must be between 0 and 100", cfg.GSTRatePercent)
	}
	return service.StaticSettings{
		TaxEnabled: cfg.GSTEnabled,
		TaxRate:    rate,
	}, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}

// runDraftCleanup purges stale draft transactions once a day. Retention
// comes from DRAFT_RETENTION_DAYS; the first sweep runs shortly after boot
// so restarts do not postpone cleanup by a full day.
func runDraftCleanup(ctx context.Context, svc *service.Service, retention time.Duration) {
	if retention <= 0 {
		return
	}
	timer := time.NewTimer(time.Minute)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		removed, err := svc.CleanupOldDrafts(ctx, retention)
		if err != nil {
			log.Printf("draft cleanup failed: %v", err)
		} else if removed > 0 {
			log.Printf("draft cleanup removed %d stale drafts", removed)
		}
		timer.Reset(24 * time.Hour)
	}
}
