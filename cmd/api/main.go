package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xhifi/brainloggers-backend-sub001/internal/auth"
	"github.com/xhifi/brainloggers-backend-sub001/internal/cache"
	"github.com/xhifi/brainloggers-backend-sub001/internal/config"
	"github.com/xhifi/brainloggers-backend-sub001/internal/httpapi"
	"github.com/xhifi/brainloggers-backend-sub001/internal/mail"
	"github.com/xhifi/brainloggers-backend-sub001/internal/obs"
	"github.com/xhifi/brainloggers-backend-sub001/internal/store/pg"
	"github.com/xhifi/brainloggers-backend-sub001/internal/stream"
)

var version = "0.3.0"

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()

	cfg := config.Load()

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	redis := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	resolver := auth.NewResolver(store, redis, cfg.RoleCacheTTL)
	denylist := auth.NewDenylist(redis)
	mailer := mail.LogMailer{}
	events := stream.NewHub()
	sessions := auth.NewSessions(store, store, resolver, tokens, denylist, mailer).WithEvents(events)

	api := httpapi.New(httpapi.Deps{
		Sessions:   sessions,
		Resolver:   resolver,
		Tokens:     tokens,
		Denylist:   denylist,
		Users:      store,
		Roles:      store,
		Events:     events,
		ReadyProbe: httpapi.ReadyProbe{DB: store.DB()},
		Version:    version,
		Cookie: httpapi.CookieConfig{
			Name:   cfg.RefreshCookieName,
			Secure: cfg.Production(),
			TTL:    cfg.RefreshTokenTTL,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting brainloggers-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = redis.Close()
	log.Println("Stopped")
}
