package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"

	"admincore.org/internal/auth"
	"admincore.org/internal/cache"
	"admincore.org/internal/captcha"
	"admincore.org/internal/config"
	"admincore.org/internal/httpapi"
	"admincore.org/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("ADMINCORE_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		db, err = sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if db == nil {
		log.Fatal("missing ADMINCORE_PG_DSN")
	}

	challengeRedis := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.ChallengeDB,
	})
	sessionRedis := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.SessionDB,
	})

	challenges := cache.NewRedis(challengeRedis)
	sessions := cache.NewRedis(sessionRedis)

	captchas := captcha.NewStore(challenges, captcha.WithTTL(cfg.Captcha.TTL))

	opts := []auth.ServiceOption{
		auth.WithAccessTTL(cfg.Token.Expire),
		auth.WithRefreshTTL(cfg.Token.RefreshExpire),
	}
	if name := cfg.SuperAdminUsername; name != "" {
		opts = append(opts, auth.WithSuperAdminPolicy(func(u *auth.User) bool {
			return u.Username == name
		}))
	}
	authSvc, err := auth.NewService(auth.NewPGStore(db), sessions, captchas, []byte(cfg.Token.Secret), opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db, Redis: sessions}, version, authSvc, captchas)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting admincore-api %s on %s", version, srv.Addr)

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
	_ = db.Close()
	_ = challengeRedis.Close()
	_ = sessionRedis.Close()
	log.Println("Stopped")
}
