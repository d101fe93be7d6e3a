package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/canvas-platform/internal/app"
	"github.com/suPer8Hu/canvas-platform/internal/auth"
	"github.com/suPer8Hu/canvas-platform/internal/canvas"
	"github.com/suPer8Hu/canvas-platform/internal/config"
	"github.com/suPer8Hu/canvas-platform/internal/httpapi"
	"github.com/suPer8Hu/canvas-platform/internal/httpapi/handlers"
	"github.com/suPer8Hu/canvas-platform/internal/logger"
	"github.com/suPer8Hu/canvas-platform/internal/metrics"
	"github.com/suPer8Hu/canvas-platform/internal/store/rabbitmq"
	"github.com/suPer8Hu/canvas-platform/internal/store/redisstore"
	"github.com/suPer8Hu/canvas-platform/internal/users"
	"github.com/suPer8Hu/canvas-platform/internal/workspace"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	gdb, err := app.Database(cfg)
	if err != nil {
		log.Fatal("database init failed", "error", err)
	}

	m := metrics.New()

	gw, err := app.Gateway(context.Background(), cfg, m)
	if err != nil {
		log.Fatal("ai provider init failed", "provider", cfg.AIProvider, "error", err)
	}

	// refresh sessions are stateless without redis
	var refreshStore auth.RefreshStore
	if cfg.RedisAddr != "" {
		rds, err := redisstore.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("redis init failed", "addr", cfg.RedisAddr, "error", err)
		}
		defer rds.Close()
		refreshStore = rds
	}
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, refreshStore)

	opts := []canvas.Option{
		canvas.WithLogger(log.With("component", "canvas")),
		canvas.WithMetrics(m),
		canvas.WithHistorySize(cfg.ChatContextWindowSize),
	}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatal("rabbitmq init failed", "error", err)
		}
		defer pub.Close()
		opts = append(opts, canvas.WithPublisher(pub))
	}

	ws := workspace.NewService(gdb)
	cv := canvas.NewService(canvas.NewRepo(gdb), gw, opts...)
	us := users.NewService(gdb, ws, issuer, log.With("component", "users"))

	r := httpapi.NewRouter(httpapi.Deps{
		Handler:     handlers.NewHandler(cv, ws, us, log),
		Issuer:      issuer,
		Log:         log,
		Metrics:     m,
		CORSOrigins: cfg.CORSAllowedOrigins,
		AuthRPS:     cfg.AuthRateRPS,
		AuthBurst:   cfg.AuthRateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", "addr", cfg.HTTPAddr, "db", cfg.DBDriver, "ai_provider", cfg.AIProvider, "async", cfg.RabbitURL != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("api shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("api stopped with error", "error", err)
	}
}
