package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventdesk/clock"
	"eventdesk/config"
	"eventdesk/db"
	"eventdesk/drafts"
	"eventdesk/events"
	"eventdesk/filemgr"
	"eventdesk/logging"
	"eventdesk/middleware"
	"eventdesk/mq"
	"eventdesk/notify"
	"eventdesk/publish"
	"eventdesk/ratelim"
	"eventdesk/rdx"
	"eventdesk/repo"
	"eventdesk/repo/migrations"
	"eventdesk/routes"
	"eventdesk/tickets"
	"eventdesk/validate"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// app holds the wired services and what has to be closed on shutdown.
type app struct {
	handler http.Handler
	hub     *notify.Hub
	limiter *ratelim.RateLimiter
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openStore(ctx context.Context, cfg config.Config, clk clock.Clock, log *zerolog.Logger, a *app) (repo.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := migrations.Apply(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("using postgres store")
		return repo.NewPostgresStore(pool, clk), nil

	case config.StoreMemory:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return repo.NewMemoryStore(clk), nil
	}

	conn, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = conn.Close(context.Background()) })
	if err := conn.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	log.Info().Bool("transactions", cfg.MongoTransactions).Msg("using mongo store")
	return repo.NewMongoStore(conn, clk, cfg.MongoTransactions), nil
}

// openRedis is optional: without it the publish lock and draft sessions stay
// in process.
func openRedis(ctx context.Context, cfg config.Config, log *zerolog.Logger, a *app) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	conn, err := rdx.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable; falling back to in-process locks and drafts")
		return nil
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	return conn
}

func openEmitter(cfg config.Config, conn *redis.Client, log *zerolog.Logger, a *app) (mq.Emitter, error) {
	switch cfg.EmitDriver {
	case config.EmitAMQP:
		e, err := mq.NewAMQPEmitter(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, e.Close)
		return e, nil
	case config.EmitRedis:
		if conn != nil {
			return mq.NewRedisEmitter(conn, log), nil
		}
		log.Warn().Msg("redis emitter requested without redis; logging events instead")
	}
	return mq.NewLogEmitter(log), nil
}

func build(ctx context.Context, cfg config.Config, log *zerolog.Logger) (*app, error) {
	a := &app{}
	clk := clock.NewSystem()

	loc, err := cfg.Location()
	if err != nil {
		return a, fmt.Errorf("timezone: %w", err)
	}

	store, err := openStore(ctx, cfg, clk, log, a)
	if err != nil {
		return a, err
	}
	conn := openRedis(ctx, cfg, log, a)
	emitter, err := openEmitter(cfg, conn, log, a)
	if err != nil {
		return a, err
	}

	var guard publish.Guard = publish.NewLocalGuard()
	var draftStore drafts.Store = drafts.NewMemoryStore()
	if conn != nil {
		guard = rdx.NewLocker(conn, cfg.PublishLockTTL, log)
		draftStore = drafts.NewRedisStore(conn, cfg.DraftTTL)
	}

	a.hub = notify.NewHub(log)
	go a.hub.Run()

	assets := filemgr.NewDiskStore(cfg.UploadDir, cfg.PublicBaseURL, log)
	validator := validate.New()
	pub := publish.New(publish.Deps{
		Store:       store,
		Assets:      assets,
		Guard:       guard,
		Validator:   validator,
		Notifier:    notify.Multi{a.hub, notify.NewLogSink(log)},
		Emitter:     emitter,
		Clock:       clk,
		Location:    loc,
		MaxPerOrder: cfg.DefaultMaxPerOrder,
		StepTimeout: cfg.StepTimeout,
		Log:         log,
	})

	a.limiter = ratelim.NewRateLimiter(60, 10, 10*time.Minute)
	router := routes.New(routes.Handlers{
		Auth:    middleware.NewAuth([]byte(cfg.JWTSecret)),
		Limiter: a.limiter,
		Events: events.NewHandler(events.Deps{
			Store:     store,
			Drafts:    draftStore,
			Publisher: pub,
			Validator: validator,
			Emitter:   emitter,
			Location:  loc,
			Log:       log,
		}),
		Tickets: tickets.NewHandler(store, clk, emitter, log),
		Assets:  assets,
		Hub:     a.hub,
	})

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.AccountHeader},
		AllowCredentials: true,
	}).Handler(router)
	a.handler = middleware.Logging(log)(middleware.SecurityHeaders(corsHandler))
	return a, nil
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.LogLevel, os.Stdout)
	log := &logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	a, err := build(startCtx, cfg, log)
	cancel()
	if err != nil {
		a.close()
		log.Fatal().Err(err).Msg("startup failed")
	}
	go a.limiter.Run(ctx, time.Minute)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(func() {
		log.Info().Msg("stopping notification hub")
		a.hub.Stop()
	})

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("listen")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received; shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	a.close()
	log.Info().Msg("server stopped cleanly")
}
