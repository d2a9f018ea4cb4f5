package main

import (
	"context"
	"database/sql"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/pusher/pusher-http-go/v5"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/config"
	"github.com/nardotini/pump-dump-server/internal/game"
	"github.com/nardotini/pump-dump-server/internal/game/clock"
	"github.com/nardotini/pump-dump-server/internal/game/payout"
	"github.com/nardotini/pump-dump-server/internal/http-server/handlers/bet/place"
	"github.com/nardotini/pump-dump-server/internal/http-server/handlers/round/info"
	"github.com/nardotini/pump-dump-server/internal/http-server/handlers/user/stats"
	mwlogger "github.com/nardotini/pump-dump-server/internal/http-server/middleware/logger"
	"github.com/nardotini/pump-dump-server/internal/hub"
	"github.com/nardotini/pump-dump-server/internal/jobs"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/handler/slogpretty"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
	"github.com/nardotini/pump-dump-server/internal/repository"
	mysqlstorage "github.com/nardotini/pump-dump-server/internal/storage/mysql"
	wshandler "github.com/nardotini/pump-dump-server/internal/ws/handler"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting pump-dump server", slog.String("env", cfg.Env))
	log.Debug("debug messages are enabled")

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	if err = db.Ping(); err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	handler := mysqlstorage.New(db)

	ledger := repository.NewLedger(handler, log, repository.Limits{
		MinBet:          decimal.NewFromFloat(cfg.Game.MinBet),
		MaxBet:          decimal.NewFromFloat(cfg.Game.MaxBet),
		StartingBalance: decimal.NewFromFloat(cfg.Game.StartingBalance),
	})

	eventHub := hub.New(log)

	if cfg.Pusher.Enabled() {
		pusherClient := &pusher.Client{
			AppID:   cfg.Pusher.AppID,
			Key:     cfg.Pusher.Key,
			Secret:  cfg.Pusher.Secret,
			Cluster: cfg.Pusher.Cluster,
		}

		eventHub.Subscribe(hub.NewPusherSubscriber(pusherClient, cfg.Pusher.Channel))

		log.Info("pusher sink enabled", slog.String("channel", cfg.Pusher.Channel))
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	distributor := payout.NewDistributor(ledger, decimal.NewFromFloat(cfg.Game.HouseEdge), log)

	roundClock := clock.New(log, ledger, eventHub, distributor, rnd, clock.Options{
		BettingWindow: cfg.Game.BettingWindow,
		RevealWindow:  cfg.Game.RevealWindow,
		RoundPause:    cfg.Game.RoundPause,
		RetryDelay:    cfg.Game.RetryDelay,
		HouseEdge:     cfg.Game.HouseEdge,
	})

	engine := game.NewEngine(log, ledger, eventHub, roundClock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Start(ctx)

	queue := jobs.NewQueue(16)
	jobs.NewWorkerPool(2, queue).Start()

	scheduler := cron.New()

	_, err = scheduler.AddFunc("@every 1m", func() {
		queue.Dispatch(&jobs.DigestJob{Log: log, Rounds: engine, Hub: eventHub, Limit: 10}, 0)
	})
	if err != nil {
		log.Error("failed to schedule digest job", sl.Err(err))
		os.Exit(1)
	}

	scheduler.Start()

	wsServer := wshandler.NewServer(eventHub, engine, log)

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", wsServer.HandleConnection)

	wsSrv := &http.Server{
		Addr:        cfg.WSServer.Address,
		Handler:     wsMux,
		IdleTimeout: cfg.WSServer.IdleTimeout,
	}

	go func() {
		log.Info("ws server started", slog.String("address", cfg.WSServer.Address))

		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ws server failed", sl.Err(err))
		}
	}()

	betHandler := place.NewBet(log, engine)
	infoHandler := info.NewInfo(log, engine)
	statsHandler := stats.NewStats(log, engine)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mwlogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Post("/bet", betHandler.New())
	router.Get("/round", infoHandler.New())
	router.Get("/user/{key}/stats", statsHandler.Stats())
	router.Get("/user/{key}/bet", statsHandler.Bet())

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Address))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", sl.Err(err))
		}
	}()

	<-ctx.Done()

	log.Info("shutting down")

	engine.Stop()
	scheduler.Stop()
	queue.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down server", sl.Err(err))
	}

	if err = wsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down ws server", sl.Err(err))
	}

	log.Info("server stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlogLogger()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func setupPrettySlogLogger() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
