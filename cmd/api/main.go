package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salon-leads/internal/activity"
	"salon-leads/internal/assignment"
	"salon-leads/internal/auth"
	"salon-leads/internal/config"
	"salon-leads/internal/httpapi"
	"salon-leads/internal/intake"
	"salon-leads/internal/jobs"
	"salon-leads/internal/metrics"
	"salon-leads/internal/query"
	"salon-leads/internal/reporting"
	"salon-leads/internal/routing"
	"salon-leads/internal/telephony"
	"salon-leads/pkg/logger"
	"salon-leads/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	store, db, err := openStore(rootCtx, cfg)
	if err != nil {
		log.Error("store init failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var cache query.CountsCache
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		if cache, err = query.NewRedisCountsCache(rdb, cfg.Redis.CountsTTL); err != nil {
			log.Error("counts cache init failed", "err", err)
			os.Exit(1)
		}
	}

	queries := query.NewService(store, cache, m)
	engine := assignment.NewEngine(store,
		assignment.WithInvalidator(queries),
		assignment.WithMetrics(m),
	)

	var router *routing.Router
	if len(cfg.Routing.Staff) > 0 {
		router = routing.NewRouter(routing.NewStaticDirectory(cfg.Routing.Staff), store, engine, rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	intakeOpts := intake.Options{DefaultRegion: cfg.Intake.DefaultRegion, Invalidator: queries}
	if cfg.Intake.AutoRoute && router != nil {
		intakeOpts.Router = router
	}
	intakeSvc := intake.NewService(store, intakeOpts)

	cronManager := jobs.NewCronManager(queries, m, log)
	if err := cronManager.SetupJobs(cfg.Jobs.BucketGaugeSchedule); err != nil {
		log.Error("cron setup failed", "schedule", cfg.Jobs.BucketGaugeSchedule, "err", err)
		os.Exit(1)
	}
	cronManager.Start()

	handlers := httpapi.Handlers{
		Leads:    store,
		Intake:   intakeSvc,
		Engine:   engine,
		Query:    queries,
		Activity: activity.NewService(store),
		Router:   router,
		Reports:  reporting.NewService(store),
	}
	voice := telephony.WebhookHandler{
		Intake:    intakeSvc,
		AuthToken: cfg.Twilio.AuthToken,
		Numbers:   cfg.Telephony.Numbers,
		ForwardTo: cfg.Twilio.ForwardNumber,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerPublicRoutes(r, db, voice)
	registerProtectedRoutes(r, auth.RequireAccessToken(authManager), handlers)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.Store.Driver, "auto_route", intakeOpts.Router != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	cronManager.Stop(shutdownCtx)
}
