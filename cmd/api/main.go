package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ulugbek-dev/broadcast-gateway/internal/config"
	"github.com/ulugbek-dev/broadcast-gateway/internal/dispatcher"
	gateway "github.com/ulugbek-dev/broadcast-gateway/internal/gateways"
	"github.com/ulugbek-dev/broadcast-gateway/internal/handlers"
	"github.com/ulugbek-dev/broadcast-gateway/internal/repository"
	"github.com/ulugbek-dev/broadcast-gateway/internal/services"
	xhttp "github.com/ulugbek-dev/broadcast-gateway/pkg/http"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/logger"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/pg"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/prom"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	if config.Get().AppDebugMetricsAddr != "" {
		host, _ := os.Hostname()
		if err := prom.Create(host, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
			logger.Error("failed to register metrics", "error", err)
		}
		go prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
	}

	telegramClient, err := gateway.NewTelegramClient(&gateway.Config{
		Token:      config.Get().TelegramBotToken,
		BaseURL:    config.Get().TelegramAPIBaseURL,
		Timeout:    config.Get().TelegramRequestTimeout,
		GlobalRate: config.Get().TelegramGlobalRate,
	})
	if err != nil {
		logger.Error("failed creating telegram client", "error", err)
		return
	}

	broadcastRepo := repository.NewBroadcastRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	// services
	settingsService := services.NewSettingsService(settingRepo)
	if err := settingsService.InitDefaults(context.Background()); err != nil {
		logger.Error("failed seeding default settings", "error", err)
		return
	}

	d := dispatcher.New(broadcastRepo, recipientRepo, telegramClient, settingsService, config.Get().DispatcherBatchSize)
	if err := d.Sweep(context.Background()); err != nil {
		logger.Error("failed sweeping stale jobs", "error", err)
		return
	}

	broadcastService := services.NewBroadcastService(broadcastRepo, recipientRepo, d)
	healthService := services.NewHealthService()

	// v1 handlers
	broadcastHandler := handlers.NewBroadcastHandler(broadcastService)
	settingsHandler := handlers.NewSettingsHandler(settingsService)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterBroadcastRoutes(g, broadcastHandler)
	handlers.RegisterSettingsRoutes(g, settingsHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	logger.Info("broadcast gateway started", "version", version, "commit", commit, "built_at", date)

	<-c
	s.Shutdown()
	d.Stop()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
