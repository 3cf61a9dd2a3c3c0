package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/orgdesk/hrops/internal/cache"
	"github.com/orgdesk/hrops/internal/client"
	"github.com/orgdesk/hrops/internal/config"
	"github.com/orgdesk/hrops/internal/database"
	"github.com/orgdesk/hrops/internal/handler"
	"github.com/orgdesk/hrops/internal/logger"
	"github.com/orgdesk/hrops/internal/middleware"
	"github.com/orgdesk/hrops/internal/migrations"
	"github.com/orgdesk/hrops/internal/repository"
	"github.com/orgdesk/hrops/internal/service"
	"github.com/orgdesk/hrops/internal/storage"
	"github.com/orgdesk/hrops/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting HR operations service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := migrations.Run(ctx, cfg.Database.DSN); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}
	log.Info().Msg("Database schema up to date")

	db, err := database.New(ctx, database.Config{
		DSN:         cfg.Database.DSN,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	unread, err := cache.New(ctx, cfg.Redis.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}

	bus, err := client.NewEventBus(cfg.NATS.URL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to event bus")
	}
	defer bus.Close()

	files, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to object storage")
	}

	sheet := client.NewEmployeeSheetClient(cfg.Sheet.BaseURL, cfg.Sheet.APIKey)

	requestRepo := repository.NewRequestRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)

	notifyService := service.NewNotifyService(notificationRepo, userRepo, requestRepo, unread, log)
	requestService := service.NewRequestService(requestRepo, userRepo, notifyService, bus, log, cfg.AllowTerminalAttachments)
	announcementService := service.NewAnnouncementService(announcementRepo, notifyService, log)
	employeeService := service.NewEmployeeService(employeeRepo, sheet, files, log)

	watcher := stream.NewWatcher(bus, log)

	httpHandler := handler.NewHTTPHandler(
		requestService,
		notifyService,
		announcementService,
		employeeService,
		files,
		watcher,
		log,
	)

	authMW := middleware.Auth([]byte(cfg.Auth.JWTSecret))

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("GET /api/v1/recipients", authMW(http.HandlerFunc(httpHandler.ListRecipients)))

	mux.Handle("POST /api/v1/requests", authMW(http.HandlerFunc(httpHandler.CreateRequest)))
	mux.Handle("GET /api/v1/requests/inbox", authMW(http.HandlerFunc(httpHandler.Inbox)))
	mux.Handle("GET /api/v1/requests/outbox", authMW(http.HandlerFunc(httpHandler.Outbox)))
	mux.Handle("GET /api/v1/requests/archive", authMW(http.HandlerFunc(httpHandler.Archive)))
	mux.Handle("GET /api/v1/requests/{id}", authMW(http.HandlerFunc(httpHandler.GetRequest)))
	mux.Handle("POST /api/v1/requests/{id}/actions", authMW(http.HandlerFunc(httpHandler.PerformAction)))
	mux.Handle("POST /api/v1/requests/{id}/attachments", authMW(http.HandlerFunc(httpHandler.AddAttachments)))
	mux.Handle("POST /api/v1/attachments/presign", authMW(http.HandlerFunc(httpHandler.PresignUpload)))

	mux.Handle("POST /api/v1/fanout/request", authMW(http.HandlerFunc(httpHandler.FanoutRequest)))
	mux.Handle("POST /api/v1/fanout/announcement", authMW(http.HandlerFunc(httpHandler.FanoutAnnouncement)))

	mux.Handle("GET /api/v1/notifications", authMW(http.HandlerFunc(httpHandler.ListNotifications)))
	mux.Handle("GET /api/v1/notifications/unread-count", authMW(http.HandlerFunc(httpHandler.UnreadCount)))
	mux.Handle("POST /api/v1/notifications/{id}/read", authMW(http.HandlerFunc(httpHandler.MarkNotificationRead)))

	mux.Handle("POST /api/v1/announcements", authMW(http.HandlerFunc(httpHandler.CreateAnnouncement)))
	mux.Handle("GET /api/v1/announcements", authMW(http.HandlerFunc(httpHandler.ListAnnouncements)))

	mux.Handle("POST /api/v1/employees", authMW(http.HandlerFunc(httpHandler.UpsertEmployee)))
	mux.Handle("GET /api/v1/employees", authMW(http.HandlerFunc(httpHandler.ListEmployees)))
	mux.Handle("GET /api/v1/employees/sheet", authMW(http.HandlerFunc(httpHandler.EmployeeSheetRow)))
	mux.Handle("GET /api/v1/employees/{uid}", authMW(http.HandlerFunc(httpHandler.GetEmployee)))
	mux.Handle("POST /api/v1/employees/{uid}/certificates", authMW(http.HandlerFunc(httpHandler.AddCertificate)))
	mux.Handle("GET /api/v1/employees/{uid}/certificates", authMW(http.HandlerFunc(httpHandler.ListCertificates)))
	mux.Handle("POST /api/v1/employees/{uid}/evaluations", authMW(http.HandlerFunc(httpHandler.AddEvaluation)))
	mux.Handle("GET /api/v1/employees/{uid}/evaluations", authMW(http.HandlerFunc(httpHandler.ListEvaluations)))

	// The watch stream lives outside the request timeout; everything else
	// sits behind it.
	root := http.NewServeMux()
	root.Handle("GET /api/v1/requests/watch", authMW(http.HandlerFunc(httpHandler.WatchRequests)))
	root.Handle("/", middleware.Timeout(cfg.Server.RequestTimeout)(mux))

	var h http.Handler = root
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.RequestID(h)
	h = middleware.CORS([]string{"*"})(h)

	// No WriteTimeout: it applies to every response on the server and would
	// cut long-lived event streams. Regular routes are bounded by the
	// timeout middleware instead.
	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     h,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
