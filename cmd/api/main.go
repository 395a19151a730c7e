package main

import (
	"context"
	stdlog "log"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cardapi/internal/config"
	"cardapi/internal/database"
	"cardapi/internal/database/migration"
	handlers "cardapi/internal/http/handler"
	"cardapi/internal/http/middleware"
	"cardapi/internal/mail"
	"cardapi/internal/otel"
	"cardapi/internal/render"
	"cardapi/internal/repository/postgres"
	"cardapi/internal/service"
	"cardapi/internal/storage"
	"cardapi/internal/token"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	ctx := context.Background()

	// OTLP tracing; a no-op when OTEL_SDK_DISABLED=true
	shutdownTracing, err := otel.Init(ctx, time.UTC)
	if err != nil {
		stdlog.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			stdlog.Printf("tracing shutdown: %v", err)
		}
	}()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		stdlog.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, time.UTC, cfg.Database.Host); err != nil {
		stdlog.Fatalf("failed to run migrations: %v", err)
	}

	// Object storage caches rendered artifacts between redemptions. It is
	// optional: without it every download renders inline.
	var objStore storage.Storage
	if cfg.MinIO.Endpoint != "" {
		objStore, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			stdlog.Fatalf("failed to initialize object storage: %v", err)
		}
	}

	mailer := buildMailer(cfg.Mail, logger)

	renderer := render.New(log.With(logger, "component", "render"), render.Options{
		FilenamePrefix: cfg.Delivery.FilenamePrefix,
		FontPath:       cfg.Delivery.FontPath,
	})
	issuer := token.NewIssuer()

	// Prometheus registry shared by HTTP and domain metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	domainMetrics, err := service.NewMetrics(registry)
	if err != nil {
		stdlog.Fatalf("failed to register delivery metrics: %v", err)
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(registry)
	if err != nil {
		stdlog.Fatalf("failed to register http metrics: %v", err)
	}

	// Initialize repositories and services
	cardRepo := postgres.NewCardPostgres(db)
	deliveryRepo := postgres.NewDeliveryPostgres(db)

	policy := service.Policy{
		BaseURL:          cfg.Delivery.BaseURL,
		FromEmail:        cfg.Mail.FromEmail,
		FromName:         cfg.Mail.FromName,
		LinkTokenTTL:     cfg.Delivery.LinkTokenTTL,
		LinkMaxDownloads: cfg.Delivery.LinkMaxDownloads,
		DirectTokenTTL:   cfg.Delivery.DirectTokenTTL,
	}
	deliverySvc := service.NewDeliveryService(
		cardRepo, deliveryRepo, renderer, issuer, mailer, policy,
		log.With(logger, "component", "delivery"), domainMetrics,
	)
	downloadSvc := service.NewDownloadService(
		cardRepo, deliveryRepo, renderer, objStore,
		log.With(logger, "component", "download"), domainMetrics,
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())
	app.Use(promMiddleware.Handler())

	// Register HTTP routes with injected services
	handlers.RegisterRoutes(app, db, deliverySvc, downloadSvc, registry)

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		stdlog.Fatalf("failed to start server: %v", err)
	}
}

// buildMailer assembles the outbound transport chain: Mailjet primary with
// SMTP failover, either alone when only one is configured.
func buildMailer(cfg config.MailConfig, logger log.Logger) mail.Mailer {
	var primary, secondary mail.Mailer
	if cfg.MailjetAPIKey != "" && cfg.MailjetSecretKey != "" {
		primary = mail.NewMailjet(cfg.MailjetAPIKey, cfg.MailjetSecretKey)
	}
	if cfg.SMTPHost != "" {
		smtp := mail.NewSMTP(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		if primary == nil {
			primary = smtp
		} else {
			secondary = smtp
		}
	}
	if primary == nil {
		stdlog.Fatal("no mail transport configured: set MAILJET_API_KEY/MAILJET_SECRET_KEY or SMTP_HOST")
	}
	return mail.NewFailover(primary, secondary, log.With(logger, "component", "mail"))
}
