package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/config"
	"github.com/noah-isme/gema-portal/internal/database"
	"github.com/noah-isme/gema-portal/internal/handler"
	"github.com/noah-isme/gema-portal/internal/intake"
	"github.com/noah-isme/gema-portal/internal/middleware"
	"github.com/noah-isme/gema-portal/internal/notify"
	"github.com/noah-isme/gema-portal/internal/pipeline"
	"github.com/noah-isme/gema-portal/internal/report"
	"github.com/noah-isme/gema-portal/internal/repository"
	"github.com/noah-isme/gema-portal/internal/router"
	"github.com/noah-isme/gema-portal/internal/service"
	"github.com/noah-isme/gema-portal/internal/storage"
	"github.com/noah-isme/gema-portal/pkg/ai"
	cloud "github.com/noah-isme/gema-portal/pkg/cloudinary"
	"github.com/noah-isme/gema-portal/pkg/plagiarism"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if !cfg.IsDevelopment() {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx := context.Background()

	db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; analytics will not be cached")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	osFs := afero.NewOsFs()

	content, err := newContentStore(ctx, cfg, osFs, logger)
	if err != nil {
		log.Fatalf("failed to initialise content store: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	rosterRepo := repository.NewRosterRepository(db)

	checker := plagiarism.NewChecker(osFs, plagiarism.Config{
		ShingleSize: cfg.PlagiarismShingleSize,
		ScratchDir:  cfg.ScratchDir,
	}, logger)
	reports := report.NewGenerator(osFs, cfg.ReportDir, logger)

	detector, detectorErr := ai.NewOpenAIDetector(ai.OpenAIConfig{
		APIKey:    cfg.OpenAIAPIKey,
		Model:     cfg.OpenAIModel,
		BaseURL:   cfg.OpenAIBaseURL,
		Threshold: cfg.AIDetectThreshold,
		Logger:    logger,
	})

	channels, closeChannels := notificationChannels(cfg, redisClient, logger)
	defer closeChannels()
	dispatcher := notify.NewDispatcher(notify.Config{
		AppName:             cfg.AppName,
		PlagiarismThreshold: cfg.PlagiarismAlertThreshold,
	}, service.NewTeacherDirectory(teacherRepo), logger, channels...)
	logger.Info().Strs("channels", dispatcher.Channels()).Msg("notification channels configured")

	registry := capability.NewBuilder(logger).
		Probe(capability.Plagiarism, func(context.Context) error { return checker.Ready() }).
		Probe(capability.AIDetection, func(context.Context) error { return detectorErr }).
		Probe(capability.Reporting, func(context.Context) error { return reports.Ready() }).
		Probe(capability.Notification, func(context.Context) error {
			if len(dispatcher.Channels()) == 0 {
				return errors.New("no notification channel configured")
			}
			return nil
		}).
		Probe(capability.Preview, func(context.Context) error { return nil }).
		Disable(cfg.DisabledCapabilities...).
		Build(ctx)

	deps := pipeline.Dependencies{
		Capabilities: registry,
		Validator:    intake.NewValidator(cfg.UploadMaxBytes()),
		Assignments:  assignmentRepo,
		Content:      content,
		Submissions:  submissionRepo,
		Plagiarism:   pipeline.NewCorpusAnalyzer(checker, submissionRepo),
		Reports:      reports,
		Notifier:     dispatcher,
	}
	if detectorErr == nil {
		deps.Detector = detector
	}
	orchestrator := pipeline.New(deps, pipeline.Options{
		StageTimeout: cfg.AnalysisTimeout,
		Logger:       logger,
	})

	analyticsService := service.NewAnalyticsService(submissionRepo, redisClient, cfg.AnalyticsCacheTTL, cfg.PlagiarismAlertThreshold, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, logger)
	submissionService := service.NewSubmissionService(
		orchestrator,
		submissionRepo,
		studentRepo,
		content,
		reports,
		analyticsService,
		validate,
		cfg.PlagiarismAlertThreshold,
		logger,
	)
	gradingService := service.NewGradingService(submissionRepo, dispatcher, registry, analyticsService, cfg.NotifyTimeout, validate, logger)
	seedService := service.NewSeedService(rosterRepo, validate, cfg.SeedEnabled, cfg.SeedToken, logger)
	previewService := service.NewPreviewService(submissionRepo, content, registry, cfg.UploadMaxBytes(), logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes()) + 1024*1024,
		ErrorHandler: handler.ErrorHandler(logger),
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		Capabilities:      registry,
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, logger),
		PreviewHandler:    handler.NewPreviewHandler(previewService, logger),
		AnalyticsHandler:  handler.NewAnalyticsHandler(analyticsService, logger),
		SeedHandler:       handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:     middleware.OptionalJWT(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func newContentStore(ctx context.Context, cfg config.Config, fs afero.Fs, logger zerolog.Logger) (storage.ContentStore, error) {
	switch cfg.StorageDriver {
	case "minio":
		return storage.NewMinIOStore(ctx, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, logger)
	case "cloudinary":
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			return nil, err
		}
		return storage.NewCloudinaryStore(uploader, nil), nil
	default:
		return storage.NewLocalStore(fs, cfg.UploadDir, logger)
	}
}

// notificationChannels builds the configured delivery channels. The returned
// func releases broker connections.
func notificationChannels(cfg config.Config, redisClient *redis.Client, logger zerolog.Logger) ([]notify.Channel, func()) {
	var (
		channels []notify.Channel
		closers  []func()
	)

	if cfg.SendGridAPIKey != "" {
		mailer, err := notify.NewSendGridChannel(cfg.SendGridAPIKey, "", cfg.MailFromName, cfg.MailFromEmail)
		if err != nil {
			logger.Warn().Err(err).Msg("sendgrid channel disabled")
		} else {
			channels = append(channels, mailer)
		}
	}

	switch cfg.EventsDriver {
	case "nats":
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats event channel disabled")
			break
		}
		closers = append(closers, conn.Close)
		channels = append(channels, notify.NewEventChannel("nats", cfg.EventsSubject, notify.NewNATSPublisher(conn)))
	case "redis":
		if redisClient == nil {
			logger.Warn().Msg("redis event channel disabled: redis unavailable")
			break
		}
		channels = append(channels, notify.NewEventChannel("redis", cfg.EventsSubject, notify.NewRedisPublisher(redisClient)))
	case "rabbitmq":
		broker, err := database.ConnectRabbitMQ(cfg.RabbitMQURL, cfg.EventsSubject)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq event channel disabled")
			break
		}
		closers = append(closers, func() { _ = broker.Close() })
		channels = append(channels, notify.NewEventChannel("rabbitmq", cfg.EventsSubject, notify.NewRabbitMQPublisher(broker.Channel, "")))
	case "", "none":
	default:
		logger.Warn().Str("driver", cfg.EventsDriver).Msg("unknown events driver ignored")
	}

	if len(channels) == 0 && cfg.IsDevelopment() {
		channels = append(channels, notify.NewLogChannel(logger))
	}

	return channels, func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
