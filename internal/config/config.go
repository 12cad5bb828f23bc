package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the portal service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	StorageDriver string
	UploadDir     string
	ReportDir     string
	ScratchDir    string
	UploadMaxMB   int

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	PlagiarismShingleSize    int
	PlagiarismAlertThreshold int
	AnalysisTimeout          time.Duration
	NotifyTimeout            time.Duration

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	AIDetectThreshold float64

	SendGridAPIKey string
	MailFromName   string
	MailFromEmail  string

	EventsDriver  string
	EventsSubject string
	NATSURL       string
	RabbitMQURL   string

	AnalyticsCacheTTL    time.Duration
	DisabledCapabilities []string

	SeedEnabled bool
	SeedToken   string

	CORSAllowOrigins    []string
	SubmissionRateLimit int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UploadMaxBytes converts the configured upload ceiling into bytes.
func (c Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxMB) * 1024 * 1024
}

// IsDevelopment reports whether the service runs in a local environment.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "" || c.AppEnv == "development" || c.AppEnv == "test"
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Portal")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("report.dir", "reports")
	v.SetDefault("scratch.dir", "tmp/highlights")
	v.SetDefault("upload.max_mb", 16)
	v.SetDefault("minio.bucket", "submissions")
	v.SetDefault("cloudinary.folder", "gema/submissions")
	v.SetDefault("plagiarism.shingle_size", 3)
	v.SetDefault("plagiarism.alert_threshold", 50)
	v.SetDefault("analysis.timeout", "30s")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("ai.detect_threshold", 0.7)
	v.SetDefault("mail.from_name", "GEMA Portal")
	v.SetDefault("mail.from_email", "no-reply@gema.local")
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.subject", "gema.portal.notifications")
	v.SetDefault("analytics.cache_ttl", "2m")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("http.submission_rate_limit", 30)

	timeout, err := parseDuration(v.GetString("analysis.timeout"), 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid analysis timeout: %w", err)
	}

	notifyTimeout, err := parseDuration(v.GetString("notify.timeout"), 10*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid notify timeout: %w", err)
	}

	ttl, err := parseDuration(v.GetString("analytics.cache_ttl"), 2*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid analytics cache ttl: %w", err)
	}

	cfg := Config{
		AppName:                  v.GetString("app.name"),
		AppEnv:                   v.GetString("app.env"),
		AppPort:                  v.GetString("app.port"),
		DatabaseURL:              v.GetString("database.url"),
		RedisURL:                 v.GetString("redis.url"),
		JWTSecret:                v.GetString("jwt.secret"),
		StorageDriver:            strings.ToLower(v.GetString("storage.driver")),
		UploadDir:                v.GetString("upload.dir"),
		ReportDir:                v.GetString("report.dir"),
		ScratchDir:               v.GetString("scratch.dir"),
		UploadMaxMB:              v.GetInt("upload.max_mb"),
		MinIOEndpoint:            v.GetString("minio.endpoint"),
		MinIOAccessKey:           v.GetString("minio.access_key"),
		MinIOSecretKey:           v.GetString("minio.secret_key"),
		MinIOBucket:              v.GetString("minio.bucket"),
		MinIOUseSSL:              v.GetBool("minio.use_ssl"),
		CloudinaryCloudName:      v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:         v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:      v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder:   v.GetString("cloudinary.folder"),
		PlagiarismShingleSize:    v.GetInt("plagiarism.shingle_size"),
		PlagiarismAlertThreshold: v.GetInt("plagiarism.alert_threshold"),
		AnalysisTimeout:          timeout,
		NotifyTimeout:            notifyTimeout,
		OpenAIAPIKey:             v.GetString("openai_api_key"),
		OpenAIModel:              v.GetString("openai.model"),
		OpenAIBaseURL:            v.GetString("openai.base_url"),
		AIDetectThreshold:        v.GetFloat64("ai.detect_threshold"),
		SendGridAPIKey:           v.GetString("sendgrid_api_key"),
		MailFromName:             v.GetString("mail.from_name"),
		MailFromEmail:            v.GetString("mail.from_email"),
		EventsDriver:             strings.ToLower(v.GetString("events.driver")),
		EventsSubject:            v.GetString("events.subject"),
		NATSURL:                  v.GetString("nats.url"),
		RabbitMQURL:              v.GetString("rabbitmq.url"),
		AnalyticsCacheTTL:        ttl,
		DisabledCapabilities:     splitList(v.GetString("capabilities.disabled")),
		SeedEnabled:              v.GetBool("seed.enabled"),
		SeedToken:                v.GetString("seed.token"),
		CORSAllowOrigins:         splitList(v.GetString("http.cors_origins")),
		SubmissionRateLimit:      v.GetInt("http.submission_rate_limit"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.UploadMaxMB <= 0 {
		cfg.UploadMaxMB = 16
	}

	if cfg.PlagiarismShingleSize <= 0 {
		cfg.PlagiarismShingleSize = 3
	}

	if cfg.PlagiarismAlertThreshold < 0 || cfg.PlagiarismAlertThreshold > 100 {
		cfg.PlagiarismAlertThreshold = 50
	}

	if cfg.AIDetectThreshold <= 0 || cfg.AIDetectThreshold > 1 {
		cfg.AIDetectThreshold = 0.7
	}

	switch cfg.StorageDriver {
	case "local", "minio", "cloudinary":
	default:
		return Config{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

func splitList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
