package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for the artifact cache.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MailConfig holds outbound mail transport settings. Mailjet is the primary
// transport; SMTP is the failover when its settings are present.
type MailConfig struct {
	MailjetAPIKey    string
	MailjetSecretKey string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	FromEmail        string
	FromName         string
}

// DeliveryConfig holds card delivery policy settings. The TTL/quota values
// are the per-channel defaults; link-channel quota can still be overridden
// per request.
type DeliveryConfig struct {
	// BaseURL is the public origin used to build download links,
	// e.g. https://cards.example.org.
	BaseURL          string
	FilenamePrefix   string
	FontPath         string
	LinkTokenTTL     time.Duration
	LinkMaxDownloads int
	DirectTokenTTL   time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	Database DatabaseConfig
	MinIO    MinIOConfig
	Mail     MailConfig
	Delivery DeliveryConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "localhost:8080"),
		Port:    getEnv("PORT", "8080"), // default only for non-sensitive value
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Mail: MailConfig{
			MailjetAPIKey:    getEnv("MAILJET_API_KEY", ""),
			MailjetSecretKey: getEnv("MAILJET_SECRET_KEY", ""),
			SMTPHost:         getEnv("SMTP_HOST", ""),
			SMTPPort:         getEnvInt("SMTP_PORT", 587),
			SMTPUsername:     getEnv("SMTP_USERNAME", ""),
			SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
			FromEmail:        getEnv("MAIL_FROM_EMAIL", ""),
			FromName:         getEnv("MAIL_FROM_NAME", "Digital Affiliation Cards"),
		},
		Delivery: DeliveryConfig{
			BaseURL:          getEnv("DELIVERY_BASE_URL", "http://localhost:8080"),
			FilenamePrefix:   getEnv("CARD_FILENAME_PREFIX", "affiliation_card"),
			FontPath:         getEnv("CARD_FONT_PATH", ""),
			LinkTokenTTL:     time.Duration(getEnvInt("LINK_TOKEN_TTL_HOURS", 30*24)) * time.Hour,
			LinkMaxDownloads: getEnvInt("LINK_MAX_DOWNLOADS", 5),
			DirectTokenTTL:   time.Duration(getEnvInt("DIRECT_TOKEN_TTL_HOURS", 24)) * time.Hour,
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
