package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort string
	DBDriver   string
	MySQLDSN   string
	SQLitePath string
	ResetDB    bool
	LogLevel   string

	RedisAddr string
	RedisDB   int
	RedisPass string

	JWTSecret  string
	BcryptCost int

	// PendingStore selects where unverified registrations live: "memory" or "redis".
	PendingStore         string
	PendingSweepInterval time.Duration

	MailProvider string
	MailFrom     string
	MailFromName string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	ResendAPIKey string
	NotifyCC     []string

	ClientOrigin      string
	AuthRatePerMinute int
	AuthRateBurst     int
	AppBaseURL        string
	InstitutionDomain string
	PhoneRegion       string

	UploadBackend  string
	UploadDir      string
	MaxUploadBytes int64
	CloudinaryURL  string

	KafkaBroker   string
	KafkaTopic    string
	KafkaUsername string
	KafkaPassword string

	SwaggerHost string
}

// Load reads an optional .env file and builds Config from environment with sensible defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort: getEnv("PORT", "5000"),
		DBDriver:   getEnv("DB_DRIVER", "mysql"),
		SQLitePath: getEnv("SQLITE_PATH", "requests.db"),
		MySQLDSN:   getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/requests?charset=utf8mb4&parseTime=True&loc=Local"),
		ResetDB:    os.Getenv("RESET_DB") == "true",
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		RedisPass: os.Getenv("REDIS_PASSWORD"),

		JWTSecret:  getEnv("JWT_SECRET", "change-me"),
		BcryptCost: getEnvInt("BCRYPT_COST", 12),

		PendingStore:         getEnv("PENDING_STORE", "memory"),
		PendingSweepInterval: getEnvDuration("PENDING_SWEEP_INTERVAL", 15*time.Minute),

		MailProvider: getEnv("MAIL_PROVIDER", "smtp"),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@woxsen.edu.in"),
		MailFromName: getEnv("MAIL_FROM_NAME", "Request Portal"),
		SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASS"),
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		NotifyCC:     getEnvList("NOTIFY_CC"),

		ClientOrigin:      getEnv("CLIENT_ORIGIN", "http://localhost:3000"),
		AuthRatePerMinute: getEnvInt("AUTH_RATE_PER_MINUTE", 30),
		AuthRateBurst:     getEnvInt("AUTH_RATE_BURST", 10),
		AppBaseURL:        getEnv("APP_BASE_URL", "http://localhost:3000"),
		InstitutionDomain: getEnv("INSTITUTION_DOMAIN", "woxsen.edu.in"),
		PhoneRegion:       getEnv("PHONE_REGION", "IN"),

		UploadBackend:  getEnv("UPLOAD_BACKEND", "disk"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", 5*1024*1024)),
		CloudinaryURL:  os.Getenv("CLOUDINARY_URL"),

		KafkaBroker:   os.Getenv("KAFKA_BROKER"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "request.status_changed"),
		KafkaUsername: os.Getenv("KAFKA_USERNAME"),
		KafkaPassword: os.Getenv("KAFKA_PASSWORD"),

		SwaggerHost: os.Getenv("SWAGGER_HOST"),
	}
}

// DatabaseDSN returns the connection string for the configured driver.
func (c *Config) DatabaseDSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.MySQLDSN
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
