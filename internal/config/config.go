package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// UnknownValue is the sentinel written in place of an absent version
	// string (and seeded as the unknown application name).
	UnknownValue string

	// RedactIdentifiers keeps user and domain names out of remote log
	// records. Raw identifiers then only ever reach the local issue log.
	RedactIdentifiers bool
	LocalIssueLogPath string

	// HealthAlias is an extra path the reverse proxy may rewrite the
	// health probe to.
	HealthAlias string

	LogSink LogSinkConfig
}

// LogSinkConfig configures the remote log collector client.
type LogSinkConfig struct {
	URL            string
	VerifySSL      bool
	TimeoutSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "cadusage"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPPort:          getenv("PORT", "8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		UnknownValue:      strings.ToLower(getenv("UNKNOWN_VALUE", "unknown")),
		RedactIdentifiers: getenvBool("REDACT_IDENTIFIERS", true),
		LocalIssueLogPath: getenv("LOCAL_ISSUE_LOG", "cadusage_issues.log"),
		HealthAlias:       strings.Trim(getenv("HEALTH_ALIAS", "adsk_usage_statistics_py"), "/"),
		LogSink: LogSinkConfig{
			URL:            strings.TrimSpace(getenv("LOG_SINK_URL", "")),
			VerifySSL:      getenvBool("LOG_SINK_VERIFY_SSL", true),
			TimeoutSeconds: getenvInt("LOG_SINK_TIMEOUT_SECONDS", 10),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
