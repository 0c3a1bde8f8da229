package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Duplicate-check policies applied when the patient store cannot be queried
// during registration.
const (
	DuplicatePolicyFailOpen   = "fail-open"
	DuplicatePolicyFailClosed = "fail-closed"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	MongoURI string `mapstructure:"MONGO_URI"`
	MongoDB  string `mapstructure:"MONGO_DB"`
	RedisURL string `mapstructure:"REDIS_URL"`

	KafkaBrokers           []string `mapstructure:"KAFKA_BROKERS"`
	KafkaNotificationTopic string   `mapstructure:"KAFKA_NOTIFICATION_TOPIC"`

	JWTSecretKey             string `mapstructure:"JWT_SECRET_KEY"`
	JWTAlgorithm             string `mapstructure:"JWT_ALGORITHM"`
	AccessTokenExpireMinutes int    `mapstructure:"ACCESS_TOKEN_EXPIRE_MINUTES"`
	OTPTTLMinutes            int    `mapstructure:"OTP_TTL_MINUTES"`

	UltravoxAPIURL         string `mapstructure:"ULTRAVOX_API_URL"`
	UltravoxAPIKey         string `mapstructure:"ULTRAVOX_API_KEY"`
	PublicBaseURL          string `mapstructure:"PUBLIC_BASE_URL"`
	AvailabilityServiceURL string `mapstructure:"AVAILABILITY_SERVICE_URL"`

	OpenAIAPIURL string `mapstructure:"OPENAI_API_URL"`
	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel  string `mapstructure:"OPENAI_MODEL"`

	DuplicateCheckPolicy string `mapstructure:"DUPLICATE_CHECK_POLICY"`

	S3Bucket   string `mapstructure:"S3_BUCKET"`
	S3Endpoint string `mapstructure:"S3_ENDPOINT"`
	AWSRegion  string `mapstructure:"AWS_REGION"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	// InsecureJWTSecret is set when Load substituted the development secret.
	InsecureJWTSecret bool `mapstructure:"-"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MONGO_URI", "MONGO_DB", "REDIS_URL",
	"KAFKA_BROKERS", "KAFKA_NOTIFICATION_TOPIC",
	"JWT_SECRET_KEY", "JWT_ALGORITHM", "ACCESS_TOKEN_EXPIRE_MINUTES", "OTP_TTL_MINUTES",
	"ULTRAVOX_API_URL", "ULTRAVOX_API_KEY", "PUBLIC_BASE_URL", "AVAILABILITY_SERVICE_URL",
	"OPENAI_API_URL", "OPENAI_API_KEY", "OPENAI_MODEL",
	"DUPLICATE_CHECK_POLICY",
	"S3_BUCKET", "S3_ENDPOINT", "AWS_REGION",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB", "healthcare")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "healthcare.notifications")
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("ACCESS_TOKEN_EXPIRE_MINUTES", 60)
	v.SetDefault("OTP_TTL_MINUTES", 10)
	v.SetDefault("ULTRAVOX_API_URL", "https://api.ultravox.ai/api/calls")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("DUPLICATE_CHECK_POLICY", DuplicatePolicyFailOpen)
	v.SetDefault("AWS_REGION", "ap-south-1")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSecretKey == "" {
		cfg.JWTSecretKey = "dev-insecure-secret"
		cfg.InsecureJWTSecret = true
	}

	return cfg, nil
}

// splitList normalizes a comma-separated env value that viper may hand back
// either as a single element or already split.
func splitList(parsed []string, raw string) []string {
	if len(parsed) == 1 && strings.Contains(parsed[0], ",") {
		raw = parsed[0]
		parsed = nil
	}
	if len(parsed) == 0 && raw != "" {
		parsed = strings.Split(raw, ",")
	}
	out := parsed[:0]
	for _, p := range parsed {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AccessTokenTTL is the lifetime of issued access tokens.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// OTPTTL is how long a password-reset OTP stays valid.
func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

// FailClosed reports whether registration must be refused when the duplicate
// check cannot reach storage.
func (c *Config) FailClosed() bool {
	return c.DuplicateCheckPolicy == DuplicatePolicyFailClosed
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.DuplicateCheckPolicy {
	case DuplicatePolicyFailOpen, DuplicatePolicyFailClosed:
	default:
		return fmt.Errorf("DUPLICATE_CHECK_POLICY must be %q or %q, got %q",
			DuplicatePolicyFailOpen, DuplicatePolicyFailClosed, c.DuplicateCheckPolicy)
	}
	if c.AccessTokenExpireMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive, got %d", c.AccessTokenExpireMinutes)
	}
	if c.OTPTTLMinutes <= 0 {
		return fmt.Errorf("OTP_TTL_MINUTES must be positive, got %d", c.OTPTTLMinutes)
	}
	if c.JWTAlgorithm != "HS256" {
		return fmt.Errorf("JWT_ALGORITHM %q is not supported, only HS256", c.JWTAlgorithm)
	}
	if c.IsProduction() && c.JWTSecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required in production")
	}
	return nil
}
