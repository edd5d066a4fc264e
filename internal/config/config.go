package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process settings read from ARCHMARKET_* environment variables.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	PostgresDSN string

	AuthSecret string
	AuthIssuer string

	// PaymentSecret signs the credentials of the payment collaborator. It
	// must differ from AuthSecret; the confirmation route stays closed
	// while it is empty.
	PaymentSecret string
	PaymentIssuer string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL      string
	AMQPExchange string

	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
	// TrustedProxies lists the peers whose X-Forwarded-For header is honoured.
	TrustedProxies []netip.Prefix

	ShutdownTimeout time.Duration
	// InMemory runs without Postgres, for local development only.
	InMemory bool
}

var (
	ErrMissingSecret       = errors.New("config: ARCHMARKET_AUTH_SECRET is required")
	ErrSharedPaymentSecret = errors.New("config: ARCHMARKET_PAYMENT_SECRET must differ from ARCHMARKET_AUTH_SECRET")
)

// DefaultTokenTTL is the lifetime of minted development tokens, read from
// ARCHMARKET_TOKEN_TTL.
func DefaultTokenTTL() time.Duration {
	return getEnvDuration("ARCHMARKET_TOKEN_TTL", time.Hour)
}

// Load reads the environment. A .env file in the working directory, when
// present, fills variables that are not already set.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment without consulting .env.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:        getEnv("ARCHMARKET_HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("ARCHMARKET_GRPC_ADDR", ":9090"),
		PostgresDSN:     strings.TrimSpace(os.Getenv("ARCHMARKET_PG_DSN")),
		AuthSecret:      os.Getenv("ARCHMARKET_AUTH_SECRET"),
		AuthIssuer:      getEnv("ARCHMARKET_AUTH_ISSUER", "archmarket"),
		PaymentSecret:   os.Getenv("ARCHMARKET_PAYMENT_SECRET"),
		PaymentIssuer:   getEnv("ARCHMARKET_PAYMENT_ISSUER", "archmarket-payments"),
		RedisAddr:       strings.TrimSpace(os.Getenv("ARCHMARKET_REDIS_ADDR")),
		RedisPassword:   os.Getenv("ARCHMARKET_REDIS_PASSWORD"),
		RedisDB:         getEnvInt("ARCHMARKET_REDIS_DB", 0),
		AMQPURL:         strings.TrimSpace(os.Getenv("ARCHMARKET_AMQP_URL")),
		AMQPExchange:    getEnv("ARCHMARKET_AMQP_EXCHANGE", "archmarket.workflow"),
		RateBurst:       getEnvInt("ARCHMARKET_RATE_BURST", 200),
		RatePerSecond:   getEnvInt("ARCHMARKET_RATE_PER_SEC", 100),
		MaxBodyBytes:    int64(getEnvInt("ARCHMARKET_MAX_BODY_BYTES", 1<<20)),
		ShutdownTimeout: getEnvDuration("ARCHMARKET_SHUTDOWN_TIMEOUT", 10*time.Second),
		InMemory:        envBool("ARCHMARKET_IN_MEMORY", false),
	}
	if strings.TrimSpace(cfg.AuthSecret) == "" {
		return cfg, ErrMissingSecret
	}
	if strings.TrimSpace(cfg.PaymentSecret) != "" && cfg.PaymentSecret == cfg.AuthSecret {
		return cfg, ErrSharedPaymentSecret
	}
	proxies, err := parsePrefixes(os.Getenv("ARCHMARKET_TRUSTED_PROXIES"))
	if err != nil {
		return cfg, err
	}
	cfg.TrustedProxies = proxies
	if cfg.PostgresDSN == "" && !cfg.InMemory {
		return cfg, errors.New("config: ARCHMARKET_PG_DSN is required unless ARCHMARKET_IN_MEMORY is set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// parsePrefixes reads a comma-separated list of CIDR prefixes or bare addresses.
func parsePrefixes(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("config: ARCHMARKET_TRUSTED_PROXIES: %w", err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("config: ARCHMARKET_TRUSTED_PROXIES: %w", err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
