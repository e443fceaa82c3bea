package config

import (
	"errors"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// It is built once at startup and passed explicitly; nothing mutates it afterwards.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	StoreBackend     string // "redis" | "memory"
	RedisURL         string
	RedisDBLimiter   int
	RedisDBBlacklist int
	RedisDBOTP       int

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTIssuer         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	TokenLocations    []string // "headers", "cookies"
	CookieSecure      bool
	CookieSameSite    string
	CookieCSRFProtect bool

	SecretKey        string
	ResetSalt        string
	ResetTokenMaxAge time.Duration
	ResetSingleUse   bool
	FrontendURL      string
	SelfURL          string

	OTPLength         int
	OTPTTL            time.Duration
	OrgAssociationTTL time.Duration
	VerifiedTTL       time.Duration

	RateLimits RateLimits
	BurstRate  float64 // requests/second for the in-process shield
	BurstSize  int

	MailBackend  string // "smtp" | "ses" | "console"
	MailFrom     string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SESRegion    string

	EventsTopicARN string
	SNSRegion      string
	AllowedOrigins []string // CORS allowed origins
	TrustedProxies []string // addresses or CIDRs allowed to set X-Forwarded-For
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Credentials string
	Employees   string
}

// RateLimits holds limit expressions such as "5 per hour;20 per day".
type RateLimits struct {
	Default      string
	Registration string
	Complete     string
	Login        string
	Reset        string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Credentials: getEnv("DYNAMO_TABLE_CREDENTIALS", "credentials"),
			Employees:   getEnv("DYNAMO_TABLE_EMPLOYEES", "employees"),
		},

		StoreBackend:     getEnv("STORE_BACKEND", "redis"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisDBLimiter:   getEnvInt("REDIS_DB_LIMITER", 0),
		RedisDBBlacklist: getEnvInt("REDIS_DB_BLACKLIST", 1),
		RedisDBOTP:       getEnvInt("REDIS_DB_OTP", 2),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTIssuer:         getEnv("JWT_ISSUER", "go-auth-nosql"),
		AccessTokenTTL:    getEnvSeconds("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   getEnvSeconds("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		TokenLocations:    getEnvList("JWT_TOKEN_LOCATION", "headers,cookies"),
		CookieSecure:      getEnvBool("JWT_COOKIE_SECURE", false),
		CookieSameSite:    getEnv("JWT_COOKIE_SAMESITE", "Lax"),
		CookieCSRFProtect: getEnvBool("JWT_COOKIE_CSRF_PROTECT", true),

		SecretKey:        getEnv("SECRET_KEY", ""),
		ResetSalt:        getEnv("RESET_SALT", ""),
		ResetTokenMaxAge: getEnvSeconds("RESET_TOKEN_MAX_AGE", 5*time.Minute),
		ResetSingleUse:   getEnvBool("RESET_SINGLE_USE", true),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:5173"),
		SelfURL:          getEnv("SELF_URL", "http://localhost:3000"),

		OTPLength:         getEnvInt("OTP_LENGTH", 6),
		OTPTTL:            getEnvSeconds("OTP_TTL", time.Minute),
		OrgAssociationTTL: getEnvSeconds("ORG_ASSOCIATION_TTL", 5*time.Minute),
		VerifiedTTL:       getEnvSeconds("VERIFIED_TTL", 5*time.Minute),

		RateLimits: RateLimits{
			Default:      getEnv("RATE_LIMIT_DEFAULT", "1000 per hour"),
			Registration: getEnv("RATE_LIMIT_REGISTRATION", "5 per hour;20 per day"),
			Complete:     getEnv("RATE_LIMIT_COMPLETE", "5 per hour;20 per day"),
			Login:        getEnv("RATE_LIMIT_LOGIN", "5 per hour;20 per day"),
			Reset:        getEnv("RATE_LIMIT_RESET", "5 per hour;10 per day"),
		},
		BurstRate: getEnvFloat("BURST_RATE", 5),
		BurstSize: getEnvInt("BURST_SIZE", 10),

		MailBackend:  getEnv("MAIL_BACKEND", "console"),
		MailFrom:     getEnv("MAIL_FROM", "noreply@example.com"),
		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SESRegion:    getEnv("SES_REGION", "us-east-1"),

		EventsTopicARN: getEnv("EVENTS_TOPIC_ARN", ""),
		SNSRegion:      getEnv("SNS_REGION", "us-east-1"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", "http://localhost:5173"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES", ""),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate rejects configurations that would make signed artefacts forgeable
// or that reference unknown backends.
func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() {
		if c.SecretKey == "" {
			errs = append(errs, errors.New("SECRET_KEY is required"))
		}
		if c.ResetSalt == "" {
			errs = append(errs, errors.New("RESET_SALT is required"))
		}
		if !c.CookieSecure {
			errs = append(errs, errors.New("JWT_COOKIE_SECURE must be true in production"))
		}
	}
	switch c.StoreBackend {
	case "redis", "memory":
	default:
		errs = append(errs, errors.New("STORE_BACKEND must be redis or memory"))
	}
	switch c.MailBackend {
	case "smtp", "ses", "console":
	default:
		errs = append(errs, errors.New("MAIL_BACKEND must be smtp, ses or console"))
	}
	for _, loc := range c.TokenLocations {
		if loc != "headers" && loc != "cookies" {
			errs = append(errs, errors.New("JWT_TOKEN_LOCATION entries must be headers or cookies"))
		}
	}
	for _, p := range c.TrustedProxies {
		if _, err := ParseProxy(p); err != nil {
			errs = append(errs, errors.New("TRUSTED_PROXIES entries must be IP addresses or CIDRs"))
			break
		}
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		errs = append(errs, errors.New("OTP_LENGTH must be between 4 and 10"))
	}
	return errors.Join(errs...)
}

// ParseProxy accepts a single address or a CIDR.
func ParseProxy(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvSeconds reads a whole number of seconds.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, fallback), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
