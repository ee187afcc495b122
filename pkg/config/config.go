package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/foyer/pkg/authn"
	"github.com/platinummonkey/foyer/pkg/gateway"
	"github.com/platinummonkey/foyer/pkg/observability"
	"github.com/platinummonkey/foyer/pkg/session"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Gateway configuration
	Gateway GatewayConfig

	// Session store configuration
	Session SessionConfig

	// User realm configuration
	Realm RealmConfig

	// Audit trail configuration
	Audit AuditConfig

	// OIDC is nil unless an issuer is configured.
	OIDC *authn.OIDCConfig

	// SAML is nil unless an identity provider is configured.
	SAML *authn.SAMLConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics/admin server (separate port for k8s probes)
	HealthPort string
}

// GatewayConfig holds application routing and cookie settings
type GatewayConfig struct {
	// AppsDir holds one manifest per protected application.
	AppsDir string

	// Watch reloads manifests when files in AppsDir change. SIGHUP
	// forces a reload either way.
	Watch bool

	// CachePrincipals is the default for applications whose manifest
	// does not set cache_principals.
	CachePrincipals bool

	SessionCookie string
	SSOCookie     string
	CookieSecure  bool

	// SSOEnabled turns cross-application single sign-on off entirely
	// when false.
	SSOEnabled bool

	// LoginRateLimit caps credentialed requests per client address per
	// LoginRateWindow. Zero disables throttling.
	LoginRateLimit  int
	LoginRateWindow time.Duration
	LoginRateBurst  int
}

// SessionConfig holds session store settings
type SessionConfig struct {
	// Backend selects the store: memory or redis.
	Backend string

	TTL           time.Duration
	SweepInterval time.Duration

	// Redis settings, used when Backend is redis.
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
}

// RealmConfig holds user store settings
type RealmConfig struct {
	// Backend selects the store: memory or db.
	Backend string

	// UsersFile seeds the memory realm from a YAML file.
	UsersFile string

	// DatabaseURL is shared by the db realm, the token store, and the
	// db audit log.
	DatabaseURL string

	// Lockout settings. MaxFailures zero disables lockout entirely.
	LockoutMaxFailures int
	LockoutWindow      time.Duration
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// Backends lists the destinations: none, file, db.
	Backends []string

	// File logger settings.
	Dir      string
	Rotate   bool
	MaxSize  int64
	MaxFiles int

	// RetentionDays bounds how long db audit events are kept.
	RetentionDays int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool    // Use insecure gRPC connection
	OTelSampleRatio    float64 // Fraction of new traces to record, (0, 1]
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	samlCfg, err := loadSAMLConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load SAML configuration: %w", err)
	}
	oidcCfg, err := loadOIDCConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load OIDC configuration: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Gateway:       loadGatewayConfig(),
		Session:       loadSessionConfig(),
		Realm:         loadRealmConfig(),
		Audit:         loadAuditConfig(),
		OIDC:          oidcCfg,
		SAML:          samlCfg,
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FOYER_HOST", "0.0.0.0"),
		Port:            getEnv("FOYER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FOYER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FOYER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FOYER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FOYER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FOYER_HEALTH_PORT", "9090"),
	}
}

// loadGatewayConfig loads routing and cookie configuration from environment
func loadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		AppsDir:         getEnv("FOYER_APPS_DIR", "/etc/foyer/apps"),
		Watch:           getEnvBool("FOYER_APPS_WATCH", false),
		CachePrincipals: getEnvBool("FOYER_CACHE_PRINCIPALS", true),
		SessionCookie:   getEnv("FOYER_SESSION_COOKIE", gateway.DefaultSessionCookie),
		SSOCookie:       getEnv("FOYER_SSO_COOKIE", gateway.DefaultSSOCookie),
		CookieSecure:    getEnvBool("FOYER_COOKIE_SECURE", false),
		SSOEnabled:      getEnvBool("FOYER_SSO_ENABLED", true),
		LoginRateLimit:  getEnvInt("FOYER_LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: getEnvDuration("FOYER_LOGIN_RATE_WINDOW", time.Minute),
		LoginRateBurst:  getEnvInt("FOYER_LOGIN_RATE_BURST", 5),
	}
}

// loadSessionConfig loads session store configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Backend:       strings.ToLower(getEnv("FOYER_SESSION_BACKEND", "memory")),
		TTL:           getEnvDuration("FOYER_SESSION_TTL", session.DefaultIdleTimeout),
		SweepInterval: getEnvDuration("FOYER_SESSION_SWEEP_INTERVAL", session.DefaultSweepInterval),
		RedisURL:      getEnv("FOYER_REDIS_URL", ""),
		RedisPassword: getEnv("FOYER_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("FOYER_REDIS_DB", 0),
		RedisPoolSize: getEnvInt("FOYER_REDIS_POOL_SIZE", 0),
	}
}

// loadRealmConfig loads user store configuration from environment
func loadRealmConfig() RealmConfig {
	return RealmConfig{
		Backend:            strings.ToLower(getEnv("FOYER_REALM_BACKEND", "memory")),
		UsersFile:          getEnv("FOYER_USERS_FILE", ""),
		DatabaseURL:        getEnv("FOYER_DATABASE_URL", ""),
		LockoutMaxFailures: getEnvInt("FOYER_LOCKOUT_MAX_FAILURES", 5),
		LockoutWindow:      getEnvDuration("FOYER_LOCKOUT_WINDOW", 5*time.Minute),
	}
}

// loadAuditConfig loads audit trail configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Backends:      getEnvList("FOYER_AUDIT_BACKENDS", []string{"file"}),
		Dir:           getEnv("FOYER_AUDIT_DIR", "/var/log/foyer/audit"),
		Rotate:        getEnvBool("FOYER_AUDIT_ROTATE", true),
		MaxSize:       getEnvInt64("FOYER_AUDIT_MAX_SIZE", 100*1024*1024),
		MaxFiles:      getEnvInt("FOYER_AUDIT_MAX_FILES", 10),
		RetentionDays: getEnvInt("FOYER_AUDIT_RETENTION_DAYS", 90),
	}
}

// loadOIDCConfig loads the relying-party configuration from environment.
// Returns nil when no issuer is configured.
func loadOIDCConfig() (*authn.OIDCConfig, error) {
	issuer := getEnv("FOYER_OIDC_ISSUER_URL", "")
	if issuer == "" {
		return nil, nil
	}

	secret, err := getEnvOrFile("FOYER_OIDC_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	return &authn.OIDCConfig{
		IssuerURL:     issuer,
		ClientID:      getEnv("FOYER_OIDC_CLIENT_ID", ""),
		ClientSecret:  secret,
		RedirectURL:   getEnv("FOYER_OIDC_REDIRECT_URL", ""),
		Scopes:        getEnvList("FOYER_OIDC_SCOPES", nil),
		UsernameClaim: getEnv("FOYER_OIDC_USERNAME_CLAIM", ""),
		RolesClaim:    getEnv("FOYER_OIDC_ROLES_CLAIM", ""),
	}, nil
}

// loadSAMLConfig loads the service-provider configuration from environment.
// Returns nil when no identity provider is configured.
func loadSAMLConfig() (*authn.SAMLConfig, error) {
	ssoURL := getEnv("FOYER_SAML_IDP_SSO_URL", "")
	if ssoURL == "" {
		return nil, nil
	}

	idpCert, err := getEnvOrFile("FOYER_SAML_IDP_CERT")
	if err != nil {
		return nil, err
	}
	spCert, err := getEnvOrFile("FOYER_SAML_SP_CERT")
	if err != nil {
		return nil, err
	}
	spKey, err := getEnvOrFile("FOYER_SAML_SP_KEY")
	if err != nil {
		return nil, err
	}

	return &authn.SAMLConfig{
		IdPSSOURL:         ssoURL,
		IdPIssuer:         getEnv("FOYER_SAML_IDP_ISSUER", ""),
		IdPCertificate:    idpCert,
		SPBaseURL:         getEnv("FOYER_SAML_SP_BASE_URL", ""),
		SPCertificate:     spCert,
		SPPrivateKey:      spKey,
		SignRequests:      getEnvBool("FOYER_SAML_SIGN_REQUESTS", false),
		NameIDFormat:      getEnv("FOYER_SAML_NAMEID_FORMAT", ""),
		UsernameAttribute: getEnv("FOYER_SAML_USERNAME_ATTRIBUTE", ""),
		RolesAttribute:    getEnv("FOYER_SAML_ROLES_ATTRIBUTE", ""),
	}, nil
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("FOYER_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FOYER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FOYER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FOYER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FOYER_OTEL_SERVICE_NAME", "foyer-gateway"),
		OTelServiceVersion: getEnv("FOYER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FOYER_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("FOYER_OTEL_SAMPLE_RATIO", 1.0),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate gateway config
	if c.Gateway.AppsDir == "" {
		return fmt.Errorf("apps directory is required")
	}
	if c.Gateway.SessionCookie == c.Gateway.SSOCookie {
		return fmt.Errorf("session cookie and sso cookie must be different")
	}

	// Validate session config based on backend
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis sessions")
		}
	default:
		return fmt.Errorf("invalid session backend: %s (must be memory or redis)", c.Session.Backend)
	}

	// Validate realm config based on backend
	switch c.Realm.Backend {
	case "memory":
	case "db":
		if c.Realm.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for the db realm")
		}
	default:
		return fmt.Errorf("invalid realm backend: %s (must be memory or db)", c.Realm.Backend)
	}

	// Validate audit config
	for _, backend := range c.Audit.Backends {
		switch backend {
		case "none":
			if len(c.Audit.Backends) > 1 {
				return fmt.Errorf("audit backend none cannot be combined with other backends")
			}
		case "file":
			if c.Audit.Dir == "" {
				return fmt.Errorf("audit directory is required for the file audit log")
			}
		case "db":
			if c.Realm.DatabaseURL == "" {
				return fmt.Errorf("database URL is required for the db audit log")
			}
		default:
			return fmt.Errorf("invalid audit backend: %s (must be none, file, or db)", backend)
		}
	}

	// Validate identity provider config
	if c.OIDC != nil {
		if err := c.OIDC.Validate(); err != nil {
			return err
		}
	}
	if c.SAML != nil {
		if err := c.SAML.Validate(); err != nil {
			return err
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r <= 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be in (0, 1], got %v", r)
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrFile returns an environment variable value, falling back to the
// contents of the file named by KEY_FILE. Suits secrets mounted into the
// container filesystem.
func getEnvOrFile(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", key+"_FILE", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice,
// or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.ToLower(item))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
