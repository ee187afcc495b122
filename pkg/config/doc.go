// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	FOYER_HOST="0.0.0.0"
//	FOYER_PORT="8080"
//	FOYER_HEALTH_PORT="9090"
//	FOYER_READ_TIMEOUT="15s"
//	FOYER_WRITE_TIMEOUT="15s"
//
// Gateway settings:
//
//	FOYER_APPS_DIR="/etc/foyer/apps"
//	FOYER_APPS_WATCH="true"  # reload on manifest changes; SIGHUP always reloads
//	FOYER_CACHE_PRINCIPALS="true"
//	FOYER_SESSION_COOKIE="FOYERSESSID"
//	FOYER_SSO_COOKIE="FOYERSSO"
//	FOYER_COOKIE_SECURE="true"
//	FOYER_SSO_ENABLED="true"
//	FOYER_LOGIN_RATE_LIMIT="10"  # credentialed requests per window per client, 0 disables
//	FOYER_LOGIN_RATE_WINDOW="1m"
//
// Session settings:
//
//	FOYER_SESSION_BACKEND="memory"  # memory, redis
//	FOYER_SESSION_TTL="30m"
//	FOYER_REDIS_URL="redis://localhost:6379"
//	FOYER_REDIS_POOL_SIZE="10"
//
// Realm settings:
//
//	FOYER_REALM_BACKEND="memory"  # memory, db
//	FOYER_USERS_FILE="/etc/foyer/users.yaml"
//	FOYER_DATABASE_URL="postgres://localhost/foyer"
//	FOYER_LOCKOUT_MAX_FAILURES="5"  # 0 disables lockout
//
// Audit settings:
//
//	FOYER_AUDIT_BACKENDS="file,db"  # none, file, db
//	FOYER_AUDIT_DIR="/var/log/foyer/audit"
//	FOYER_AUDIT_RETENTION_DAYS="90"
//
// Identity provider settings (each provider is enabled by its first variable):
//
//	FOYER_OIDC_ISSUER_URL="https://idp.example.com"
//	FOYER_OIDC_CLIENT_ID="foyer"
//	FOYER_OIDC_CLIENT_SECRET="..."  # or FOYER_OIDC_CLIENT_SECRET_FILE
//	FOYER_OIDC_REDIRECT_URL="https://gateway.example.com/auth/oidc/callback"
//	FOYER_SAML_IDP_SSO_URL="https://idp.example.com/sso"
//	FOYER_SAML_IDP_ISSUER="https://idp.example.com"
//	FOYER_SAML_IDP_CERT_FILE="/etc/foyer/idp.pem"
//	FOYER_SAML_SP_BASE_URL="https://gateway.example.com"
//
// Observability settings:
//
//	FOYER_LOG_LEVEL="info"  # debug, info, warn, error
//	FOYER_METRICS_ENABLED="true"
//	FOYER_OTEL_ENABLED="true"
//	FOYER_OTEL_ENDPOINT="otel-collector:4317"
//	FOYER_OTEL_SAMPLE_RATIO="0.1"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Sessions: %s\n", cfg.Session.Backend)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/gateway: Uses gateway and cookie configuration
//   - pkg/session: Uses session store configuration
//   - pkg/realm: Uses user store configuration
//   - pkg/audit: Uses audit trail configuration
//   - pkg/observability: Uses observability configuration
package config
