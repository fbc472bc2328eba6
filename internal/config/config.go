package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	BlobBasePath string // submission uploads

	AuthSecret    string
	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOrigins []string

	// Notification sink (fire-and-forget). Empty key disables sendgrid
	// and falls back to the log mailer.
	SendgridKey  string
	NotifyFrom   string
	NotifyCron   string // outbox drain schedule
	StatsCron    string // nightly course statistics refresh
	EnableNotify bool
}

// FromEnv reads configuration from the process environment. A .env file in
// the working directory is loaded first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:      addr,
		PublicURL:     os.Getenv("PUBLIC_URL"),
		DBDriver:      envOr("DB_DRIVER", "sqlite"),
		DBDSN:         envOr("DB_DSN", ""),
		BlobBasePath:  envOr("BLOB_BASE_PATH", "./data"),
		AuthSecret:    envOr("AUTH_HMAC_SECRET", "coursehub-dev-key"),
		AdminUser:     envOr("ADMIN_USER", "admin"),
		AdminPassHash: envOr("ADMIN_PASS_HASH", ""),
		CORSOrigins:   csvOr("CORS_ORIGINS", "http://localhost:3000"),
		SendgridKey:   os.Getenv("SENDGRID_API_KEY"),
		NotifyFrom:    envOr("NOTIFY_FROM", "no-reply@coursehub.local"),
		NotifyCron:    envOr("NOTIFY_CRON", "@every 1m"),
		StatsCron:     envOr("STATS_CRON", "0 3 * * *"),
		EnableNotify:  envBool("ENABLE_NOTIFY", true),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
