package app

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// initPrefill is the setup form as reconstructed from a configured DSN. The
// password itself is never echoed back.
type initPrefill struct {
	DatabaseType        string `json:"database_type"`
	DatabaseHost        string `json:"database_host"`
	DatabasePort        int    `json:"database_port"`
	DatabaseUser        string `json:"database_user"`
	DatabaseName        string `json:"database_name"`
	DatabaseSSLMode     string `json:"database_ssl_mode"`
	DatabasePath        string `json:"database_path"`
	DatabasePasswordSet bool   `json:"database_password_set"`
}

func initPrefillFromDSN(dsn string) (initPrefill, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case trimmed == "":
		return initPrefill{}, fmt.Errorf("empty dsn")
	case strings.HasPrefix(strings.ToLower(trimmed), "file:"):
		path, _, _ := strings.Cut(trimmed[len("file:"):], "?")
		return initPrefill{DatabaseType: "sqlite", DatabasePath: strings.TrimSpace(path)}, nil
	default:
		return postgresPrefill(trimmed)
	}
}

// postgresPrefill accepts URL and keyword/value DSNs.
func postgresPrefill(dsn string) (initPrefill, error) {
	if scheme, _, ok := strings.Cut(dsn, "://"); ok {
		if s := strings.ToLower(scheme); s != "postgres" && s != "postgresql" {
			return initPrefill{}, fmt.Errorf("unsupported dsn scheme")
		}
	}
	cfg, errParse := pgconn.ParseConfig(dsn)
	if errParse != nil {
		return initPrefill{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	sslMode := sslModeOf(dsn)
	if sslMode == "" {
		sslMode = "disable"
	}
	return initPrefill{
		DatabaseType:        "postgres",
		DatabaseHost:        cfg.Host,
		DatabasePort:        int(cfg.Port),
		DatabaseUser:        cfg.User,
		DatabaseName:        cfg.Database,
		DatabaseSSLMode:     sslMode,
		DatabasePasswordSet: cfg.Password != "",
	}, nil
}

// sslModeOf reads sslmode as written in the DSN; pgconn folds it into a TLS
// config and does not keep the name.
func sslModeOf(dsn string) string {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(u.Query().Get("sslmode"))
	}
	for _, field := range strings.Fields(dsn) {
		if key, value, ok := strings.Cut(field, "="); ok && key == "sslmode" {
			return strings.Trim(value, "'")
		}
	}
	return ""
}
