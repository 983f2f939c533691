package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/mbp-history/internal/config"
)

// BuildConnString renders cfg as a postgres:// URL for pgxpool.ParseConfig.
// Credentials are escaped by net/url and an empty ssl mode falls back to the
// config default.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
