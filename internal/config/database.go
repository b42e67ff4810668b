package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ConnectionString returns the DSN handed to the pgx driver. An explicit DSN
// wins over the discrete fields.
func (d *DatabaseConfig) ConnectionString() string {
	if dsn := strings.TrimSpace(d.DSN); dsn != "" {
		return dsn
	}
	return d.connectionURL().String()
}

// RedactedConnectionString is ConnectionString with the password masked, for logs.
func (d *DatabaseConfig) RedactedConnectionString() string {
	dsn := strings.TrimSpace(d.DSN)
	if dsn == "" {
		return d.connectionURL().Redacted()
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	// keyword/value DSNs are not parsed; only their presence is reported.
	return "<dsn>"
}

func (d *DatabaseConfig) connectionURL() *url.URL {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.DBName,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u
}
