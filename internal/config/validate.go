package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.Pagination.validate(result)
	c.Auth.validate(result)
	c.Observability.validate(result)
	return result
}

var sslModes = map[string]bool{
	"disable": true, "allow": true, "prefer": true,
	"require": true, "verify-ca": true, "verify-full": true,
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.DSN) == "" {
		if strings.TrimSpace(d.Host) == "" {
			result.addError("database.host", "host is required", "set database.host or database.dsn")
		}
		if d.Port < 1 || d.Port > 65535 {
			result.addError("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
		}
		if strings.TrimSpace(d.User) == "" {
			result.addError("database.user", "user is required", "")
		}
		if strings.TrimSpace(d.DBName) == "" {
			result.addError("database.dbname", "database name is required", "")
		}
		if d.SSLMode != "" && !sslModes[d.SSLMode] {
			result.addError("database.sslmode", fmt.Sprintf("unsupported sslmode %q", d.SSLMode),
				"use disable, allow, prefer, require, verify-ca or verify-full")
		}
		if d.SSLMode == "disable" {
			result.addWarning("database.sslmode", "TLS is disabled", "use require or stronger outside local development")
		}
	} else if strings.Contains(d.DSN, "://") {
		if _, err := url.Parse(d.DSN); err != nil {
			result.addError("database.dsn", "dsn is not a valid URL", err.Error())
		}
	}

	if !identifierPattern.MatchString(d.Schema) {
		result.addError("database.schema", fmt.Sprintf("invalid schema name %q", d.Schema), "use an unquoted PostgreSQL identifier")
	}
	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "must not be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "must not be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.addWarning("database.pool.max_idle", "max_idle exceeds max_open", "database/sql caps idle connections at max_open")
	}
	if d.ConnectionTimeout < 0 || d.ConnectionRetryInterval < 0 {
		result.addError("database.connection_timeout", "timeouts must not be negative", "")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.IdleTimeout < 0 || s.ShutdownTimeout < 0 || s.HealthCheckTimeout < 0 {
		result.addError("server", "timeouts must not be negative", "")
	}
	if s.GraphiQLEnabled {
		result.addWarning("server.graphiql_enabled", "GraphiQL is enabled", "disable it in production")
	}
}

func (p *PaginationConfig) validate(result *ValidationResult) {
	if p.MaxPageSize < 1 {
		result.addError("pagination.max_page_size", "must be at least 1", "")
	}
	if p.DefaultPageSize < 1 {
		result.addError("pagination.default_page_size", "must be at least 1", "")
	}
	if p.MaxPageSize > 0 && p.DefaultPageSize > p.MaxPageSize {
		result.addError("pagination.default_page_size", "must not exceed max_page_size", "")
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if !a.JWTEnabled {
		if a.JWTRequired {
			result.addWarning("auth.jwt_required", "ignored while jwt_enabled is false", "")
		}
		return
	}
	switch {
	case a.JWTSecret == "":
		result.addError("auth.jwt_secret", "a secret is required when jwt_enabled is true", "set auth.jwt_secret or auth.jwt_secret_file")
	case len(a.JWTSecret) < 32:
		result.addWarning("auth.jwt_secret", "secret is shorter than 32 bytes", "use at least 256 bits for HS256")
	}
	if a.JWTClockSkew < 0 {
		result.addError("auth.jwt_clock_skew", "must not be negative", "")
	}
	if a.ClaimsPrefix != "" && !strings.HasSuffix(a.ClaimsPrefix, ".") {
		result.addError("auth.claims_prefix", "custom settings need a dotted prefix", "e.g. jwt.claims.")
	}
	if len(a.AllowedRoles) > 0 && a.RoleClaim == "" {
		result.addWarning("auth.allowed_roles", "ignored while role_claim is empty", "")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", "must be between 0.0 and 1.0", "")
	}

	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "use debug, info, warn or error")
	}
	switch o.Logging.Format {
	case "json", "text":
	default:
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "use json or text")
	}

	if o.TracingEnabled || o.Logging.ExportsEnabled {
		o.OTLP.validate("observability.otlp", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	switch strings.ToLower(o.Protocol) {
	case "", "grpc", "http", "http/protobuf":
	default:
		result.addError(prefix+".protocol", fmt.Sprintf("unsupported protocol %q", o.Protocol), "use grpc or http/protobuf")
	}
	switch o.Compression {
	case "", "none", "gzip":
	default:
		result.addError(prefix+".compression", fmt.Sprintf("unsupported compression %q", o.Compression), "use none or gzip")
	}
	if !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid endpoint %q", o.Endpoint), "use host:port or an http(s) URL")
	}
	if (o.TLSClientCertFile == "") != (o.TLSClientKeyFile == "") {
		result.addError(prefix+".tls_client_cert_file", "client cert and key must both be set", "")
	}
	if o.Timeout < 0 {
		result.addError(prefix+".timeout", "must not be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return false
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		u, err := url.Parse(endpoint)
		return err == nil && u.Host != ""
	}
	host, port, err := net.SplitHostPort(endpoint)
	return err == nil && host != "" && port != ""
}
