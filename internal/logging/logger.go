// Package logging provides structured logging with secret redaction for the
// assistant service.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field names whose values must never reach a log sink in the clear.
var secretFieldNames = []string{
	"secretaccesskey",
	"secret_access_key",
	"sessiontoken",
	"session_token",
	"secret_key",
	"secretkey",
	"external_id",
	"externalid",
	"password",
	"secret",
	"token",
	"credentials",
	"private_key",
	"privatekey",
}

// jsonFieldRe matches one "name":"value" pair in a zerolog JSON line.
var jsonFieldRe = regexp.MustCompile(`"([A-Za-z0-9_.-]+)":"((?:[^"\\]|\\.)*)"`)

// RedactingWriter wraps an io.Writer and masks the values of secret-named
// fields before the line reaches the sink.
type RedactingWriter struct {
	inner io.Writer
}

// NewRedactingWriter creates a writer that masks secret field values.
func NewRedactingWriter(inner io.Writer) *RedactingWriter {
	return &RedactingWriter{inner: inner}
}

func (rw *RedactingWriter) Write(p []byte) (int, error) {
	masked := jsonFieldRe.ReplaceAllFunc(p, func(pair []byte) []byte {
		m := jsonFieldRe.FindSubmatch(pair)
		if m == nil || !IsSecretField(string(m[1])) {
			return pair
		}
		return []byte(`"` + string(m[1]) + `":"` + RedactValue(string(m[2])) + `"`)
	})
	if _, err := rw.inner.Write(masked); err != nil {
		return 0, err
	}
	// Report the caller's byte count; masking changes the line length.
	return len(p), nil
}

// NewLogger creates a console logger for interactive runs.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(&RedactingWriter{inner: writer}).
		Level(lvl).
		With().
		Timestamp().
		Str("component", "opsassistant").
		Logger()
}

// NewJSONLogger creates a JSON-formatted logger for service mode or file output.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(&RedactingWriter{inner: w}).
		Level(lvl).
		With().
		Timestamp().
		Str("component", "opsassistant").
		Logger()
}

// IsSecretField reports whether a field name is known to carry secret material.
func IsSecretField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, secret := range secretFieldNames {
		if strings.Contains(lower, secret) {
			return true
		}
	}
	return false
}

// RedactValue replaces a secret value with a placeholder carrying a short
// hash prefix, so two log lines about the same secret remain correlatable.
func RedactValue(value string) string {
	if value == "" {
		return ""
	}
	h := sha256.Sum256([]byte(value))
	return "[REDACTED:sha256:" + hex.EncodeToString(h[:])[:8] + "]"
}
