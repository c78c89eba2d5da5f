package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestIsSecretField(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		expected bool
	}{
		{"secret access key", "SecretAccessKey", true},
		{"session token", "SessionToken", true},
		{"snake case secret", "secret_access_key", true},
		{"external id", "BridgeExternalID", true},
		{"password", "password", true},
		{"private key", "private_key", true},
		{"access key id", "AccessKeyId", false},
		{"account id", "account_id", false},
		{"region", "region", false},
		{"role arn", "RoleArn", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsSecretField(tt.field)
			if got != tt.expected {
				t.Errorf("IsSecretField(%q) = %v, want %v", tt.field, got, tt.expected)
			}
		})
	}
}

func TestRedactValue(t *testing.T) {
	result := RedactValue("wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY")
	if !strings.HasPrefix(result, "[REDACTED:sha256:") {
		t.Errorf("expected [REDACTED:sha256:...], got %s", result)
	}
	if !strings.HasSuffix(result, "]") {
		t.Errorf("expected trailing ], got %s", result)
	}

	// Same input, same hash prefix
	if result != RedactValue("wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY") {
		t.Error("same input should produce same redacted value")
	}
	if result == RedactValue("differentSecret") {
		t.Error("different inputs should produce different redacted values")
	}
}

func TestRedactEmptyValue(t *testing.T) {
	if got := RedactValue(""); got != "" {
		t.Errorf("empty input should return empty, got %q", got)
	}
}

func TestRedactingWriterMasksSecretFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, "info")
	logger.Info().
		Str("session_token", "FwoGZXIvYXdzEBaDOCEXAMPLE").
		Str("account_id", "123456789012").
		Msg("credentials minted")

	out := buf.String()
	if strings.Contains(out, "FwoGZXIvYXdzEBaDOCEXAMPLE") {
		t.Errorf("secret value reached the sink: %s", out)
	}
	if !strings.Contains(out, `"session_token":"[REDACTED:sha256:`) {
		t.Errorf("expected masked session_token field, got %s", out)
	}
	if !strings.Contains(out, "123456789012") {
		t.Errorf("non-secret field should pass through, got %s", out)
	}
}

func TestJSONLoggerWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, "info")
	logger.Info().Str("account_id", "123456789012").Msg("test line")

	out := buf.String()
	if !strings.Contains(out, `"component":"opsassistant"`) {
		t.Errorf("expected component field, got %s", out)
	}
	if !strings.Contains(out, "123456789012") {
		t.Errorf("expected account id in output, got %s", out)
	}
}
