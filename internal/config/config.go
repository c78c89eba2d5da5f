// Package config manages assistant service configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

const (
	ConfigDirName   = ".opsassistant"
	ConfigFileName  = "config.json"
	DefaultLogLevel = "info"

	envPrefix = "OPSASSIST_"
)

// Config holds every tunable for the assistant service. Defaults come from
// DefaultConfig; Load layers the config file and then the environment on top.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	LogLevel   string `json:"log_level"`
	LogJSON    bool   `json:"log_json"`

	// Credential broker
	PrimaryRegion        string `json:"primary_region"`
	SecretBackend        string `json:"secret_backend"` // ssm | secretsmanager
	AccessKeySecretName  string `json:"access_key_secret_name"`
	SecretKeySecretName  string `json:"secret_key_secret_name"`
	TenantRoleName       string `json:"tenant_role_name"`
	BridgeRoleARN        string `json:"bridge_role_arn"`
	BridgeExternalID     string `json:"bridge_external_id"`
	SessionNamePrefix    string `json:"session_name_prefix"`
	CredentialTTLMinutes int    `json:"credential_ttl_minutes"`

	// Inventory
	TrustedAdvisorRegion string `json:"trusted_advisor_region"`

	// Artifacts
	ArtifactRoot          string `json:"artifact_root"`
	URLPrefix             string `json:"url_prefix"`
	RetentionReportDays   int    `json:"retention_report_days"`
	RetentionScreenerDays int    `json:"retention_screener_days"`
	SweepIntervalMinutes  int    `json:"sweep_interval_minutes"`

	// Screener
	ScreenerDir            string `json:"screener_dir"`
	ScreenerOutputRoot     string `json:"screener_output_root"`
	ScreenerTimeoutSeconds int    `json:"screener_timeout_seconds"`

	// Well-Architected summarizer
	WASummarizerDir            string `json:"wa_summarizer_dir"`
	WASummarizerTimeoutSeconds int    `json:"wa_summarizer_timeout_seconds"`

	// Pass-through CLI
	QCLIBinary         string `json:"qcli_binary"`
	QCLITimeoutSeconds int    `json:"qcli_timeout_seconds"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:             ":8080",
		LogLevel:               DefaultLogLevel,
		PrimaryRegion:          "ap-northeast-2",
		SecretBackend:          "ssm",
		AccessKeySecretName:    "/access-key/crossaccount",
		SecretKeySecretName:    "/secret-key/crossaccount",
		TenantRoleName:         "SaltwareCrossAccount",
		BridgeRoleARN:          "arn:aws:iam::370662402529:role/crossaccount",
		BridgeExternalID:       "saltwarec0rp",
		SessionNamePrefix:      "SlackBot",
		CredentialTTLMinutes:   50,
		TrustedAdvisorRegion:   "us-east-1",
		ArtifactRoot:           "/tmp/reports",
		URLPrefix:              "http://localhost:8080/reports",
		RetentionReportDays:    2,
		RetentionScreenerDays:  3,
		SweepIntervalMinutes:   60,
		ScreenerDir:            "/root/service-screener-v2",
		ScreenerOutputRoot:     "/root/service-screener-v2/adminlte/aws",
		ScreenerTimeoutSeconds: 600,
		// The summarizer drives an LLM over the whole scan; Korean output
		// roughly doubles the scanner's runtime.
		WASummarizerDir:            "/root/wa-ss-summarizer",
		WASummarizerTimeoutSeconds: 900,
		QCLIBinary:                 "q",
		QCLITimeoutSeconds:         600,
	}
}

// CredentialTTL returns the broker cache TTL as a duration.
func (c Config) CredentialTTL() time.Duration {
	return time.Duration(c.CredentialTTLMinutes) * time.Minute
}

// SweepInterval returns the period between retention sweeps.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// ScreenerTimeout returns the screener subprocess deadline.
func (c Config) ScreenerTimeout() time.Duration {
	return time.Duration(c.ScreenerTimeoutSeconds) * time.Second
}

// WASummarizerTimeout returns the summarizer subprocess deadline.
func (c Config) WASummarizerTimeout() time.Duration {
	return time.Duration(c.WASummarizerTimeoutSeconds) * time.Second
}

// QCLITimeout returns the pass-through subprocess deadline.
func (c Config) QCLITimeout() time.Duration {
	return time.Duration(c.QCLITimeoutSeconds) * time.Second
}

// ConfigDir returns the global config directory path.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ConfigDirName)
}

// Load reads the config file at path (defaults applied for missing fields),
// then overlays environment variables. An empty path loads defaults plus
// environment only; a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = filepath.Join(ConfigDir(), ConfigFileName)
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Save persists the config (0700 dir, 0600 file).
func Save(cfg Config, path string) error {
	if path == "" {
		path = filepath.Join(ConfigDir(), ConfigFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func applyEnv(cfg *Config) {
	envStr(&cfg.ListenAddr, "LISTEN_ADDR")
	envStr(&cfg.LogLevel, "LOG_LEVEL")
	envBool(&cfg.LogJSON, "LOG_JSON")
	envStr(&cfg.PrimaryRegion, "PRIMARY_REGION")
	envStr(&cfg.SecretBackend, "SECRET_BACKEND")
	envStr(&cfg.AccessKeySecretName, "ACCESS_KEY_SECRET_NAME")
	envStr(&cfg.SecretKeySecretName, "SECRET_KEY_SECRET_NAME")
	envStr(&cfg.TenantRoleName, "TENANT_ROLE_NAME")
	envStr(&cfg.BridgeRoleARN, "BRIDGE_ROLE_ARN")
	envStr(&cfg.BridgeExternalID, "BRIDGE_EXTERNAL_ID")
	envStr(&cfg.SessionNamePrefix, "SESSION_NAME_PREFIX")
	envInt(&cfg.CredentialTTLMinutes, "CREDENTIAL_TTL_MINUTES")
	envStr(&cfg.TrustedAdvisorRegion, "TRUSTED_ADVISOR_REGION")
	envStr(&cfg.ArtifactRoot, "ARTIFACT_ROOT")
	envStr(&cfg.URLPrefix, "URL_PREFIX")
	envInt(&cfg.RetentionReportDays, "RETENTION_REPORT_DAYS")
	envInt(&cfg.RetentionScreenerDays, "RETENTION_SCREENER_DAYS")
	envInt(&cfg.SweepIntervalMinutes, "SWEEP_INTERVAL_MINUTES")
	envStr(&cfg.ScreenerDir, "SCREENER_DIR")
	envStr(&cfg.ScreenerOutputRoot, "SCREENER_OUTPUT_ROOT")
	envInt(&cfg.ScreenerTimeoutSeconds, "SCREENER_TIMEOUT_SECONDS")
	envStr(&cfg.QCLIBinary, "QCLI_BINARY")
	envInt(&cfg.QCLITimeoutSeconds, "QCLI_TIMEOUT_SECONDS")
}

func envStr(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
