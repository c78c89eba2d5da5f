// Package screener wraps the Service Screener subprocess. The tool is
// opaque: the adapter prepares its cross-account config, runs it with
// injected credentials, and recovers its output directory.
package screener

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	awsx "github.com/saltware-cloud/opsassistant/internal/aws"
)

var (
	// ErrTimeout reports a scan that outran its deadline.
	ErrTimeout = errors.New("screener: scan timed out")
	// ErrEmptyOutput reports a scan that produced no index.html, even
	// after zip recovery.
	ErrEmptyOutput = errors.New("screener: no report in output directory")
)

// defaultRegions are always scanned; extra regions mentioned in the
// question are appended.
var defaultRegions = []string{"ap-northeast-2", "us-east-1"}

var regionRe = regexp.MustCompile(`\b(?:us|eu|ap|sa|ca|me|af)-(?:north|south|east|west|central|northeast|southeast)-\d\b`)

// Options configures the adapter.
type Options struct {
	// Dir is the screener install directory and subprocess working dir.
	Dir string
	// OutputRoot is where the tool writes per-account results
	// (<Dir>/adminlte/aws by default).
	OutputRoot string
	Timeout    time.Duration
	// Retention is how long per-account output under OutputRoot survives
	// between scans. Zero means the 3-day default.
	Retention time.Duration
}

const defaultRetention = 72 * time.Hour

// Adapter runs scans. run is swappable for tests.
type Adapter struct {
	opts   Options
	logger zerolog.Logger
	run    func(ctx context.Context, cmd *exec.Cmd) error
}

// NewAdapter creates a screener adapter.
func NewAdapter(opts Options, logger zerolog.Logger) *Adapter {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	return &Adapter{
		opts:   opts,
		logger: logger,
		run:    func(_ context.Context, cmd *exec.Cmd) error { return cmd.Run() },
	}
}

// crossAccountsConfig is the tool's --crossAccounts input. The minted
// session credentials in the environment are "this account".
type crossAccountsConfig struct {
	General struct {
		IncludeThisAccount bool     `json:"IncludeThisAccount"`
		Regions            []string `json:"Regions"`
	} `json:"general"`
}

// ScanRegions returns the region list for a question: the defaults plus any
// region names the question mentions.
func ScanRegions(question string) []string {
	regions := append([]string{}, defaultRegions...)
	seen := map[string]bool{}
	for _, r := range regions {
		seen[r] = true
	}
	for _, r := range regionRe.FindAllString(strings.ToLower(question), -1) {
		if !seen[r] {
			seen[r] = true
			regions = append(regions, r)
		}
	}
	return regions
}

// Run scans one account and returns the directory holding index.html.
// Prior output for the account is purged first so a failed scan cannot
// resurface a stale report. The process's exit status is ignored: the tool
// has been seen exiting non-zero with a valid report on disk.
func (a *Adapter) Run(ctx context.Context, accountID string, creds awsx.SessionCredentials, question string) (string, error) {
	a.sweepOutput()

	accountDir := filepath.Join(a.opts.OutputRoot, accountID)
	if err := os.RemoveAll(accountDir); err != nil {
		return "", fmt.Errorf("purging prior output: %w", err)
	}

	regions := ScanRegions(question)
	configPath, err := a.writeCrossAccounts(accountID, regions)
	if err != nil {
		return "", err
	}
	defer os.Remove(configPath)

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "python3", filepath.Join(a.opts.Dir, "Screener.py"), "--crossAccounts", configPath)
	cmd.Dir = a.opts.Dir
	cmd.Env = append(os.Environ(),
		"AWS_ACCESS_KEY_ID="+creds.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY="+creds.SecretAccessKey,
		"AWS_SESSION_TOKEN="+creds.SessionToken,
		"AWS_DEFAULT_REGION="+creds.Region,
		// Force the injected credentials over any instance role.
		"AWS_EC2_METADATA_DISABLED=true",
	)

	a.logger.Info().
		Str("account_id", accountID).
		Strs("regions", regions).
		Msg("screener scan started")

	start := time.Now()
	runErr := a.run(ctx, cmd)
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: account %s after %s", ErrTimeout, accountID, a.opts.Timeout)
	}
	if runErr != nil {
		a.logger.Warn().
			Str("account_id", accountID).
			Err(runErr).
			Msg("screener exited non-zero, checking output anyway")
	}
	a.logger.Info().
		Str("account_id", accountID).
		Dur("elapsed", time.Since(start)).
		Msg("screener scan finished")

	if dir := findIndexDir(accountDir); dir != "" {
		return dir, nil
	}
	if err := a.recoverFromZip(accountDir); err == nil {
		if dir := findIndexDir(accountDir); dir != "" {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w: account %s", ErrEmptyOutput, accountID)
}

// sweepOutput ages out stale per-account output under OutputRoot. Accounts
// that are never rescanned would otherwise accumulate forever; the shared
// res tree is kept.
func (a *Adapter) sweepOutput() {
	entries, err := os.ReadDir(a.opts.OutputRoot)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-a.opts.Retention)
	for _, entry := range entries {
		if entry.Name() == "res" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(a.opts.OutputRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			a.logger.Warn().Str("path", path).Err(err).Msg("stale output not removed")
			continue
		}
		a.logger.Info().Str("path", path).Msg("stale screener output removed")
	}
}

func (a *Adapter) writeCrossAccounts(accountID string, regions []string) (string, error) {
	var cfg crossAccountsConfig
	cfg.General.IncludeThisAccount = true
	cfg.General.Regions = regions

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding crossAccounts config: %w", err)
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("crossAccounts_%s_%d.json", accountID, time.Now().UnixNano()))
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return "", fmt.Errorf("writing crossAccounts config: %w", err)
	}
	return path, nil
}

// findIndexDir walks the account's output tree for an index.html and
// returns its enclosing directory, or "".
func findIndexDir(root string) string {
	var found string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return filepath.SkipAll
		}
		if !d.IsDir() && strings.EqualFold(d.Name(), "index.html") {
			found = filepath.Dir(path)
			return filepath.SkipAll
		}
		return nil
	})
	return found
}
