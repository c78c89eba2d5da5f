package screener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoSummary reports a summarizer run that produced no report file.
var ErrNoSummary = errors.New("screener: no summary report produced")

// SummarizerOptions configures the Well-Architected summarizer.
type SummarizerOptions struct {
	// Dir is the summarizer install directory holding run_wa_summarizer.sh
	// and its output/ directory.
	Dir string
	// AssetDir is the shared res/ tree copied next to the scan input so
	// the summarizer can resolve the report's relative asset refs.
	AssetDir string
	Timeout  time.Duration
}

// Summarizer turns one account's screener output into a Well-Architected
// analysis report by driving the external summarizer script. run is
// swappable for tests.
type Summarizer struct {
	opts   SummarizerOptions
	logger zerolog.Logger
	run    func(ctx context.Context, cmd *exec.Cmd) error
}

// NewSummarizer creates a summarizer.
func NewSummarizer(opts SummarizerOptions, logger zerolog.Logger) *Summarizer {
	return &Summarizer{
		opts:   opts,
		logger: logger,
		run:    func(_ context.Context, cmd *exec.Cmd) error { return cmd.Run() },
	}
}

// Summarize runs the summarizer over one account's scan output and returns
// the generated report HTML. Unlike the scanner itself, a non-zero exit
// here is a hard failure: a half-written analysis is worse than none.
func (s *Summarizer) Summarize(ctx context.Context, accountID, resultDir string) (string, error) {
	script := filepath.Join(s.opts.Dir, "run_wa_summarizer.sh")
	if _, err := os.Stat(script); err != nil {
		return "", fmt.Errorf("summarizer script: %w", err)
	}

	inputDir := filepath.Join(os.TempDir(), fmt.Sprintf("wa_input_%s_%d", accountID, time.Now().UnixNano()))
	defer os.RemoveAll(inputDir)
	if err := copyDir(resultDir, filepath.Join(inputDir, accountID)); err != nil {
		return "", fmt.Errorf("staging scan output: %w", err)
	}
	if s.opts.AssetDir != "" {
		if _, err := os.Stat(s.opts.AssetDir); err == nil {
			if err := copyDir(s.opts.AssetDir, filepath.Join(inputDir, "res")); err != nil {
				return "", fmt.Errorf("staging assets: %w", err)
			}
		}
	}

	outputDir := filepath.Join(s.opts.Dir, "output")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, script, "-d", inputDir)
	cmd.Dir = s.opts.Dir
	cmd.Env = append(os.Environ(),
		"Q_LANGUAGE=Korean",
		"LANG=ko_KR.UTF-8",
	)

	s.logger.Info().Str("account_id", accountID).Msg("wa summary generation started")
	start := time.Now()
	err := s.run(ctx, cmd)
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: account %s after %s", ErrTimeout, accountID, s.opts.Timeout)
	}
	if err != nil {
		return "", fmt.Errorf("running summarizer: %w", err)
	}
	s.logger.Info().
		Str("account_id", accountID).
		Dur("elapsed", time.Since(start)).
		Msg("wa summary generation finished")

	reportPath, err := newestSummary(outputDir)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(reportPath)
	if err != nil {
		return "", fmt.Errorf("reading summary report: %w", err)
	}
	return string(raw), nil
}

// newestSummary picks the most recently written wa_summary_report_*.html;
// the script names its output by its own timestamp, not the account.
func newestSummary(outputDir string) (string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoSummary, err)
	}
	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "wa_summary_report_") || !strings.HasSuffix(name, ".html") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(outputDir, name)
			newestTime = info.ModTime()
		}
	}
	if newest == "" {
		return "", ErrNoSummary
	}
	return newest, nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer out.Close()
		if _, err := io.Copy(out, in); err != nil {
			return err
		}
		return out.Close()
	})
}
