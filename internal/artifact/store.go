// Package artifact persists rendered reports and screener output under a
// single directory tree and serves them read-only over HTTP. Artifact names
// embed the account and a timestamp, so writes never collide.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoIndex reports an ingested directory without an index.html.
var ErrNoIndex = errors.New("artifact: ingested directory has no index.html")

// Store owns the artifact root. The shared res/ asset tree lives directly
// under the root and is exempt from retention.
type Store struct {
	root              string
	urlPrefix         string
	retentionReport   time.Duration
	retentionScreener time.Duration
	logger            zerolog.Logger

	sweepMu sync.Mutex
	now     func() time.Time
}

// Options configures a Store.
type Options struct {
	Root              string
	URLPrefix         string
	RetentionReport   time.Duration
	RetentionScreener time.Duration
}

// NewStore creates the artifact root if missing.
func NewStore(opts Options, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("ensuring artifact root: %w", err)
	}
	return &Store{
		root:              opts.Root,
		urlPrefix:         strings.TrimRight(opts.URLPrefix, "/"),
		retentionReport:   opts.RetentionReport,
		retentionScreener: opts.RetentionScreener,
		logger:            logger,
		now:               time.Now,
	}, nil
}

// Root returns the artifact root directory.
func (s *Store) Root() string { return s.root }

// URLPrefix returns the absolute prefix artifacts are served under.
func (s *Store) URLPrefix() string { return s.urlPrefix }

// timestampName builds the collision-free artifact name for an account.
func timestampName(kind, accountID string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s", kind, accountID, t.Format("20060102_150405"))
}

// WriteReport persists a rendered security report and returns its URL.
func (s *Store) WriteReport(accountID, html string) (string, error) {
	return s.writeHTML("security_report", accountID, html)
}

// WriteSummary persists a Well-Architected style summary page.
func (s *Store) WriteSummary(accountID, html string) (string, error) {
	return s.writeHTML("wa_summary", accountID, html)
}

func (s *Store) writeHTML(kind, accountID, html string) (string, error) {
	name := timestampName(kind, accountID, s.now()) + ".html"
	path := filepath.Join(s.root, name)
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	s.logger.Info().Str("artifact", name).Msg("report artifact written")
	s.Sweep()
	return s.urlPrefix + "/" + name, nil
}

// IngestScreenerDir copies the directory enclosing the screener's index.html
// into the root under a fresh artifact name, rewriting relative res/ asset
// references to absolute URLs. Returns the URL of the rewritten index.html.
func (s *Store) IngestScreenerDir(accountID, srcDir string) (string, error) {
	if _, err := os.Stat(filepath.Join(srcDir, "index.html")); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoIndex, srcDir)
	}

	name := timestampName("screener", accountID, s.now())
	dstDir := filepath.Join(s.root, name)
	if err := copyTree(srcDir, dstDir); err != nil {
		return "", fmt.Errorf("copying screener output: %w", err)
	}
	if err := s.rewriteAssetRefs(dstDir, name); err != nil {
		return "", err
	}
	s.logger.Info().Str("artifact", name).Str("source", srcDir).Msg("screener artifact ingested")
	s.Sweep()
	return s.urlPrefix + "/" + name + "/index.html", nil
}

// rewriteAssetRefs rewrites every href/src reference to a relative res/ path
// in the artifact's HTML files to the absolute served form. String-level on
// purpose: the screener's HTML is not ours to parse.
func (s *Store) rewriteAssetRefs(dir, artifactName string) error {
	absolute := s.urlPrefix + "/" + artifactName + "/res/"
	replacer := strings.NewReplacer(
		`href="res/`, `href="`+absolute,
		`href='res/`, `href='`+absolute,
		`src="res/`, `src="`+absolute,
		`src='res/`, `src='`+absolute,
	)
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		rewritten := replacer.Replace(string(raw))
		if rewritten == string(raw) {
			return nil
		}
		if err := os.WriteFile(path, []byte(rewritten), 0644); err != nil {
			return fmt.Errorf("rewriting %s: %w", path, err)
		}
		return nil
	})
}

// EnsureAssets copies the shared asset tree into <root>/res once. An existing
// res/ directory is left alone.
func (s *Store) EnsureAssets(srcDir string) error {
	dst := filepath.Join(s.root, "res")
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if _, err := os.Stat(srcDir); err != nil {
		return fmt.Errorf("asset source: %w", err)
	}
	if err := copyTree(srcDir, dst); err != nil {
		return fmt.Errorf("copying shared assets: %w", err)
	}
	s.logger.Info().Str("source", srcDir).Msg("shared asset tree installed")
	return nil
}

// Sweep removes artifacts older than their kind's retention. The shared
// res/ tree is never touched. Runs on every write and on the periodic timer.
func (s *Store) Sweep() {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn().Err(err).Msg("retention sweep skipped")
		return
	}
	now := s.now()
	for _, entry := range entries {
		name := entry.Name()
		if name == "res" {
			continue
		}
		retention := s.retentionReport
		if strings.HasPrefix(name, "screener_") {
			retention = s.retentionScreener
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= retention {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
			s.logger.Warn().Str("artifact", name).Err(err).Msg("retention delete failed")
			continue
		}
		s.logger.Info().Str("artifact", name).Msg("artifact expired")
	}
}

// RunSweeper sweeps immediately, then on every tick until ctx is done.
func (s *Store) RunSweeper(done <-chan struct{}, interval time.Duration) {
	s.Sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
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
