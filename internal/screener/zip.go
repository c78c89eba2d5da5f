package screener

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// recoverFromZip extracts an output.zip left next to (or inside) the
// account's output directory. Some screener runs die after zipping their
// report but before unpacking it.
func (a *Adapter) recoverFromZip(accountDir string) error {
	candidates := []string{
		filepath.Join(accountDir, "output.zip"),
		filepath.Join(filepath.Dir(accountDir), "output.zip"),
		filepath.Join(a.opts.Dir, "output.zip"),
	}
	for _, zipPath := range candidates {
		if _, err := os.Stat(zipPath); err != nil {
			continue
		}
		a.logger.Info().Str("zip", zipPath).Msg("recovering screener output from zip")
		return extractZip(zipPath, accountDir)
	}
	return fmt.Errorf("no output.zip near %s", accountDir)
}

func extractZip(zipPath, dstDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", zipPath, err)
	}
	defer r.Close()

	cleanRoot := filepath.Clean(dstDir)
	for _, f := range r.File {
		target := filepath.Join(dstDir, filepath.FromSlash(f.Name))
		// Zip entries are attacker-ish input; keep them inside dstDir.
		if !strings.HasPrefix(filepath.Clean(target), cleanRoot+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry escapes output dir: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening zip entry %s: %w", f.Name, err)
	}
	defer in.Close()
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return out.Close()
}
