package artifact

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Options{
		Root:              t.TempDir(),
		URLPrefix:         "http://localhost:8080/reports",
		RetentionReport:   48 * time.Hour,
		RetentionScreener: 72 * time.Hour,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWriteReportNamesAndURL(t *testing.T) {
	store := setupStore(t)
	store.now = func() time.Time { return time.Date(2024, 8, 15, 10, 30, 45, 0, time.UTC) }

	url, err := store.WriteReport("123456789012", "<html></html>")
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	want := "http://localhost:8080/reports/security_report_123456789012_20240815_103045.html"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "security_report_123456789012_20240815_103045.html")); err != nil {
		t.Errorf("artifact file missing: %v", err)
	}
}

func TestIngestScreenerRewritesAssetRefs(t *testing.T) {
	store := setupStore(t)
	store.now = func() time.Time { return time.Date(2024, 8, 15, 10, 30, 45, 0, time.UTC) }

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "index.html"),
		`<link href="res/app.css"><link href='res/extra.css'><img src="res/logo.png"><script src='res/app.js'></script>`)
	writeFile(t, filepath.Join(src, "detail.html"), `<img src="res/chart.png">`)

	url, err := store.IngestScreenerDir("123456789012", src)
	if err != nil {
		t.Fatalf("IngestScreenerDir: %v", err)
	}
	name := "screener_123456789012_20240815_103045"
	if url != "http://localhost:8080/reports/"+name+"/index.html" {
		t.Errorf("url = %q", url)
	}

	for _, file := range []string{"index.html", "detail.html"} {
		raw, err := os.ReadFile(filepath.Join(store.Root(), name, file))
		if err != nil {
			t.Fatalf("reading %s: %v", file, err)
		}
		html := string(raw)
		for _, banned := range []string{`href="res/`, `href='res/`, `src="res/`, `src='res/`} {
			if strings.Contains(html, banned) {
				t.Errorf("%s still contains relative ref %s", file, banned)
			}
		}
		if !strings.Contains(html, "http://localhost:8080/reports/"+name+"/res/") {
			t.Errorf("%s missing absolute asset prefix:\n%s", file, html)
		}
	}
}

func TestIngestScreenerNoIndexFails(t *testing.T) {
	store := setupStore(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "notes.txt"), "empty run")

	if _, err := store.IngestScreenerDir("123456789012", src); err == nil {
		t.Fatal("expected error for directory without index.html")
	}
}

func TestSweepRetentionByKind(t *testing.T) {
	store := setupStore(t)

	oldReport := filepath.Join(store.Root(), "security_report_123456789012_20240101_000000.html")
	writeFile(t, oldReport, "<html></html>")
	oldScreener := filepath.Join(store.Root(), "screener_123456789012_20240101_000000")
	writeFile(t, filepath.Join(oldScreener, "index.html"), "<html></html>")
	freshReport := filepath.Join(store.Root(), "security_report_123456789012_20240103_000000.html")
	writeFile(t, freshReport, "<html></html>")
	resFile := filepath.Join(store.Root(), "res", "app.css")
	writeFile(t, resFile, "body {}")

	stale := time.Now().Add(-100 * time.Hour)
	between := time.Now().Add(-60 * time.Hour)
	for _, path := range []string{oldReport, resFile} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatal(err)
		}
	}
	// 60h: past the 48h report horizon but inside the 72h screener horizon.
	if err := os.Chtimes(oldScreener, between, between); err != nil {
		t.Fatal(err)
	}

	store.Sweep()

	if _, err := os.Stat(oldReport); !os.IsNotExist(err) {
		t.Errorf("stale report survived the sweep")
	}
	if _, err := os.Stat(oldScreener); err != nil {
		t.Errorf("screener output within its retention was deleted: %v", err)
	}
	if _, err := os.Stat(freshReport); err != nil {
		t.Errorf("fresh report was deleted: %v", err)
	}
	if _, err := os.Stat(resFile); err != nil {
		t.Errorf("shared res/ tree must never be swept: %v", err)
	}
}

func TestEnsureAssetsCopiesOnce(t *testing.T) {
	store := setupStore(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "app.css"), "body {}")

	if err := store.EnsureAssets(src); err != nil {
		t.Fatalf("EnsureAssets: %v", err)
	}
	marker := filepath.Join(store.Root(), "res", "marker.txt")
	writeFile(t, marker, "existing")

	if err := store.EnsureAssets(src); err != nil {
		t.Fatalf("EnsureAssets second run: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("second EnsureAssets overwrote the existing tree: %v", err)
	}
}

func setupServer(t *testing.T, store *Store) *httptest.Server {
	t.Helper()
	router := mux.NewRouter()
	NewServer(store, func() int { return 3 }, zerolog.Nop()).Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	store := setupStore(t)
	srv := setupServer(t, store)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])
	if !strings.Contains(body, `"healthy"`) || !strings.Contains(body, `"connected_clients":3`) {
		t.Errorf("health body = %s", body)
	}
}

func TestServeArtifactAndDirectoryIndex(t *testing.T) {
	store := setupStore(t)
	writeFile(t, filepath.Join(store.Root(), "screener_123456789012_20240101_000000", "index.html"), "<html>ok</html>")
	srv := setupServer(t, store)

	for _, path := range []string{
		"/reports/screener_123456789012_20240101_000000/index.html",
		"/reports/screener_123456789012_20240101_000000/",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}

func TestServeRejectsTraversal(t *testing.T) {
	store := setupStore(t)

	// The router cleans ".." with a redirect; the handler must still refuse
	// traversal when hit with a raw path.
	handler := NewServer(store, nil, zerolog.Nop()).handleArtifact("/reports")
	req := httptest.NewRequest(http.MethodGet, "http://localhost/reports/x", nil)
	req.URL.Path = "/reports/a/../../etc/passwd"
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("traversal status = %d, want 403", rec.Code)
	}
}
