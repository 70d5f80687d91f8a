package binary

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseRelease(t *testing.T) {
	body := `{
		"tag_name": "v2.47",
		"assets": [
			{"name": "modtool-linux-amd64.tar.gz", "size": 100, "browser_download_url": "https://example.com/a.tar.gz"},
			{"name": "modtool-windows-386.zip", "size": 200, "download_url": "http://example.com/b.zip"},
			{"name": "evil", "size": 1, "download_url": "file:///etc/passwd"},
			{"name": "", "download_url": "https://example.com/unnamed"}
		]
	}`

	rel, err := parseRelease([]byte(body))
	if err != nil {
		t.Fatalf("parseRelease() error = %v", err)
	}
	if rel.Tag != "v2.47" {
		t.Errorf("Tag = %q", rel.Tag)
	}
	if len(rel.Assets) != 2 {
		t.Fatalf("Assets = %+v, want 2 http(s) assets", rel.Assets)
	}
	if rel.Assets[1] != (ReleaseAsset{Name: "modtool-windows-386.zip", Size: 200, URL: "http://example.com/b.zip"}) {
		t.Errorf("Assets[1] = %+v", rel.Assets[1])
	}

	for _, bad := range []string{`not json`, `{"assets": 3}`, `{}`} {
		if _, err := parseRelease([]byte(bad)); err == nil {
			t.Errorf("parseRelease(%q) succeeded", bad)
		}
	}
}

func TestRelease_Lookup(t *testing.T) {
	rel := &Release{Assets: []ReleaseAsset{
		{Name: "modtool-linux-amd64.tar.gz.sig"},
		{Name: "modtool-linux-amd64.tar.gz"},
		{Name: "modtool-linux-amd64.tar.gz.asc"},
		{Name: "checksums.txt"},
		{Name: "modtool-windows-amd64.zip"},
	}}

	a, err := rel.AssetFor("linux-amd64")
	if err != nil || a.Name != "modtool-linux-amd64.tar.gz" {
		t.Errorf("AssetFor(linux-amd64) = %v, %v", a, err)
	}
	if a, err := rel.AssetFor("WINDOWS-AMD64"); err != nil || a.Name != "modtool-windows-amd64.zip" {
		t.Errorf("AssetFor is case-sensitive: %v, %v", a, err)
	}
	if _, err := rel.AssetFor("darwin-arm64"); !errors.Is(err, ErrNoAsset) {
		t.Errorf("AssetFor(darwin) error = %v, want ErrNoAsset", err)
	}

	if sig := rel.SignatureFor("modtool-linux-amd64.tar.gz"); sig == nil || sig.Name != "modtool-linux-amd64.tar.gz.sig" {
		t.Errorf("SignatureFor() = %v", sig)
	}
	if sig := rel.SignatureFor("modtool-windows-amd64.zip"); sig != nil {
		t.Errorf("SignatureFor(unsigned) = %v", sig)
	}
	if sums := rel.ChecksumsAsset(); sums == nil || sums.Name != "checksums.txt" {
		t.Errorf("ChecksumsAsset() = %v", sums)
	}
}

func TestDownloader_FetchLatestAsset(t *testing.T) {
	rs := newReleaseServer(t, map[string][]byte{
		"modtool-linux-amd64.tar.gz": []byte("archive"),
		"modtool-windows-386.zip":    []byte("zip"),
	})
	rs.urlField = "download_url"

	asset, err := rs.downloader().FetchLatestAsset(context.Background(), "windows-386")
	if err != nil {
		t.Fatalf("FetchLatestAsset() error = %v", err)
	}
	if asset.Name != "modtool-windows-386.zip" || asset.Size != 3 || !strings.HasPrefix(asset.URL, rs.URL) {
		t.Errorf("asset = %+v", asset)
	}
}

func TestDownloader_FetchRelease_Errors(t *testing.T) {
	t.Run("rejects non-http scheme", func(t *testing.T) {
		d := NewDownloader(DownloaderConfig{APIURL: "ftp://example.com/release"})
		_, err := d.FetchRelease(context.Background())
		var de *DownloadError
		if !errors.As(err, &de) || !strings.Contains(err.Error(), "scheme") {
			t.Errorf("FetchRelease() error = %v, want scheme DownloadError", err)
		}
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.NotFound(w, r)
		}))
		defer srv.Close()

		d := NewDownloader(DownloaderConfig{APIURL: srv.URL})
		d.backoff = time.Millisecond
		if _, err := d.FetchRelease(context.Background()); err == nil {
			t.Fatal("FetchRelease() succeeded on 404")
		}
		if n := hits.Load(); n != 1 {
			t.Errorf("server hit %d times, want 1", n)
		}
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"tag_name":"v1","assets":[]}`))
		}))
		defer srv.Close()

		d := NewDownloader(DownloaderConfig{APIURL: srv.URL})
		d.backoff = time.Millisecond
		rel, err := d.FetchRelease(context.Background())
		if err != nil {
			t.Fatalf("FetchRelease() error = %v", err)
		}
		if rel.Tag != "v1" || hits.Load() != 3 {
			t.Errorf("Tag = %q after %d hits", rel.Tag, hits.Load())
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		d := NewDownloader(DownloaderConfig{APIURL: srv.URL})
		d.backoff = time.Hour
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		if _, err := d.FetchRelease(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("FetchRelease() error = %v, want context.Canceled", err)
		}
	})
}

func TestDownloader_Download(t *testing.T) {
	payload := []byte(strings.Repeat("x", 3*copyBufferSize+17))
	rs := newReleaseServer(t, map[string][]byte{"modtool-linux-amd64": payload})
	d := rs.downloader()

	asset, err := d.FetchLatestAsset(context.Background(), "linux-amd64")
	if err != nil {
		t.Fatalf("FetchLatestAsset() error = %v", err)
	}

	destDir := filepath.Join(t.TempDir(), "downloads")
	var calls int
	var last int64
	path, err := d.Download(context.Background(), asset, destDir, func(done, total int64) bool {
		calls++
		if done < last {
			t.Errorf("progress went backwards: %d after %d", done, last)
		}
		if total != int64(len(payload)) {
			t.Errorf("total = %d, want %d", total, len(payload))
		}
		last = done
		return true
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	if path != filepath.Join(destDir, "modtool-linux-amd64") {
		t.Errorf("path = %s", path)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != string(payload) {
		t.Fatalf("downloaded content mismatch (err %v)", err)
	}
	if calls == 0 || last != int64(len(payload)) {
		t.Errorf("progress calls = %d, last = %d", calls, last)
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestDownloader_DownloadCancelled(t *testing.T) {
	payload := []byte(strings.Repeat("y", 4*copyBufferSize))
	rs := newReleaseServer(t, map[string][]byte{"tool.bin": payload})
	d := rs.downloader()

	asset := &ReleaseAsset{Name: "tool.bin", Size: int64(len(payload)), URL: rs.URL + "/files/tool.bin"}
	destDir := t.TempDir()

	var calls int
	_, err := d.Download(context.Background(), asset, destDir, func(done, total int64) bool {
		calls++
		return false
	})
	if !errors.Is(err, ErrUserCancelled) {
		t.Fatalf("Download() error = %v, want ErrUserCancelled", err)
	}
	if calls != 1 {
		t.Errorf("progress called %d times after cancel, want 1", calls)
	}
	if n := rs.hits["tool.bin"].Load(); n != 1 {
		t.Errorf("cancelled download retried: %d requests", n)
	}

	entries, _ := os.ReadDir(destDir)
	if len(entries) != 0 {
		t.Errorf("files left after cancel: %v", entries)
	}
}

func TestDownloader_DownloadRejects(t *testing.T) {
	d := NewDownloader(DownloaderConfig{})

	tests := []struct {
		name  string
		asset *ReleaseAsset
	}{
		{"nil asset", nil},
		{"file scheme", &ReleaseAsset{Name: "a", URL: "file:///etc/passwd"}},
		{"path in name", &ReleaseAsset{Name: "../a", URL: "https://example.com/a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Download(context.Background(), tt.asset, t.TempDir(), nil); err == nil {
				t.Error("Download() succeeded")
			}
		})
	}
}

func TestDownloader_SizeMismatch(t *testing.T) {
	rs := newReleaseServer(t, map[string][]byte{"tool.bin": []byte("short")})
	d := rs.downloader()
	d.retries = 0

	asset := &ReleaseAsset{Name: "tool.bin", Size: 999, URL: rs.URL + "/files/tool.bin"}
	destDir := t.TempDir()

	_, err := d.Download(context.Background(), asset, destDir, nil)
	var de *DownloadError
	if !errors.As(err, &de) || !strings.Contains(err.Error(), "size mismatch") {
		t.Fatalf("Download() error = %v, want size mismatch", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "tool.bin")); !os.IsNotExist(err) {
		t.Error("final file created despite size mismatch")
	}
}

func TestDownloader_UserAgentAndRedirect(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer final.Close()

	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/asset", http.StatusFound)
	}))
	defer redirect.Close()

	d := NewDownloader(DownloaderConfig{})
	dest := filepath.Join(t.TempDir(), "nested", "asset")
	if err := d.DownloadToFile(context.Background(), redirect.URL, dest); err != nil {
		t.Fatalf("DownloadToFile() error = %v", err)
	}
	if got, _ := os.ReadFile(dest); string(got) != "payload" {
		t.Errorf("content = %q", got)
	}
}
