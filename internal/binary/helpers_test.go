package binary

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX executables")
	}
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeTool writes an executable shell script that prints output and returns
// its path and digest.
func writeTool(t *testing.T, dir, name, output string) (string, string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data := []byte("#!/bin/sh\necho '" + output + "'\n")
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	return path, digestOf(data)
}

// whitelistFor builds a whitelist from version number to digests.
func whitelistFor(t *testing.T, entries map[string][]string) *Whitelist {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("[versions]\n")
	for v, ds := range entries {
		buf.WriteString(`"` + v + `" = [`)
		for i, d := range ds {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(`"` + d + `"`)
		}
		buf.WriteString("]\n")
	}
	wl, err := ParseWhitelist(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseWhitelist() error = %v", err)
	}
	return wl
}

// newSigner creates an ed25519 OpenPGP key and writes its armored public
// key to dir/keyring.asc.
func newSigner(t *testing.T, dir string) (*openpgp.Entity, string) {
	t.Helper()
	entity, err := openpgp.NewEntity("toolkeeper test", "", "test@example.com",
		&packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("armor.Encode() error = %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close armor: %v", err)
	}

	path := filepath.Join(dir, "keyring.asc")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write keyring: %v", err)
	}
	return entity, path
}

func sign(t *testing.T, entity *openpgp.Entity, data []byte) []byte {
	t.Helper()
	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, entity, bytes.NewReader(data), nil); err != nil {
		t.Fatalf("ArmoredDetachSign() error = %v", err)
	}
	return sig.Bytes()
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0755, Size: int64(len(content)), Typeflag: tar.TypeReg, ModTime: time.Now()}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// releaseServer serves a release metadata document at /release and the
// given files at /files/<name>.
type releaseServer struct {
	*httptest.Server
	files     map[string][]byte
	hits      map[string]*atomic.Int32
	urlField  string
	extraJSON []map[string]any
}

func newReleaseServer(t *testing.T, files map[string][]byte) *releaseServer {
	t.Helper()
	rs := &releaseServer{
		files:    files,
		hits:     make(map[string]*atomic.Int32),
		urlField: "browser_download_url",
	}
	for name := range files {
		rs.hits[name] = &atomic.Int32{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/release", func(w http.ResponseWriter, r *http.Request) {
		var assets []map[string]any
		for name, data := range rs.files {
			assets = append(assets, map[string]any{
				"name":      name,
				"size":      len(data),
				rs.urlField: rs.URL + "/files/" + name,
			})
		}
		assets = append(assets, rs.extraJSON...)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"tag_name": "v2.47", "assets": assets})
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.URL.Path)
		data, ok := rs.files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		rs.hits[name].Add(1)
		_, _ = w.Write(data)
	})

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *releaseServer) downloader() *Downloader {
	d := NewDownloader(DownloaderConfig{APIURL: rs.URL + "/release"})
	d.backoff = time.Millisecond
	return d
}

func writeScript(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
}
