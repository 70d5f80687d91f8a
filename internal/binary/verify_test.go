package binary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVerifier_VerifySignature(t *testing.T) {
	dir := t.TempDir()
	entity, keyring := newSigner(t, dir)
	other, _ := newSigner(t, t.TempDir())

	data := []byte("release archive bytes")
	file := filepath.Join(dir, "asset.tar.gz")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatal(err)
	}

	v, err := NewVerifier(keyring)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	if !v.CanVerifySignatures() {
		t.Fatal("CanVerifySignatures() = false with keyring")
	}

	tests := []struct {
		name    string
		sig     []byte
		wantErr bool
	}{
		{"valid signature", sign(t, entity, data), false},
		{"signed by unknown key", sign(t, other, data), true},
		{"signature over other data", sign(t, entity, []byte("tampered")), true},
		{"garbage", []byte("not a signature"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sigPath := filepath.Join(t.TempDir(), "asset.tar.gz.asc")
			if err := os.WriteFile(sigPath, tt.sig, 0644); err != nil {
				t.Fatal(err)
			}
			err := v.VerifySignature(file, sigPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifySignature() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := v.VerifySignature(file, filepath.Join(dir, "missing.asc")); err == nil {
		t.Error("VerifySignature() with missing signature succeeded")
	}
}

func TestVerifier_NoKeyring(t *testing.T) {
	v, err := NewVerifier("")
	if err != nil {
		t.Fatalf("NewVerifier(\"\") error = %v", err)
	}
	if v.CanVerifySignatures() {
		t.Error("CanVerifySignatures() = true without keyring")
	}
	if err := v.VerifySignature("a", "b"); err == nil {
		t.Error("VerifySignature() without keyring succeeded")
	}
}

func TestLoadKeyring(t *testing.T) {
	dir := t.TempDir()
	_, keyring := newSigner(t, dir)

	list, err := LoadKeyring(keyring)
	if err != nil {
		t.Fatalf("LoadKeyring() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("LoadKeyring() returned %d entities", len(list))
	}

	bad := filepath.Join(dir, "bad.gpg")
	os.WriteFile(bad, []byte("not a key"), 0644)
	if _, err := LoadKeyring(bad); err == nil {
		t.Error("LoadKeyring(garbage) succeeded")
	}
	if _, err := LoadKeyring(filepath.Join(dir, "missing")); err == nil {
		t.Error("LoadKeyring(missing) succeeded")
	}
	if _, err := NewVerifier(bad); err == nil {
		t.Error("NewVerifier(garbage) succeeded")
	}

	if !keyringExists(keyring) || keyringExists(filepath.Join(dir, "missing")) || keyringExists(dir) {
		t.Error("keyringExists() wrong")
	}
}

func TestVerifier_VerifyChecksum(t *testing.T) {
	dir := t.TempDir()
	data := []byte("archive")
	file := filepath.Join(dir, "modtool-linux-amd64.tar.gz")
	os.WriteFile(file, data, 0644)
	digest := digestOf(data)

	tests := []struct {
		name    string
		sums    string
		wantErr string
	}{
		{"match", digest + "  modtool-linux-amd64.tar.gz\n", ""},
		{"binary mode and upper case", strings.ToUpper(digest) + " *modtool-linux-amd64.tar.gz\n", ""},
		{"path prefix", digest + "  dist/modtool-linux-amd64.tar.gz\n", ""},
		{"mismatch", strings.Repeat("0", 64) + "  modtool-linux-amd64.tar.gz\n", "checksum mismatch"},
		{"missing entry", digest + "  other.tar.gz\n\nmalformed\n", "checksum not found"},
	}

	v, _ := NewVerifier("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sums := filepath.Join(t.TempDir(), "checksums.txt")
			os.WriteFile(sums, []byte(tt.sums), 0644)

			err := v.VerifyChecksum(file, sums)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("VerifyChecksum() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("VerifyChecksum() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestFileDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	os.WriteFile(path, []byte("hello"), 0644)

	got, err := FileDigest(path)
	if err != nil {
		t.Fatalf("FileDigest() error = %v", err)
	}
	if want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"; got != want {
		t.Errorf("FileDigest() = %s, want %s", got, want)
	}

	if _, err := FileDigest(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("FileDigest(missing) succeeded")
	}
}

func TestVerificationMethodString(t *testing.T) {
	tests := map[VerificationMethod]string{
		VerificationNone:       "None",
		VerificationGPG:        "GPG",
		VerificationSHA256:     "SHA256",
		VerificationMethod(99): "Unknown",
	}
	for m, want := range tests {
		if got := m.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
