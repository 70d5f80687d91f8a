package binary

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// VerificationMethod indicates how a download was verified.
type VerificationMethod int

const (
	VerificationNone VerificationMethod = iota
	VerificationGPG
	VerificationSHA256
)

// String returns the string representation of the verification method.
func (v VerificationMethod) String() string {
	switch v {
	case VerificationGPG:
		return "GPG"
	case VerificationSHA256:
		return "SHA256"
	case VerificationNone:
		return "None"
	default:
		return "Unknown"
	}
}

// Verifier checks downloaded release assets.
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier creates a verifier. keyringPath may be empty, in which case
// signatures cannot be checked.
func NewVerifier(keyringPath string) (*Verifier, error) {
	v := &Verifier{}
	if keyringPath == "" {
		return v, nil
	}
	keyring, err := LoadKeyring(keyringPath)
	if err != nil {
		return nil, err
	}
	v.keyring = keyring
	return v, nil
}

// CanVerifySignatures reports whether a keyring is loaded.
func (v *Verifier) CanVerifySignatures() bool {
	return len(v.keyring) > 0
}

// VerifySignature checks a detached OpenPGP signature, armored or binary,
// over the file at path.
func (v *Verifier) VerifySignature(path, signaturePath string) error {
	if !v.CanVerifySignatures() {
		return fmt.Errorf("no keyring configured")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sig, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sig.Close()

	_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, f, sig, nil)
	if err != nil {
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("rewind file: %w", serr)
		}
		if _, serr := sig.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("rewind signature: %w", serr)
		}
		_, err = openpgp.CheckDetachedSignature(v.keyring, f, sig, nil)
	}
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// VerifyChecksum checks path against its line in a sha256sum-style file.
func (v *Verifier) VerifyChecksum(path, checksumPath string) error {
	actual, err := FileDigest(path)
	if err != nil {
		return fmt.Errorf("calculate checksum: %w", err)
	}

	expected, err := findChecksum(checksumPath, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("find checksum: %w", err)
	}

	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch:\nactual:   %s\nexpected: %s", actual, expected)
	}
	return nil
}

// FileDigest returns the lowercase hex SHA-256 of a file.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// findChecksum finds the checksum for filename.
// Format: "abc123def456  filename.tar.gz", optionally "*filename" (binary mode).
func findChecksum(checksumPath, filename string) (string, error) {
	file, err := os.Open(checksumPath)
	if err != nil {
		return "", fmt.Errorf("open checksum file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}

		name := strings.TrimPrefix(parts[1], "*")
		if name == filename || filepath.Base(name) == filename {
			return parts[0], nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum file: %w", err)
	}

	return "", fmt.Errorf("checksum not found for %s", filename)
}
