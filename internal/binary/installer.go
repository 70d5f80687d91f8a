package binary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/platform"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/transaction"
)

// InstallerConfig holds configuration for the installer.
type InstallerConfig struct {
	// Name is the tool executable name without platform suffix.
	Name string
	// DataDir holds bin/, downloads/, journal/ and the install lock.
	DataDir string
	// Platform selects the release asset. Required.
	Platform *platform.Info
	// Downloader fetches the release. Required.
	Downloader *Downloader
	// KeyringPath enables OpenPGP verification of published signatures.
	KeyringPath string
	// RequireSignature fails installs whose asset has no signature.
	RequireSignature bool

	Logger logging.Logger
}

// Installer orchestrates download, verification, extraction and placement
// of the tool into the managed bin directory.
type Installer struct {
	name             string
	dataDir          string
	binDir           string
	cacheDir         string
	journalDir       string
	platformInfo     *platform.Info
	downloader       *Downloader
	verifier         *Verifier
	extractor        *Extractor
	requireSignature bool
	logger           logging.Logger
}

// NewInstaller creates an installer.
func NewInstaller(cfg InstallerConfig) (*Installer, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("DataDir is required")
	}
	if cfg.Platform == nil {
		return nil, fmt.Errorf("PlatformInfo is required")
	}
	if cfg.Downloader == nil {
		return nil, fmt.Errorf("Downloader is required")
	}
	if cfg.KeyringPath != "" && !keyringExists(cfg.KeyringPath) {
		return nil, fmt.Errorf("keyring %s does not exist or is empty", cfg.KeyringPath)
	}
	if cfg.RequireSignature && cfg.KeyringPath == "" {
		return nil, fmt.Errorf("signature required but no keyring configured")
	}

	verifier, err := NewVerifier(cfg.KeyringPath)
	if err != nil {
		return nil, fmt.Errorf("load keyring: %w", err)
	}

	return &Installer{
		name:             cfg.Name,
		dataDir:          cfg.DataDir,
		binDir:           BinDir(cfg.DataDir),
		cacheDir:         filepath.Join(cfg.DataDir, "downloads"),
		journalDir:       JournalDir(cfg.DataDir),
		platformInfo:     cfg.Platform,
		downloader:       cfg.Downloader,
		verifier:         verifier,
		extractor:        NewExtractor(),
		requireSignature: cfg.RequireSignature,
		logger:           logging.OrNop(cfg.Logger),
	}, nil
}

// BinDir returns the managed install directory under dataDir.
func BinDir(dataDir string) string {
	return filepath.Join(dataDir, "bin")
}

// JournalDir returns the install journal directory under dataDir.
func JournalDir(dataDir string) string {
	return filepath.Join(dataDir, "journal")
}

// BinDir returns the managed install directory.
func (i *Installer) BinDir() string {
	return i.binDir
}

// BinaryPath returns the path the tool is installed to.
func (i *Installer) BinaryPath() string {
	return filepath.Join(i.binDir, i.platformInfo.ExecutableName(i.name))
}

// IsInstalled checks if the tool is already installed and executable.
func (i *Installer) IsInstalled() bool {
	return isExecutableFile(i.BinaryPath())
}

// digestInstalled is replaced in tests.
var digestInstalled = FileDigest

// Install downloads the latest release for the platform and installs it.
// It returns the installed path. Progress cancellation surfaces as
// ErrUserCancelled; every other failure is a *DownloadError or wraps one.
func (i *Installer) Install(ctx context.Context, onProgress ProgressFunc) (string, error) {
	lock, err := transaction.AcquireLock(ctx, i.dataDir)
	if err != nil {
		return "", fmt.Errorf("acquire install lock: %w", err)
	}
	defer lock.Release()

	rel, err := i.downloader.FetchRelease(ctx)
	if err != nil {
		return "", err
	}

	tag := i.platformInfo.AssetTag()
	asset, err := rel.AssetFor(tag)
	if err != nil {
		return "", &DownloadError{URL: i.downloader.apiURL, Err: err}
	}

	txn := transaction.New(asset.Name, asset.URL)
	txn.State = transaction.StateInProgress
	i.saveTxn(txn)

	path, signed, err := i.install(ctx, rel, asset, onProgress)
	if err != nil {
		txn.Fail(err)
		i.saveTxn(txn)
		return "", err
	}

	digest, err := digestInstalled(path)
	if err != nil {
		err = &DownloadError{URL: asset.URL, Err: fmt.Errorf("digest installed binary: %w", err)}
		txn.Fail(err)
		i.saveTxn(txn)
		return "", err
	}
	txn.Complete(path, digest, signed)
	i.saveTxn(txn)

	i.logger.Info("tool installed", "path", path, "asset", asset.Name, "release", rel.Tag, "signed", signed)
	return path, nil
}

func (i *Installer) install(ctx context.Context, rel *Release, asset *ReleaseAsset, onProgress ProgressFunc) (string, bool, error) {
	archive, err := i.downloader.Download(ctx, asset, i.cacheDir, onProgress)
	if err != nil {
		return "", false, err
	}
	// A new download is made every time; nothing is resumed from the cache.
	defer os.Remove(archive)

	signed, err := i.verify(ctx, rel, asset, archive)
	if err != nil {
		return "", false, &DownloadError{URL: asset.URL, Err: err}
	}

	if err := os.MkdirAll(i.binDir, 0755); err != nil {
		return "", false, fmt.Errorf("create bin dir: %w", err)
	}

	dest := i.BinaryPath()
	staged := dest + ".new"
	exe := filepath.Base(dest)
	if err := i.extractor.ExtractBinary(archive, staged, exe); err != nil {
		os.Remove(staged)
		return "", false, &DownloadError{URL: asset.URL, Err: fmt.Errorf("extract binary: %w", err)}
	}
	if err := SetExecutable(staged); err != nil {
		os.Remove(staged)
		return "", false, err
	}
	if runtime.GOOS == "windows" {
		// Rename does not replace an existing file there.
		os.Remove(dest)
	}
	if err := os.Rename(staged, dest); err != nil {
		os.Remove(staged)
		return "", false, fmt.Errorf("place binary: %w", err)
	}

	return dest, signed, nil
}

// verify checks the published signature and checksum list of asset, when
// present. It reports whether a signature was verified.
func (i *Installer) verify(ctx context.Context, rel *Release, asset *ReleaseAsset, archive string) (bool, error) {
	signed := false

	if i.verifier.CanVerifySignatures() {
		sig := rel.SignatureFor(asset.Name)
		switch {
		case sig != nil:
			sigPath := archive + filepath.Ext(sig.Name)
			if err := i.downloader.DownloadToFile(ctx, sig.URL, sigPath); err != nil {
				return false, fmt.Errorf("download signature: %w", err)
			}
			defer os.Remove(sigPath)
			if err := i.verifier.VerifySignature(archive, sigPath); err != nil {
				return false, err
			}
			signed = true
		case i.requireSignature:
			return false, fmt.Errorf("release publishes no signature for %s", asset.Name)
		default:
			i.logger.Warn("release publishes no signature", "asset", asset.Name)
		}
	}

	if sums := rel.ChecksumsAsset(); sums != nil {
		sumsPath := filepath.Join(filepath.Dir(archive), sums.Name)
		if err := i.downloader.DownloadToFile(ctx, sums.URL, sumsPath); err != nil {
			return false, fmt.Errorf("download checksums: %w", err)
		}
		defer os.Remove(sumsPath)
		if err := i.verifier.VerifyChecksum(archive, sumsPath); err != nil {
			return false, err
		}
	}

	return signed, nil
}

func (i *Installer) saveTxn(txn *transaction.InstallTxn) {
	if err := txn.Save(i.journalDir); err != nil {
		i.logger.Warn("write install journal", "id", txn.ID, "error", err)
	}
}

// LastInstall returns the newest completed install record, or nil.
func (i *Installer) LastInstall() (*transaction.InstallTxn, error) {
	return transaction.LastCompleted(i.journalDir)
}
