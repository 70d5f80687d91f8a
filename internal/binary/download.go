package binary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"github.com/tidwall/gjson"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is the default number of retries after a failed attempt
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "toolkeeper/1.0"

	// maxMetadataSize caps the release metadata document.
	maxMetadataSize = 8 << 20
	copyBufferSize  = 32 << 10
)

// ProgressFunc receives the bytes transferred so far and the expected total
// (0 when unknown). Returning false cancels the transfer.
type ProgressFunc func(done, total int64) bool

// Release is the parsed release metadata.
type Release struct {
	Tag    string
	Assets []ReleaseAsset
}

// signature and checksum files never count as the tool asset
var auxiliarySuffixes = []string{".sig", ".asc", ".sha256", ".sha256sum", ".txt", ".pem", ".sbom"}

func isAuxiliary(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range auxiliarySuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// AssetFor returns the first non-auxiliary asset whose name contains tag.
func (r *Release) AssetFor(tag string) (*ReleaseAsset, error) {
	tag = strings.ToLower(tag)
	for i := range r.Assets {
		a := &r.Assets[i]
		if isAuxiliary(a.Name) {
			continue
		}
		if strings.Contains(strings.ToLower(a.Name), tag) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoAsset, tag)
}

// SignatureFor returns the detached signature asset of name, if published.
func (r *Release) SignatureFor(name string) *ReleaseAsset {
	for _, suffix := range []string{".sig", ".asc"} {
		for i := range r.Assets {
			if r.Assets[i].Name == name+suffix {
				return &r.Assets[i]
			}
		}
	}
	return nil
}

// ChecksumsAsset returns the release checksum list, if published.
func (r *Release) ChecksumsAsset() *ReleaseAsset {
	for i := range r.Assets {
		switch strings.ToLower(r.Assets[i].Name) {
		case "checksums.txt", "sha256sums", "sha256sums.txt":
			return &r.Assets[i]
		}
	}
	return nil
}

// DownloaderConfig configures a Downloader.
type DownloaderConfig struct {
	// APIURL is the release metadata endpoint.
	APIURL string
	// Client defaults to a client with DefaultTimeout.
	Client    *http.Client
	UserAgent string
	Logger    logging.Logger
}

// Downloader handles release metadata and HTTP downloads with retry logic.
type Downloader struct {
	apiURL    string
	client    *http.Client
	userAgent string
	retries   int
	backoff   time.Duration
	logger    logging.Logger
}

// NewDownloader creates a new downloader.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				if err := checkScheme(req.URL.String()); err != nil {
					return err
				}
				return nil
			},
		}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Downloader{
		apiURL:    cfg.APIURL,
		client:    client,
		userAgent: ua,
		retries:   DefaultRetries,
		backoff:   time.Second,
		logger:    logging.OrNop(cfg.Logger),
	}
}

// checkScheme accepts only http and https URLs.
func checkScheme(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

// retry runs fn until it succeeds, the context ends, fn reports a permanent
// error, or the retries are exhausted. Backoff doubles: 1s, 2s, 4s.
func (d *Downloader) retry(ctx context.Context, what string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			backoff := d.backoff * time.Duration(1<<uint(attempt-1))
			d.logger.Debug("retrying", "what", what, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
	}

	return fmt.Errorf("%s failed after %d retries: %w", what, d.retries, lastErr)
}

// permanentError stops the retry loop.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func permanent(err error) error {
	return &permanentError{err: err}
}

// FetchRelease reads the release metadata.
func (d *Downloader) FetchRelease(ctx context.Context) (*Release, error) {
	if err := checkScheme(d.apiURL); err != nil {
		return nil, &DownloadError{URL: d.apiURL, Err: err}
	}

	var body []byte
	err := d.retry(ctx, "fetch release metadata", func() error {
		var err error
		body, err = d.get(ctx, d.apiURL)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &DownloadError{URL: d.apiURL, Err: err}
	}

	rel, err := parseRelease(body)
	if err != nil {
		return nil, &DownloadError{URL: d.apiURL, Err: err}
	}
	d.logger.Debug("release metadata", "tag", rel.Tag, "assets", len(rel.Assets))
	return rel, nil
}

// FetchLatestAsset returns the release asset for platformTag.
func (d *Downloader) FetchLatestAsset(ctx context.Context, platformTag string) (*ReleaseAsset, error) {
	rel, err := d.FetchRelease(ctx)
	if err != nil {
		return nil, err
	}
	return rel.AssetFor(platformTag)
}

func (d *Downloader) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxMetadataSize {
		return nil, permanent(fmt.Errorf("release metadata exceeds %d bytes", maxMetadataSize))
	}
	return body, nil
}

// parseRelease reads {tag_name, assets: [{name, size, download_url | browser_download_url}]}.
// Assets with a missing name or a non-http(s) URL are skipped.
func parseRelease(body []byte) (*Release, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("release metadata is not valid JSON")
	}
	doc := gjson.ParseBytes(body)

	assets := doc.Get("assets")
	if !assets.IsArray() {
		return nil, fmt.Errorf("release metadata has no assets list")
	}

	rel := &Release{Tag: doc.Get("tag_name").String()}
	assets.ForEach(func(_, a gjson.Result) bool {
		name := a.Get("name").String()
		link := a.Get("download_url").String()
		if link == "" {
			link = a.Get("browser_download_url").String()
		}
		if name == "" || checkScheme(link) != nil {
			return true
		}
		rel.Assets = append(rel.Assets, ReleaseAsset{
			Name: name,
			Size: a.Get("size").Int(),
			URL:  link,
		})
		return true
	})
	return rel, nil
}

// Download streams asset into destDir and returns the final path.
//
// Data is written to "<name>.part" and renamed once complete. onProgress is
// called after every chunk; returning false removes the partial file and
// returns ErrUserCancelled. The final name never exists after a failed or
// cancelled transfer.
func (d *Downloader) Download(ctx context.Context, asset *ReleaseAsset, destDir string, onProgress ProgressFunc) (string, error) {
	if asset == nil {
		return "", fmt.Errorf("release asset is nil")
	}
	if err := checkScheme(asset.URL); err != nil {
		return "", &DownloadError{URL: asset.URL, Err: err}
	}

	name := filepath.Base(asset.Name)
	if name != asset.Name || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", &DownloadError{URL: asset.URL, Err: fmt.Errorf("illegal asset name %q", asset.Name)}
	}
	destPath := filepath.Join(destDir, name)

	err := d.retry(ctx, "download "+name, func() error {
		return d.downloadOnce(ctx, asset, destPath, onProgress)
	})
	switch {
	case err == nil:
		return destPath, nil
	case errors.Is(err, ErrUserCancelled), ctx.Err() != nil:
		return "", err
	default:
		return "", &DownloadError{URL: asset.URL, Err: err}
	}
}

// DownloadToFile downloads rawURL to destPath without progress reporting.
func (d *Downloader) DownloadToFile(ctx context.Context, rawURL, destPath string) error {
	if err := checkScheme(rawURL); err != nil {
		return &DownloadError{URL: rawURL, Err: err}
	}
	asset := &ReleaseAsset{Name: filepath.Base(destPath), URL: rawURL}
	err := d.retry(ctx, "download "+asset.Name, func() error {
		return d.downloadOnce(ctx, asset, destPath, nil)
	})
	if err != nil && ctx.Err() == nil {
		return &DownloadError{URL: rawURL, Err: err}
	}
	return err
}

// downloadOnce performs a single download attempt
func (d *Downloader) downloadOnce(ctx context.Context, asset *ReleaseAsset, destPath string, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return permanent(err)
		}
		return err
	}

	total := resp.ContentLength
	if total < 0 {
		total = asset.Size
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return permanent(fmt.Errorf("create dest dir: %w", err))
	}

	tmpPath := destPath + ".part"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return permanent(fmt.Errorf("create temp file: %w", err))
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	buf := make([]byte, copyBufferSize)
	var done int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				return permanent(fmt.Errorf("write temp file: %w", err))
			}
			done += int64(n)
			if onProgress != nil && !onProgress(done, total) {
				return permanent(ErrUserCancelled)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read response body: %w", rerr)
		}
	}

	if asset.Size > 0 && done != asset.Size {
		return fmt.Errorf("size mismatch: got %d bytes, want %d", done, asset.Size)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return permanent(fmt.Errorf("rename temp file: %w", err))
	}

	cleanupNeeded = false
	d.logger.Debug("download complete", "path", destPath, "bytes", done)
	return nil
}
