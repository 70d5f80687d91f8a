package binary

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/platform"
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Name is the tool executable name without platform suffix.
	Name string
	// Platform selects the executable suffix. Nil uses the running OS.
	Platform *platform.Info
	// BinDir is the managed install directory.
	BinDir string
	// SearchDirs replaces the platform well-known directories when non-nil.
	SearchDirs []string
	// SearchPath also searches the PATH environment variable.
	SearchPath bool

	// Whitelist defaults to DefaultWhitelist.
	Whitelist *Whitelist
	// Thresholds defaults to DefaultThresholds.
	Thresholds *Thresholds
	// Trust may be nil, in which case nothing outside the whitelist is trusted.
	Trust *Trust
	// Prober defaults to ExecProber.
	Prober Prober

	Logger logging.Logger
}

// Resolver locates the tool executable and validates it.
type Resolver struct {
	name       string
	exe        string
	binDir     string
	searchDirs []string
	searchPath bool
	whitelist  *Whitelist
	thresholds Thresholds
	trust      *Trust
	prober     Prober
	logger     logging.Logger
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}

	info := cfg.Platform
	if info == nil {
		info = &platform.Info{OS: runtime.GOOS}
	}

	wl := cfg.Whitelist
	if wl == nil {
		var err error
		if wl, err = DefaultWhitelist(); err != nil {
			return nil, err
		}
	}

	thresholds := DefaultThresholds
	if cfg.Thresholds != nil {
		thresholds = *cfg.Thresholds
	}
	if thresholds.Recommended.Less(thresholds.Minimum) {
		return nil, fmt.Errorf("recommended version %s is older than minimum %s",
			thresholds.Recommended, thresholds.Minimum)
	}

	dirs := cfg.SearchDirs
	if dirs == nil {
		dirs = WellKnownDirs(info.OS, cfg.Name, nil)
	}

	prober := cfg.Prober
	if prober == nil {
		prober = ExecProber{}
	}

	return &Resolver{
		name:       cfg.Name,
		exe:        info.ExecutableName(cfg.Name),
		binDir:     cfg.BinDir,
		searchDirs: dirs,
		searchPath: cfg.SearchPath,
		whitelist:  wl,
		thresholds: thresholds,
		trust:      cfg.Trust,
		prober:     prober,
		logger:     logging.OrNop(cfg.Logger),
	}, nil
}

// Trust returns the trust store consulted for digests outside the whitelist.
func (r *Resolver) Trust() *Trust {
	return r.trust
}

// Thresholds returns the version gates in effect.
func (r *Resolver) Thresholds() Thresholds {
	return r.thresholds
}

// ExecutableName returns the platform file name of the tool.
func (r *Resolver) ExecutableName() string {
	return r.exe
}

// Resolve finds and validates the tool.
//
// It returns ErrNotFound (as *NotFoundError), *NotAllowedError,
// *UnsupportedError or *OutdatedError. An *OutdatedError still carries a
// usable candidate.
func (r *Resolver) Resolve(ctx context.Context, o Override) (*Candidate, error) {
	path, prov, searched := r.locate(o)
	if path == "" {
		r.logger.Debug("tool not found", "searched", searched)
		return nil, &NotFoundError{Searched: searched}
	}
	return r.Validate(ctx, path, prov)
}

// locate returns the first executable candidate in search order.
func (r *Resolver) locate(o Override) (string, Provenance, []string) {
	var searched []string

	if o.Path != "" {
		searched = append(searched, o.Path)
		if isExecutableFile(o.Path) {
			prov := o.Provenance
			if prov == ProvenanceSystem {
				prov = ProvenanceConfiguredOverride
			}
			return o.Path, prov, searched
		}
		r.logger.Debug("override path is not an executable file", "path", o.Path)
	}

	if r.binDir != "" {
		p := filepath.Join(r.binDir, r.exe)
		searched = append(searched, p)
		if isExecutableFile(p) {
			return p, ProvenanceDownloaded, searched
		}
	}

	for _, dir := range r.searchDirs {
		p := filepath.Join(dir, r.exe)
		searched = append(searched, p)
		if isExecutableFile(p) {
			return p, ProvenanceSystem, searched
		}
	}

	if r.searchPath {
		searched = append(searched, "$PATH")
		if p, err := exec.LookPath(r.exe); err == nil {
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
			return p, ProvenanceSystem, searched
		}
	}

	return "", 0, searched
}

// Validate checks the executable at path. The digest is checked before the
// tool is run, so a file that is neither whitelisted nor trusted is never
// executed.
func (r *Resolver) Validate(ctx context.Context, path string, prov Provenance) (*Candidate, error) {
	digest, err := FileDigest(path)
	if err != nil {
		return nil, fmt.Errorf("digest %s: %w", path, err)
	}

	c := &Candidate{Path: path, Digest: digest, Provenance: prov}

	listed, whitelisted := r.whitelist.Lookup(digest)
	if !whitelisted {
		if !r.trust.Allows(digest) {
			r.logger.Info("tool digest not whitelisted", "path", path, "digest", digest)
			return nil, &NotAllowedError{Candidate: c}
		}
		c.Provenance = ProvenanceUnverified
	}

	v, err := r.prober.Probe(ctx, path)
	switch {
	case err == nil:
		c.Version = v
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case whitelisted:
		r.logger.Warn("version query failed, using whitelisted version", "path", path, "version", listed, "error", err)
		c.Version = listed
	default:
		return nil, &UnsupportedError{Candidate: c, Required: r.thresholds.Minimum, Err: err}
	}

	// A build whitelisted for the version it reports is always valid.
	if whitelisted && r.whitelist.Contains(c.Version, digest) {
		r.logger.Debug("tool resolved", "path", path, "version", c.Version, "provenance", c.Provenance)
		return c, nil
	}

	if c.Version.Less(r.thresholds.Minimum) {
		return nil, &UnsupportedError{Candidate: c, Required: r.thresholds.Minimum}
	}
	if c.Version.Less(r.thresholds.Recommended) {
		return nil, &OutdatedError{Candidate: c, Recommended: r.thresholds.Recommended}
	}

	r.logger.Debug("tool resolved", "path", path, "version", c.Version, "provenance", c.Provenance)
	return c, nil
}

// CandidateOf returns the candidate carried by a resolution error, if any.
func CandidateOf(err error) *Candidate {
	var notAllowed *NotAllowedError
	var unsupported *UnsupportedError
	var outdated *OutdatedError
	switch {
	case errors.As(err, &notAllowed):
		return notAllowed.Candidate
	case errors.As(err, &unsupported):
		return unsupported.Candidate
	case errors.As(err, &outdated):
		return outdated.Candidate
	}
	return nil
}
