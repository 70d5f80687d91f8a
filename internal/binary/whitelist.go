package binary

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

//go:embed whitelist.toml
var whitelistTOML []byte

// Whitelist maps tool versions to the digests of their trusted builds.
// It is read-only after construction.
type Whitelist struct {
	byVersion map[int]map[string]struct{}
	byDigest  map[string]int
}

type whitelistFile struct {
	Versions map[string][]string `toml:"versions"`
}

// ParseWhitelist parses a TOML whitelist:
//
//	[versions]
//	"246" = ["<sha256 hex>", ...]
func ParseWhitelist(data []byte) (*Whitelist, error) {
	var f whitelistFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse whitelist: %w", err)
	}

	w := &Whitelist{
		byVersion: make(map[int]map[string]struct{}, len(f.Versions)),
		byDigest:  make(map[string]int),
	}
	for key, digests := range f.Versions {
		n, err := strconv.Atoi(key)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("parse whitelist: invalid version key %q", key)
		}
		set := make(map[string]struct{}, len(digests))
		for _, d := range digests {
			d = strings.ToLower(strings.TrimSpace(d))
			if !isHexDigest(d) {
				return nil, fmt.Errorf("parse whitelist: version %s: invalid digest %q", key, d)
			}
			set[d] = struct{}{}
			if prev, ok := w.byDigest[d]; !ok || n > prev {
				w.byDigest[d] = n
			}
		}
		w.byVersion[n] = set
	}
	return w, nil
}

var (
	defaultWhitelist     *Whitelist
	defaultWhitelistErr  error
	defaultWhitelistOnce sync.Once
)

// DefaultWhitelist returns the whitelist bundled with toolkeeper.
func DefaultWhitelist() (*Whitelist, error) {
	defaultWhitelistOnce.Do(func() {
		defaultWhitelist, defaultWhitelistErr = ParseWhitelist(whitelistTOML)
	})
	return defaultWhitelist, defaultWhitelistErr
}

// Lookup returns the version a digest is whitelisted for.
func (w *Whitelist) Lookup(digest string) (Version, bool) {
	if w == nil {
		return Version{}, false
	}
	n, ok := w.byDigest[strings.ToLower(digest)]
	if !ok {
		return Version{}, false
	}
	return VersionFromNumber(n), true
}

// Contains reports whether digest is whitelisted for version v.
func (w *Whitelist) Contains(v Version, digest string) bool {
	if w == nil {
		return false
	}
	_, ok := w.byVersion[v.Number()][strings.ToLower(digest)]
	return ok
}

// Versions returns the whitelisted versions, oldest first.
func (w *Whitelist) Versions() []Version {
	if w == nil {
		return nil
	}
	nums := make([]int, 0, len(w.byVersion))
	for n := range w.byVersion {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	versions := make([]Version, len(nums))
	for i, n := range nums {
		versions[i] = VersionFromNumber(n)
	}
	return versions
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
