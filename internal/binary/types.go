package binary

import (
	"fmt"
)

// Provenance records where a candidate came from.
type Provenance int

const (
	// ProvenanceSystem is a tool found in a well-known directory or on PATH.
	ProvenanceSystem Provenance = iota
	// ProvenanceConfiguredOverride is a path taken from the configuration.
	ProvenanceConfiguredOverride
	// ProvenanceDownloaded is a tool installed by toolkeeper.
	ProvenanceDownloaded
	// ProvenanceManuallyChosen is a path the user picked interactively.
	ProvenanceManuallyChosen
	// ProvenanceUnverified is a tool accepted despite an unknown digest.
	ProvenanceUnverified
)

// String returns the string representation of the provenance.
func (p Provenance) String() string {
	switch p {
	case ProvenanceSystem:
		return "system"
	case ProvenanceConfiguredOverride:
		return "configured"
	case ProvenanceDownloaded:
		return "downloaded"
	case ProvenanceManuallyChosen:
		return "manual"
	case ProvenanceUnverified:
		return "unverified"
	default:
		return "unknown"
	}
}

// Version is a major.minor tool version.
type Version struct {
	Major int
	Minor int
}

// Number returns the whitelist key for v, e.g. 246 for 2.46.
func (v Version) Number() int {
	return v.Major*100 + v.Minor
}

// IsZero reports whether v is unset.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

// Less reports whether v is older than o.
func (v Version) Less(o Version) bool {
	return v.Number() < o.Number()
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%02d", v.Major, v.Minor)
}

// VersionFromNumber is the inverse of Version.Number.
func VersionFromNumber(n int) Version {
	return Version{Major: n / 100, Minor: n % 100}
}

// Thresholds gate the accepted tool versions.
type Thresholds struct {
	// Minimum is the oldest version that works at all.
	Minimum Version
	// Recommended is the oldest version that works without known problems.
	Recommended Version
}

// DefaultThresholds are the version gates for the supervised tool.
var DefaultThresholds = Thresholds{
	Minimum:     Version{Major: 2, Minor: 40},
	Recommended: Version{Major: 2, Minor: 46},
}

// Candidate is a located, digested and versioned tool executable.
type Candidate struct {
	Path       string
	Digest     string // lowercase hex SHA-256 of the file
	Version    Version
	Provenance Provenance
}

func (c *Candidate) String() string {
	return fmt.Sprintf("%s (version %s, %s, sha256 %s)", c.Path, c.Version, c.Provenance, c.Digest)
}

// Override is an explicit path to try before searching.
type Override struct {
	Path string
	// Provenance is ProvenanceConfiguredOverride when left zero-valued.
	Provenance Provenance
}

// ReleaseAsset is one downloadable file of a release.
type ReleaseAsset struct {
	Name string
	Size int64
	URL  string
}
