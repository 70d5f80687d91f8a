// Package binary locates, validates and installs the external tool that
// toolkeeper supervises.
//
// # Resolution
//
// A Resolver searches, in order: the configured override path, the managed
// install directory, the platform's well-known install directories and PATH.
// The first existing executable file is the candidate.
//
// The candidate's SHA-256 digest is checked against the embedded whitelist
// before the tool is ever executed. A digest that is not whitelisted yields a
// *NotAllowedError unless the user granted a Trust override, in which case the
// candidate continues with provenance Unverified. Only then is the tool run
// with --version and the reported version compared against the minimum and
// recommended thresholds (*UnsupportedError, *OutdatedError).
//
// # Acquisition
//
// A Downloader reads release metadata from a JSON API, picks the asset for
// the current platform and streams it to disk with a progress callback that
// can cancel the transfer. An Installer wraps this with the install lock,
// optional OpenPGP signature verification, archive extraction and the
// install journal.
//
// # Architecture
//
//   - Resolver: search and validation
//   - Whitelist, Trust: digest policy
//   - Prober: version query
//   - Downloader: release metadata and HTTP transfer with retries
//   - Verifier: digest and OpenPGP signature checks
//   - Extractor: tar.gz and zip extraction
//   - Installer: lock, download, verify, extract, journal
package binary
