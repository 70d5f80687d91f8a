// Package charset decodes the byte stream of a supervised child process into
// text, incrementally, under a charset that can be switched at any time.
//
// # Accumulator
//
// Every byte handed to a Decoder, whether it came from the process or was
// typed by the operator and encoded with Encode, is kept in an append-only
// accumulator. Switching the charset re-decodes the whole accumulator, so the
// displayed text always equals the accumulator decoded with the active
// charset and switching back and forth is lossless.
//
// # Incremental decoding
//
// Feed keeps one transformer alive between calls. A multi-byte sequence that
// is cut by a chunk boundary is left pending and completed by the next Feed;
// no replacement character is emitted for it. Finish flushes the pending tail
// at end of stream, where an incomplete sequence becomes U+FFFD. Malformed
// input is always substituted, never dropped.
//
// A Decoder is not safe for concurrent use. The session package owns exactly
// one per session and only touches it from its dispatcher goroutine.
package charset
