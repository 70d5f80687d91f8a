package charset

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const replacement = "\uFFFD"

// Decoder is the decode state of one session: the active charset, the byte
// accumulator and the text decoded from it so far.
type Decoder struct {
	name string
	enc  encoding.Encoding
	dec  transform.Transformer

	acc  []byte
	off  int // acc[:off] has been consumed by dec
	text strings.Builder
	last string

	finished      bool
	substitutions int

	logger logging.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for substitution reports.
func WithLogger(l logging.Logger) Option {
	return func(d *Decoder) {
		d.logger = logging.OrNop(l)
	}
}

// New creates a Decoder for the named charset.
func New(name string, opts ...Option) (*Decoder, error) {
	enc, canonical, err := Lookup(name)
	if err != nil {
		return nil, err
	}

	d := &Decoder{
		name:   canonical,
		enc:    enc,
		dec:    enc.NewDecoder(),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Charset returns the canonical name of the active charset.
func (d *Decoder) Charset() string {
	return d.name
}

// Feed appends b to the accumulator and returns the newly decoded text.
// Trailing bytes of an unfinished multi-byte sequence are held back until
// more bytes arrive.
func (d *Decoder) Feed(b []byte) string {
	d.acc = append(d.acc, b...)
	if d.finished {
		// Stream was flushed already; anything new is decoded as terminal.
		return d.advance(true)
	}
	return d.advance(false)
}

// Finish decodes whatever is still pending as end of stream. An incomplete
// trailing sequence is replaced with U+FFFD.
func (d *Decoder) Finish() string {
	d.finished = true
	return d.advance(true)
}

// SetCharset switches to name, re-decodes the whole accumulator and returns
// the complete text. Increment tracking starts over.
func (d *Decoder) SetCharset(name string) (string, error) {
	enc, canonical, err := Lookup(name)
	if err != nil {
		return "", err
	}

	d.name = canonical
	d.enc = enc
	d.dec = enc.NewDecoder()
	d.off = 0
	d.last = ""
	d.text.Reset()

	full, n := decode(d.dec, d.acc, d.finished)
	d.off = n
	d.text.WriteString(full)
	d.report(full)

	return full, nil
}

// Encode converts text to bytes in the active charset. The bytes are folded
// into the accumulator, so a later SetCharset re-decodes operator input along
// with process output. The echoed text is available from Last.
func (d *Decoder) Encode(text string) ([]byte, error) {
	text = strings.ToValidUTF8(text, replacement)

	out, err := encoding.ReplaceUnsupported(d.enc.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode as %s: %w", d.name, err)
	}

	d.Feed(out)
	return out, nil
}

// Reset clears the accumulator and all decoded text. The charset is kept.
func (d *Decoder) Reset() {
	d.acc = nil
	d.off = 0
	d.text.Reset()
	d.last = ""
	d.finished = false
	d.substitutions = 0
	d.dec = d.enc.NewDecoder()
}

// Text returns everything decoded so far.
func (d *Decoder) Text() string {
	return d.text.String()
}

// Last returns the increment produced by the most recent Feed, Encode or Finish.
func (d *Decoder) Last() string {
	return d.last
}

// Bytes returns a copy of the accumulator.
func (d *Decoder) Bytes() []byte {
	out := make([]byte, len(d.acc))
	copy(out, d.acc)
	return out
}

// Pending returns how many accumulated bytes are not decoded yet.
func (d *Decoder) Pending() int {
	return len(d.acc) - d.off
}

// Substitutions returns the number of replacement characters emitted since
// the last Reset.
func (d *Decoder) Substitutions() int {
	return d.substitutions
}

func (d *Decoder) advance(atEOF bool) string {
	out, n := decode(d.dec, d.acc[d.off:], atEOF)
	d.off += n
	d.text.WriteString(out)
	d.last = out
	d.report(out)
	return out
}

func (d *Decoder) report(out string) {
	n := strings.Count(out, replacement)
	if n == 0 {
		return
	}
	d.substitutions += n
	d.logger.Debug("decode substitution", "charset", d.name, "count", n)
}

// decode runs t over src. It returns the decoded text and how many bytes of
// src were consumed; with atEOF false an incomplete tail is left unconsumed.
func decode(t transform.Transformer, src []byte, atEOF bool) (string, int) {
	var out strings.Builder
	buf := make([]byte, 4*len(src)+utf8.UTFMax)
	pos := 0

	for {
		nDst, nSrc, err := t.Transform(buf, src[pos:], atEOF)
		out.Write(buf[:nDst])
		pos += nSrc

		switch {
		case err == nil:
			return out.String(), pos
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				buf = make([]byte, 2*len(buf))
			}
		case errors.Is(err, transform.ErrShortSrc):
			if !atEOF {
				return out.String(), pos
			}
			// A transformer that still wants input at EOF gets a substitution.
			out.WriteString(replacement)
			return out.String(), len(src)
		default:
			out.WriteString(replacement)
			pos++
			if pos >= len(src) {
				return out.String(), len(src)
			}
		}
	}
}
