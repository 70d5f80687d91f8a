package charset

import (
	"errors"
	"fmt"
	"strings"

	gdenc "github.com/gdamore/encoding"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	// UTF8 is the default charset.
	UTF8 = "utf-8"
	// Auto asks the session to detect the charset from the first output bytes.
	Auto = "auto"
)

// ErrUnknownCharset is returned for names that no registry knows.
var ErrUnknownCharset = errors.New("unknown charset")

// common lists the names offered to users. Lookup accepts any WHATWG label.
var common = []string{
	UTF8,
	"utf-16le",
	"utf-16be",
	"ascii",
	"ebcdic",
	"gbk",
	"gb18030",
	"big5",
	"shift_jis",
	"euc-jp",
	"iso-2022-jp",
	"euc-kr",
	"windows-1250",
	"windows-1251",
	"windows-1252",
	"windows-1253",
	"windows-1254",
	"windows-1255",
	"windows-1256",
	"windows-1257",
	"windows-1258",
	"iso-8859-2",
	"iso-8859-5",
	"iso-8859-7",
	"iso-8859-15",
	"koi8-r",
	"koi8-u",
	"macintosh",
}

// Names returns the charsets offered to users, in display order.
func Names() []string {
	out := make([]string, len(common))
	copy(out, common)
	return out
}

// normalize lower-cases a label and folds the spellings chardet reports.
func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "utf8":
		return UTF8
	case "gb-18030":
		return "gb18030"
	case "us-ascii":
		return "ascii"
	}
	return n
}

// Lookup resolves a charset label to an encoding and its canonical name.
func Lookup(name string) (encoding.Encoding, string, error) {
	n := normalize(name)
	switch n {
	case "":
		return nil, "", fmt.Errorf("%w: empty name", ErrUnknownCharset)
	case UTF8:
		return unicode.UTF8, UTF8, nil
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), n, nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), n, nil
	case "ascii":
		// WHATWG maps ascii to windows-1252; keep it strictly 7-bit.
		return gdenc.ASCII, n, nil
	case "ebcdic":
		return gdenc.EBCDIC, n, nil
	}

	enc, err := htmlindex.Get(n)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownCharset, name)
	}

	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = n
	}
	return enc, canonical, nil
}

// Valid reports whether name can be used with a Decoder or is Auto.
func Valid(name string) bool {
	if normalize(name) == Auto {
		return true
	}
	_, _, err := Lookup(name)
	return err == nil
}
