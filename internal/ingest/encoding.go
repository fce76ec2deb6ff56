package ingest

// encoding.go detects and decodes the text encodings supplier CSV files
// arrive in.
//
// Detection order:
//
//   - UTF-8, UTF-16LE and UTF-16BE byte order marks
//   - valid UTF-8
//   - EUC-JP, when the bytes decode without replacement characters
//   - Shift_JIS otherwise (the usual export encoding of Japanese tools)
//
// EUC-JP is tried before Shift_JIS because Shift_JIS reads almost any
// EUC-JP byte pair as two half-width katakana, while the reverse fails fast.

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported in Table.Encoding.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-bom"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
	EncodingEUCJP   = "euc-jp"
	EncodingSJIS    = "shift_jis"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

var knownEncodings = map[string]encoding.Encoding{
	EncodingUTF8:    unicode.UTF8,
	EncodingUTF8BOM: unicode.UTF8BOM,
	EncodingUTF16LE: unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	EncodingUTF16BE: unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	EncodingEUCJP:   japanese.EUCJP,
	EncodingSJIS:    japanese.ShiftJIS,
}

// DetectEncoding guesses the encoding of data.
func DetectEncoding(data []byte) string {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return EncodingUTF16BE
	case utf8.Valid(data):
		return EncodingUTF8
	case decodesCleanly(japanese.EUCJP, data):
		return EncodingEUCJP
	default:
		return EncodingSJIS
	}
}

func decodesCleanly(enc encoding.Encoding, data []byte) bool {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return false
	}
	return !bytes.ContainsRune(out, utf8.RuneError)
}

// Decode converts data to UTF-8. An empty name or "auto" detects the
// encoding; other names are looked up among the known encodings and then
// the IANA registry. A byte order mark always wins over the named encoding
// and is stripped. The returned name is the encoding used.
func Decode(data []byte, name string) ([]byte, string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		name = DetectEncoding(data)
	}

	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, "", err
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), data)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", name, err)
	}
	return out, name, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if enc, ok := knownEncodings[name]; ok {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc, nil
}
