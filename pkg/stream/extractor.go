package stream

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

type mode int

const (
	modeBeforeField mode = iota
	modeInField
	modeInEscape
	modeInUnicodeEscape
	modeDone
)

// marker progress while in modeBeforeField
const (
	seekName = iota
	seekColon
	seekQuote
)

// FieldExtractor decodes the value of one top-level string field out of a
// JSON document that arrives as arbitrary fragments. Only characters that
// belong to the field's final value are ever released.
type FieldExtractor struct {
	marker string
	mode   mode
	seek   int

	raw strings.Builder

	value    []byte
	released int

	hex         []byte
	pendingHigh rune

	onMalformed func(seq string)
}

type ExtractorOption func(*FieldExtractor)

// WithMalformedHandler receives every escape sequence that was dropped.
func WithMalformedHandler(fn func(seq string)) ExtractorOption {
	return func(e *FieldExtractor) {
		e.onMalformed = fn
	}
}

func NewFieldExtractor(field string, opts ...ExtractorOption) *FieldExtractor {
	e := &FieldExtractor{
		marker: `"` + field + `"`,
		hex:    make([]byte, 0, 4),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Feed consumes one fragment and returns the decoded characters it released.
// The result is always valid UTF-8; a split multi-byte character is held
// until the rest of it arrives.
func (e *FieldExtractor) Feed(fragment string) string {
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		e.raw.WriteByte(c)
		e.step(c)
	}
	return e.release()
}

// Done reports whether the closing quote of the field has been seen.
func (e *FieldExtractor) Done() bool {
	return e.mode == modeDone
}

// Raw returns every byte fed so far.
func (e *FieldExtractor) Raw() string {
	return e.raw.String()
}

// Value returns all decoded characters released so far.
func (e *FieldExtractor) Value() string {
	return string(e.value[:e.released])
}

func (e *FieldExtractor) step(c byte) {
	switch e.mode {
	case modeBeforeField:
		e.scanMarker(c)
	case modeInField:
		e.inField(c)
	case modeInEscape:
		e.inEscape(c)
	case modeInUnicodeEscape:
		e.inUnicodeEscape(c)
	case modeDone:
	}
}

func (e *FieldExtractor) scanMarker(c byte) {
	switch e.seek {
	case seekName:
		if c == '"' && strings.HasSuffix(e.raw.String(), e.marker) {
			e.seek = seekColon
		}
	case seekColon:
		switch {
		case isSpace(c):
		case c == ':':
			e.seek = seekQuote
		default:
			e.seek = seekName
		}
	case seekQuote:
		switch {
		case isSpace(c):
		case c == '"':
			e.mode = modeInField
		default:
			// not a string value, keep looking
			e.seek = seekName
		}
	}
}

func (e *FieldExtractor) inField(c byte) {
	if e.pendingHigh != 0 && c != '\\' {
		e.flushSurrogate()
	}
	switch c {
	case '"':
		e.mode = modeDone
	case '\\':
		e.mode = modeInEscape
	default:
		e.value = append(e.value, c)
	}
}

func (e *FieldExtractor) inEscape(c byte) {
	if e.pendingHigh != 0 && c != 'u' {
		e.flushSurrogate()
	}
	e.mode = modeInField
	switch c {
	case '"', '\\', '/':
		e.value = append(e.value, c)
	case 'b':
		e.value = append(e.value, '\b')
	case 'f':
		e.value = append(e.value, '\f')
	case 'n':
		e.value = append(e.value, '\n')
	case 'r':
		e.value = append(e.value, '\r')
	case 't':
		e.value = append(e.value, '\t')
	case 'u':
		e.hex = e.hex[:0]
		e.mode = modeInUnicodeEscape
	default:
		e.malformed(`\` + string(c))
		if c >= utf8.RuneSelf {
			// keep the rest of a multi-byte character intact
			e.value = append(e.value, c)
		}
	}
}

func (e *FieldExtractor) inUnicodeEscape(c byte) {
	if !isHex(c) {
		e.malformed(`\u` + string(e.hex))
		e.hex = e.hex[:0]
		e.mode = modeInField
		e.inField(c)
		return
	}

	e.hex = append(e.hex, c)
	if len(e.hex) < 4 {
		return
	}
	r := rune(hexValue(e.hex))
	e.hex = e.hex[:0]
	e.mode = modeInField

	if e.pendingHigh != 0 {
		high := e.pendingHigh
		e.pendingHigh = 0
		if utf16.IsSurrogate(r) && r >= 0xDC00 {
			e.appendRune(utf16.DecodeRune(high, r))
			return
		}
		e.appendRune(utf8.RuneError)
	}

	switch {
	case r >= 0xD800 && r < 0xDC00:
		e.pendingHigh = r
	case utf16.IsSurrogate(r):
		e.appendRune(utf8.RuneError)
	default:
		e.appendRune(r)
	}
}

// flushSurrogate replaces a high surrogate that was not followed by a low one.
func (e *FieldExtractor) flushSurrogate() {
	e.pendingHigh = 0
	e.appendRune(utf8.RuneError)
}

func (e *FieldExtractor) appendRune(r rune) {
	e.value = utf8.AppendRune(e.value, r)
}

func (e *FieldExtractor) malformed(seq string) {
	if e.onMalformed != nil {
		e.onMalformed(seq)
	}
}

func (e *FieldExtractor) release() string {
	pending := e.value[e.released:]
	if e.mode != modeDone {
		pending = completePrefix(pending)
	}
	e.released += len(pending)
	return string(pending)
}

// completePrefix trims a trailing incomplete UTF-8 sequence.
func completePrefix(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func hexValue(h []byte) int {
	v := 0
	for _, c := range h {
		v <<= 4
		switch {
		case '0' <= c && c <= '9':
			v |= int(c - '0')
		case 'a' <= c && c <= 'f':
			v |= int(c-'a') + 10
		case 'A' <= c && c <= 'F':
			v |= int(c-'A') + 10
		}
	}
	return v
}
