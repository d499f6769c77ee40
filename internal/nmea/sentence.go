// Package nmea frames and parses the NMEA 0183 style sentences spoken by the
// boat's control server: "$BODY*CS\r\n" with an XOR checksum over BODY.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned for lines that are not a sentence at all.
	ErrMalformed = errors.New("malformed sentence")
	// ErrBadChecksum is returned when a checksum is present and wrong.
	ErrBadChecksum = errors.New("bad checksum")
)

// Sentence is a parsed line. Type is the first field (e.g. "PSEAC"),
// Fields are the remaining comma separated values.
type Sentence struct {
	Type   string
	Fields []string
}

// Field returns field i or "" when absent.
func (s Sentence) Field(i int) string {
	if i < 0 || i >= len(s.Fields) {
		return ""
	}
	return s.Fields[i]
}

// Body joins the sentence back into its unframed form.
func (s Sentence) Body() string {
	if len(s.Fields) == 0 {
		return s.Type
	}
	return s.Type + "," + strings.Join(s.Fields, ",")
}

// String returns the framed sentence.
func (s Sentence) String() string {
	return Frame(s.Body())
}

// Checksum is the XOR of every byte of body as two uppercase hex digits.
func Checksum(body string) string {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("%02X", cs)
}

// Frame wraps body as "$BODY*CS\r\n".
func Frame(body string) string {
	return "$" + body + "*" + Checksum(body) + "\r\n"
}

// Build frames a sentence from its type and fields.
func Build(typ string, fields ...string) string {
	return Sentence{Type: typ, Fields: fields}.String()
}

// Parse decodes one line. The leading '$' and the trailing checksum are
// optional; when a checksum is present it must match.
func Parse(line string) (Sentence, error) {
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "$")
	if line == "" {
		return Sentence{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	body := line
	if i := strings.LastIndexByte(line, '*'); i >= 0 {
		body = line[:i]
		given := strings.TrimSpace(line[i+1:])
		if len(given) != 2 {
			return Sentence{}, fmt.Errorf("%w: checksum %q", ErrMalformed, given)
		}
		if _, err := strconv.ParseUint(given, 16, 8); err != nil {
			return Sentence{}, fmt.Errorf("%w: checksum %q", ErrMalformed, given)
		}
		if want := Checksum(body); !strings.EqualFold(given, want) {
			return Sentence{}, fmt.Errorf("%w: got %s, want %s", ErrBadChecksum, strings.ToUpper(given), want)
		}
	}

	parts := strings.Split(body, ",")
	typ := strings.ToUpper(strings.TrimSpace(parts[0]))
	if typ == "" || strings.ContainsAny(typ, "$* ") {
		return Sentence{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	fields := parts[1:]
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return Sentence{Type: typ, Fields: fields}, nil
}
