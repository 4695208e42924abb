package moves

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Version returns the current version of the package.
func Version() string { return "0.2.0" }

// ErrMalformedSequence is the sentinel wrapped by every SequenceError.
var ErrMalformedSequence = errors.New("malformed move sequence")

// SequenceError reports a raw move string whose token at a move-number
// position is not a move-number marker.
type SequenceError struct {
	Raw   string
	Pos   int    // token index in the whitespace-split raw string
	Token string // offending token
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("malformed move sequence: token %d %q is not a move number (%q)", e.Pos, e.Token, e.Raw)
}

func (e *SequenceError) Unwrap() error { return ErrMalformedSequence }

// markerRe matches "1." and the black continuation form "1...".
var markerRe = regexp.MustCompile(`^[0-9]+\.+$`)

// Normalize turns a move-number-prefixed notation string such as
// "1. e4 e5 2. Nf3" into its half-move tokens ["e4" "e5" "Nf3"].
//
// Tokens sit in groups of three: marker, white half-move, black half-move.
// A trailing white half-move with no reply is kept. Tokens are NFC
// normalized but otherwise not checked for legality.
func Normalize(raw string) ([]string, error) {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields)-len(fields)/3)
	for i, f := range fields {
		if i%3 == 0 {
			if !markerRe.MatchString(f) {
				return nil, &SequenceError{Raw: raw, Pos: i, Token: f}
			}
			continue
		}
		out = append(out, norm.NFC.String(f))
	}
	return out, nil
}

// Format renders half-moves back into numbered notation, the inverse of Normalize.
func Format(seq []string) string {
	var b strings.Builder
	for i, m := range seq {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i%2 == 0 {
			fmt.Fprintf(&b, "%d. ", i/2+1)
		}
		b.WriteString(m)
	}
	return b.String()
}

// Key joins a sequence into a single comparable string.
func Key(seq []string) string {
	return strings.Join(seq, " ")
}

// Split is the inverse of Key.
func Split(key string) []string {
	if key == "" {
		return []string{}
	}
	return strings.Split(key, " ")
}

// HasPrefix reports whether prefix equals the first len(prefix) tokens of seq.
func HasPrefix(seq, prefix []string) bool {
	if len(prefix) > len(seq) {
		return false
	}
	for i := range prefix {
		if seq[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether a and b hold the same tokens.
func Equal(a, b []string) bool {
	return len(a) == len(b) && HasPrefix(a, b)
}

// Compare orders sequences token by token; a proper prefix sorts first.
func Compare(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// MainLine returns the first two half-moves joined by a space, or "" when
// the sequence is shorter than a full move.
func MainLine(seq []string) string {
	if len(seq) < 2 {
		return ""
	}
	return seq[0] + " " + seq[1]
}
