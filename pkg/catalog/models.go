package catalog

import "fmt"

// Record is one normalized opening line from the raw feed.
type Record struct {
	Index int      `json:"index"` // position in the raw feed, used for first-seen and stable ordering
	Code  string   `json:"eco"`
	Name  string   `json:"name"`
	Moves []string `json:"moves"`
}

// Entry is a retained Record with its derived fields. It is the unit handed
// to exporters.
type Entry struct {
	Record
	Family    string `json:"family"`
	Subfamily string `json:"subfamily"`
	MainLine  string `json:"main_line"`
	Depth     int    `json:"depth"`
	HalfMoves int    `json:"half_moves"`
}

// Kind classifies a per-record diagnostic. None of them abort a build.
type Kind string

const (
	KindMalformedSequence  Kind = "malformed_sequence"
	KindAmbiguousDuplicate Kind = "ambiguous_duplicate"
	KindEmptySequence      Kind = "empty_sequence"
	KindIllegalMove        Kind = "illegal_move"
	KindEvaluationFailed   Kind = "evaluation_failed"
)

// Diagnostic records a problem with a single raw record.
type Diagnostic struct {
	Index   int    `json:"index"`
	Kind    Kind   `json:"kind"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: record %d (%s): %s", d.Kind, d.Index, d.Name, d.Message)
}

// Status describes what the build did with an input record.
type Status string

const (
	StatusRetained   Status = "retained"
	StatusSuperseded Status = "superseded" // strict prefix of another line
	StatusDuplicate  Status = "duplicate"  // same line as an earlier record
	StatusMalformed  Status = "malformed"
)
