package db

import (
	"time"

	"github.com/japaniel/openings/pkg/catalog"
)

// Build is one curation run over a set of source files.
type Build struct {
	ID          string
	Sources     string
	RecordCount int
	EntryCount  int
	CreatedAt   time.Time
}

// Opening is a raw feed row as ingested, with what the build did with it.
type Opening struct {
	Index     int
	Code      string
	Name      string
	Family    string
	Subfamily string
	PGN       string
	HalfMoves int
	Status    catalog.Status
}

// Entry is a stored catalog entry with its optional annotations.
type Entry struct {
	catalog.Entry
	Position   int      `json:"position"`
	FEN        string   `json:"fen,omitempty"`
	Evaluation *float64 `json:"evaluation,omitempty"` // pawns, white-relative; nil when not evaluated
	Advantage  string   `json:"advantage,omitempty"`
}
