package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/japaniel/openings/pkg/moves"
)

// SplitName derives the family and subfamily from a display name such as
// "Sicilian Defense: Najdorf Variation, English Attack". The family is the
// text before the first colon; the subfamily is the text after it up to the
// first comma. A name without a colon has no subfamily.
func SplitName(name string) (family, subfamily string) {
	name = norm.NFC.String(name)
	head, rest, found := strings.Cut(name, ":")
	family = strings.TrimSpace(head)
	if !found {
		return family, ""
	}
	sub, _, _ := strings.Cut(rest, ",")
	return family, strings.TrimSpace(sub)
}

// Assemble builds entries from retained records and their depths (indexed
// like records) and returns them in catalog order.
func Assemble(records []Record, depths []int) []Entry {
	entries := make([]Entry, len(records))
	for i, r := range records {
		family, subfamily := SplitName(r.Name)
		entries[i] = Entry{
			Record:    r,
			Family:    family,
			Subfamily: subfamily,
			MainLine:  moves.MainLine(r.Moves),
			Depth:     depths[i],
			HalfMoves: len(r.Moves),
		}
	}
	SortEntries(entries)
	return entries
}

// SortEntries orders entries by family, subfamily, name, main line and full
// move sequence. Ties keep their relative order, then fall back to input index.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return lessEntry(&entries[i], &entries[j])
	})
}

func lessEntry(a, b *Entry) bool {
	if a.Family != b.Family {
		return a.Family < b.Family
	}
	if a.Subfamily != b.Subfamily {
		return a.Subfamily < b.Subfamily
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if a.MainLine != b.MainLine {
		return a.MainLine < b.MainLine
	}
	if c := moves.Compare(a.Moves, b.Moves); c != 0 {
		return c < 0
	}
	return a.Index < b.Index
}
