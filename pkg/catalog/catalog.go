package catalog

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/japaniel/openings/pkg/moves"
	"github.com/japaniel/openings/pkg/tree"
)

// Catalog is the curated opening set plus the prefix tree over its lines.
type Catalog struct {
	Entries     []Entry
	Tree        *tree.Node
	Diagnostics []Diagnostic
	// Status maps every input index seen by the build to what happened to it.
	Status map[int]Status

	byKey map[string]int
}

// New wraps already-built entries and tree, e.g. when reloading a stored build.
func New(entries []Entry, root *tree.Node, diags []Diagnostic) *Catalog {
	c := &Catalog{
		Entries:     entries,
		Tree:        root,
		Diagnostics: diags,
		Status:      make(map[int]Status, len(entries)),
		byKey:       make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		c.byKey[moves.Key(e.Moves)] = i
		c.Status[e.Index] = StatusRetained
	}
	return c
}

// Lookup returns every entry whose line starts with prefix, in catalog order.
// An empty prefix returns the whole catalog.
func (c *Catalog) Lookup(prefix []string) []Entry {
	node := c.Tree.Find(prefix)
	if node == nil {
		return nil
	}
	var idx []int
	for _, p := range node.Paths(prefix) {
		if i, ok := c.byKey[moves.Key(p)]; ok {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	out := make([]Entry, len(idx))
	for n, i := range idx {
		out[n] = c.Entries[i]
	}
	return out
}

// Identify names a played line. Moves past the end of the book are ignored;
// the line is identified once the known part reaches an entry's depth.
// ok is false while more than one entry still matches.
func (c *Catalog) Identify(played []string) (Entry, bool) {
	n := len(played)
	for n > 0 && !c.Tree.Contains(played[:n]) {
		n--
	}
	matches := c.Lookup(played[:n])
	if len(matches) == 1 && n >= matches[0].Depth {
		return matches[0], true
	}
	return Entry{}, false
}

// FamilyCount is the number of entries in one (family, subfamily) group.
type FamilyCount struct {
	Family    string `json:"family"`
	Subfamily string `json:"subfamily"`
	Count     int    `json:"count"`
}

// FamilyCounts groups entries by family and subfamily, largest group first.
func (c *Catalog) FamilyCounts() []FamilyCount {
	counts := make(map[[2]string]int)
	for _, e := range c.Entries {
		counts[[2]string{e.Family, e.Subfamily}]++
	}
	out := make([]FamilyCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, FamilyCount{Family: k[0], Subfamily: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		return out[i].Subfamily < out[j].Subfamily
	})
	return out
}

// MainLineCount is the number of entries sharing a main line and name.
type MainLineCount struct {
	MainLine string `json:"main_line"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// MainLineCounts groups entries by main line and name, largest group first.
func (c *Catalog) MainLineCounts() []MainLineCount {
	counts := make(map[[2]string]int)
	for _, e := range c.Entries {
		counts[[2]string{e.MainLine, e.Name}]++
	}
	out := make([]MainLineCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, MainLineCount{MainLine: k[0], Name: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].MainLine != out[j].MainLine {
			return out[i].MainLine < out[j].MainLine
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Builder runs the curation stages over normalized records.
type Builder struct {
	// Workers bounds the goroutines used by the filter and depth stages.
	Workers int
	// Logger receives warnings. nil means no logging.
	Logger *log.Logger
}

// NewBuilder creates a Builder with default settings.
func NewBuilder() *Builder {
	return &Builder{Workers: 4}
}

// Build filters redundant lines, builds the prefix tree, resolves depths and
// assembles the sorted catalog. Records are not modified.
func (b *Builder) Build(ctx context.Context, records []Record) (*Catalog, error) {
	filtered, err := Filter(ctx, records, b.Workers)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	root := tree.New()
	for _, r := range filtered.Kept {
		root.Insert(r.Moves)
	}

	depths, err := ResolveDepths(ctx, root, filtered.Kept, b.Workers)
	if err != nil {
		return nil, fmt.Errorf("resolve depths: %w", err)
	}

	c := New(Assemble(filtered.Kept, depths), root, nil)
	for _, r := range filtered.Superseded {
		c.Status[r.Index] = StatusSuperseded
	}
	for _, r := range filtered.Duplicates {
		c.Status[r.Index] = StatusDuplicate
	}
	c.AddDiagnostics(filtered.Diagnostics...)

	if b.Logger != nil {
		for _, d := range filtered.Diagnostics {
			b.Logger.Printf("Warning: %s", d)
		}
		b.Logger.Printf("Kept %d of %d lines (%d superseded, %d duplicates), tree has %d nodes",
			len(filtered.Kept), len(records), len(filtered.Superseded), len(filtered.Duplicates), root.Size())
	}
	return c, nil
}

// AddDiagnostics merges diags into the catalog, keeping them ordered by input index.
func (c *Catalog) AddDiagnostics(diags ...Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, diags...)
	sort.SliceStable(c.Diagnostics, func(i, j int) bool {
		return c.Diagnostics[i].Index < c.Diagnostics[j].Index
	})
}
