package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/japaniel/openings/pkg/moves"
	"github.com/japaniel/openings/pkg/tree"
)

func rec(i int, name string, seq ...string) Record {
	if seq == nil {
		seq = []string{}
	}
	return Record{Index: i, Code: "A00", Name: name, Moves: seq}
}

func names(rs []Record) []string {
	var out []string
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}

func TestFilterRemovesPrefixes(t *testing.T) {
	in := []Record{
		rec(0, "King's Pawn", "e4"),
		rec(1, "King's Pawn: Open", "e4", "e5"),
		rec(2, "Sicilian", "e4", "c5"),
	}
	res, err := Filter(context.Background(), in, 2)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if got := names(res.Kept); !reflect.DeepEqual(got, []string{"King's Pawn: Open", "Sicilian"}) {
		t.Fatalf("kept = %v", got)
	}
	if got := names(res.Superseded); !reflect.DeepEqual(got, []string{"King's Pawn"}) {
		t.Fatalf("superseded = %v", got)
	}
}

func TestFilterDuplicatesKeepFirstSeen(t *testing.T) {
	in := []Record{
		rec(0, "Queen's Gambit Declined", "d4", "d5"),
		rec(1, "Closed Game", "d4", "d5"),
	}
	res, err := Filter(context.Background(), in, 1)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(res.Kept) != 1 || res.Kept[0].Index != 0 {
		t.Fatalf("expected record 0 to survive, got %+v", res.Kept)
	}
	if len(res.Duplicates) != 1 || res.Duplicates[0].Index != 1 {
		t.Fatalf("expected record 1 reported as duplicate, got %+v", res.Duplicates)
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Kind != KindAmbiguousDuplicate {
		t.Fatalf("expected one ambiguous duplicate diagnostic, got %+v", res.Diagnostics)
	}
}

func TestFilterEmptySequences(t *testing.T) {
	res, err := Filter(context.Background(), []Record{rec(0, "Start"), rec(1, "Other")}, 1)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(res.Kept) != 1 || res.Kept[0].Name != "Start" {
		t.Fatalf("expected the first empty record alone to survive, got %+v", res.Kept)
	}

	res, err = Filter(context.Background(), []Record{rec(0, "Start"), rec(1, "Polish", "b4")}, 1)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if got := names(res.Kept); !reflect.DeepEqual(got, []string{"Polish"}) {
		t.Fatalf("empty line must be superseded by any real line, kept %v", got)
	}
	var empties int
	for _, d := range res.Diagnostics {
		if d.Kind == KindEmptySequence {
			empties++
		}
	}
	if empties != 1 {
		t.Errorf("expected 1 empty sequence diagnostic, got %d", empties)
	}
}

func TestFilterIsTokenWise(t *testing.T) {
	// "e4 e5" is a substring of "e4 e5x" as text but not a token prefix.
	in := []Record{rec(0, "A", "e4", "e5"), rec(1, "B", "e4", "e5x")}
	res, err := Filter(context.Background(), in, 1)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(res.Kept) != 2 {
		t.Fatalf("expected both lines kept, got %v", names(res.Kept))
	}
}

func TestFilterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Filter(ctx, []Record{rec(0, "A", "e4")}, 1); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// randomFeed produces a redundant feed with shared trunks, prefixes and duplicates.
func randomFeed(n int, seed int64) []Record {
	rng := rand.New(rand.NewSource(seed))
	plies := []string{"e4", "d4", "c4", "Nf3", "e5", "c5", "d5", "Nf6"}
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		var seq []string
		if i > 0 && rng.Intn(3) == 0 {
			base := out[rng.Intn(len(out))].Moves
			seq = append([]string{}, base[:rng.Intn(len(base)+1)]...)
		}
		for l := rng.Intn(5); l > 0; l-- {
			seq = append(seq, plies[rng.Intn(len(plies))])
		}
		out = append(out, rec(i, fmt.Sprintf("Line %d", i), seq...))
	}
	return out
}

func TestFilterInvariants(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		feed := randomFeed(300, seed)
		res, err := Filter(context.Background(), feed, 3)
		if err != nil {
			t.Fatalf("Filter: %v", err)
		}
		if len(res.Kept)+len(res.Superseded)+len(res.Duplicates) != len(feed) {
			t.Fatalf("seed %d: records lost", seed)
		}
		for i, a := range res.Kept {
			for j, b := range res.Kept {
				if i != j && moves.HasPrefix(b.Moves, a.Moves) {
					t.Fatalf("seed %d: %v is a prefix of %v", seed, a.Moves, b.Moves)
				}
			}
		}
		for i := 1; i < len(res.Kept); i++ {
			if res.Kept[i-1].Index >= res.Kept[i].Index {
				t.Fatalf("seed %d: input order not preserved", seed)
			}
		}

		again, err := Filter(context.Background(), res.Kept, 1)
		if err != nil {
			t.Fatalf("Filter: %v", err)
		}
		if !reflect.DeepEqual(again.Kept, res.Kept) {
			t.Fatalf("seed %d: filter is not idempotent", seed)
		}

		serial, err := Filter(context.Background(), feed, 1)
		if err != nil {
			t.Fatalf("Filter: %v", err)
		}
		if !reflect.DeepEqual(serial.Kept, res.Kept) {
			t.Fatalf("seed %d: output depends on worker count", seed)
		}
	}
}

// naiveDepth widens the prefix and rescans every line, as a reference.
func naiveDepth(seq []string, all []Record) int {
	k := 1
	for {
		n := 0
		for _, r := range all {
			if moves.HasPrefix(r.Moves, seq[:min(k, len(seq))]) {
				n++
			}
		}
		if n <= 1 || k >= len(seq) {
			return k
		}
		k++
	}
}

func TestDepthScenario(t *testing.T) {
	kept := []Record{rec(1, "King's Pawn: Open", "e4", "e5"), rec(2, "Sicilian", "e4", "c5")}
	root := tree.New()
	for _, r := range kept {
		root.Insert(r.Moves)
	}
	for _, r := range kept {
		if d := Depth(root, r.Moves); d != 2 {
			t.Errorf("%s: depth %d, want 2", r.Name, d)
		}
	}

	root.Insert([]string{"d4", "d5"})
	if d := Depth(root, []string{"d4", "d5"}); d != 1 {
		t.Errorf("unique first move must give depth 1, got %d", d)
	}
	if d := Depth(tree.New(), nil); d != 1 {
		t.Errorf("empty sequence depth = %d, want 1", d)
	}
}

func TestDepthMatchesNaiveScan(t *testing.T) {
	for seed := int64(10); seed < 15; seed++ {
		res, err := Filter(context.Background(), randomFeed(250, seed), 4)
		if err != nil {
			t.Fatalf("Filter: %v", err)
		}
		root := tree.New()
		for _, r := range res.Kept {
			root.Insert(r.Moves)
		}
		depths, err := ResolveDepths(context.Background(), root, res.Kept, 4)
		if err != nil {
			t.Fatalf("ResolveDepths: %v", err)
		}
		for i, r := range res.Kept {
			if len(r.Moves) == 0 {
				continue
			}
			want := naiveDepth(r.Moves, res.Kept)
			if depths[i] != want {
				t.Fatalf("seed %d: depth of %v = %d, want %d", seed, r.Moves, depths[i], want)
			}
			if depths[i] > len(r.Moves) {
				t.Fatalf("depth %d exceeds line length %d", depths[i], len(r.Moves))
			}
			var sharing int
			for _, o := range res.Kept {
				if moves.HasPrefix(o.Moves, r.Moves[:depths[i]]) {
					sharing++
				}
			}
			if sharing != 1 {
				t.Fatalf("seed %d: %d lines share %v", seed, sharing, r.Moves[:depths[i]])
			}
		}
	}
}

func TestSplitName(t *testing.T) {
	cases := []struct{ name, family, sub string }{
		{"Sicilian Defense: Najdorf Variation, English Attack", "Sicilian Defense", "Najdorf Variation"},
		{"Sicilian Defense", "Sicilian Defense", ""},
		{"Ruy Lopez: Berlin Defense", "Ruy Lopez", "Berlin Defense"},
		{" King's Pawn Game :  Wayward Queen Attack , Kiddie Countergambit", "King's Pawn Game", "Wayward Queen Attack"},
		{"Odd: A: B", "Odd", "A: B"},
	}
	for _, c := range cases {
		f, s := SplitName(c.name)
		if f != c.family || s != c.sub {
			t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", c.name, f, s, c.family, c.sub)
		}
	}
}

func TestSortStability(t *testing.T) {
	a := rec(0, "Same", "e4", "e5")
	b := rec(1, "Same", "e4", "e5")
	entries := Assemble([]Record{b, a}, []int{2, 2})
	if entries[0].Index != 0 || entries[1].Index != 1 {
		t.Fatalf("ties must fall back to input order, got %d,%d", entries[0].Index, entries[1].Index)
	}

	in := []Record{
		rec(0, "Sicilian Defense: Najdorf Variation", "e4", "c5", "Nf3"),
		rec(1, "English Opening", "c4"),
		rec(2, "Sicilian Defense: Alapin Variation", "e4", "c5", "c3"),
		rec(3, "Sicilian Defense", "e4", "c5", "d4"),
	}
	got := Assemble(in, []int{1, 1, 1, 1})
	var order []int
	for _, e := range got {
		order = append(order, e.Index)
	}
	if !reflect.DeepEqual(order, []int{1, 3, 2, 0}) {
		t.Fatalf("order = %v, want [1 3 2 0]", order)
	}
	if got[1].MainLine != "e4 c5" || got[0].MainLine != "" || got[0].HalfMoves != 1 {
		t.Errorf("derived fields wrong: %+v %+v", got[0], got[1])
	}
}

func TestBuildScenario(t *testing.T) {
	in := []Record{
		rec(0, "King's Pawn", "e4"),
		rec(1, "King's Pawn: Open", "e4", "e5"),
		rec(2, "Sicilian", "e4", "c5"),
		rec(3, "Closed Game", "d4", "d5"),
		rec(4, "Queen's Pawn: Symmetrical", "d4", "d5"),
	}
	c, err := NewBuilder().Build(context.Background(), in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := map[string]int{"King's Pawn: Open": 2, "Sicilian": 2, "Closed Game": 1}
	if len(c.Entries) != len(want) {
		t.Fatalf("entries = %+v", c.Entries)
	}
	for _, e := range c.Entries {
		if d, ok := want[e.Name]; !ok || d != e.Depth {
			t.Errorf("%s: depth %d, want %d (present=%v)", e.Name, e.Depth, d, ok)
		}
		if !c.Tree.Contains(e.Moves) {
			t.Errorf("%s: line missing from tree", e.Name)
		}
	}
	if c.Entries[0].Name != "Closed Game" || c.Entries[1].Family != "King's Pawn" {
		t.Errorf("unexpected order: %s, %s", c.Entries[0].Name, c.Entries[1].Name)
	}
	if c.Status[0] != StatusSuperseded || c.Status[4] != StatusDuplicate || c.Status[1] != StatusRetained {
		t.Errorf("status = %v", c.Status)
	}
	if len(c.Diagnostics) != 1 || c.Diagnostics[0].Index != 4 {
		t.Errorf("diagnostics = %+v", c.Diagnostics)
	}
}

func TestLookupAndIdentify(t *testing.T) {
	in := []Record{
		rec(0, "Ruy Lopez: Berlin", "e4", "e5", "Nf3", "Nc6", "Bb5", "Nf6"),
		rec(1, "Ruy Lopez: Morphy", "e4", "e5", "Nf3", "Nc6", "Bb5", "a6"),
		rec(2, "Italian Game", "e4", "e5", "Nf3", "Nc6", "Bc4"),
		rec(3, "Sicilian Defense", "e4", "c5"),
	}
	c, err := NewBuilder().Build(context.Background(), in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := c.Lookup([]string{"e4", "e5"})
	if len(got) != 3 {
		t.Fatalf("expected 3 lines after 1. e4 e5, got %d", len(got))
	}
	if got[0].Name != "Italian Game" {
		t.Errorf("lookup must follow catalog order, first = %s", got[0].Name)
	}
	if len(c.Lookup(nil)) != 4 {
		t.Errorf("empty prefix must return all entries")
	}
	if c.Lookup([]string{"d4"}) != nil {
		t.Errorf("unknown prefix must return nil")
	}

	if _, ok := c.Identify([]string{"e4", "e5", "Nf3"}); ok {
		t.Errorf("ambiguous prefix must not identify")
	}
	e, ok := c.Identify([]string{"e4", "e5", "Nf3", "Nc6", "Bc4"})
	if !ok || e.Name != "Italian Game" {
		t.Errorf("Identify = %v %v", e.Name, ok)
	}
	e, ok = c.Identify([]string{"e4", "c5", "Nf3", "d6"})
	if !ok || e.Name != "Sicilian Defense" {
		t.Errorf("moves past the book must still identify, got %v %v", e.Name, ok)
	}
}

func TestFamilyAndMainLineCounts(t *testing.T) {
	in := []Record{
		rec(0, "Sicilian Defense: Najdorf Variation", "e4", "c5", "Nf3", "d6"),
		rec(1, "Sicilian Defense: Najdorf Variation, English Attack", "e4", "c5", "Nf3", "d6", "d4"),
		rec(2, "Sicilian Defense: Najdorf Variation, Opocensky", "e4", "c5", "Nf3", "d6", "Be2"),
		rec(3, "English Opening", "c4"),
	}
	c, err := NewBuilder().Build(context.Background(), in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	fc := c.FamilyCounts()
	want := []FamilyCount{
		{Family: "Sicilian Defense", Subfamily: "Najdorf Variation", Count: 2},
		{Family: "English Opening", Subfamily: "", Count: 1},
	}
	if !reflect.DeepEqual(fc, want) {
		t.Fatalf("FamilyCounts = %+v", fc)
	}
	mc := c.MainLineCounts()
	if len(mc) != 3 || mc[0].Count != 1 || mc[0].MainLine != "" {
		t.Fatalf("MainLineCounts = %+v", mc)
	}
}

func BenchmarkBuild(b *testing.B) {
	feed := randomFeed(3000, 42)
	builder := NewBuilder()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := builder.Build(ctx, feed); err != nil {
			b.Fatal(err)
		}
	}
}
