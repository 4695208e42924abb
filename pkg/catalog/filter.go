package catalog

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/japaniel/openings/pkg/moves"
)

// FilterResult is the outcome of removing redundant lines.
type FilterResult struct {
	Kept        []Record // maximal lines, input order
	Superseded  []Record // strict prefixes of a kept or superseded line
	Duplicates  []Record // later copies of an earlier identical line
	Diagnostics []Diagnostic
}

// Filter keeps only records whose move sequence is not a strict prefix of
// another record's sequence. Identical sequences collapse to the first record
// in input order; later copies are reported as ambiguous duplicates.
//
// Candidates are compared only against records sharing their first half-move,
// and the comparison is split across workers goroutines. Output does not
// depend on workers.
func Filter(ctx context.Context, records []Record, workers int) (FilterResult, error) {
	var res FilterResult

	seen := make(map[string]Record, len(records))
	unique := make([]Record, 0, len(records))
	for _, r := range records {
		key := moves.Key(r.Moves)
		if first, ok := seen[key]; ok {
			res.Duplicates = append(res.Duplicates, r)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Index:   r.Index,
				Kind:    KindAmbiguousDuplicate,
				Name:    r.Name,
				Message: fmt.Sprintf("same line as record %d (%s); keeping the earlier record", first.Index, first.Name),
			})
			continue
		}
		seen[key] = r
		unique = append(unique, r)
	}

	byFirst := make(map[string][]int)
	nonEmpty := false
	for i, r := range unique {
		if len(r.Moves) == 0 {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Index:   r.Index,
				Kind:    KindEmptySequence,
				Name:    r.Name,
				Message: "record has no half-moves",
			})
			continue
		}
		nonEmpty = true
		byFirst[r.Moves[0]] = append(byFirst[r.Moves[0]], i)
	}

	superseded := make([]bool, len(unique))
	check := func(i int) {
		r := unique[i]
		if len(r.Moves) == 0 {
			superseded[i] = nonEmpty
			return
		}
		for _, j := range byFirst[r.Moves[0]] {
			if j == i {
				continue
			}
			other := unique[j].Moves
			if len(other) > len(r.Moves) && moves.HasPrefix(other, r.Moves) {
				superseded[i] = true
				return
			}
		}
	}

	if err := parallelRange(ctx, len(unique), workers, check); err != nil {
		return FilterResult{}, err
	}

	for i, r := range unique {
		if superseded[i] {
			res.Superseded = append(res.Superseded, r)
		} else {
			res.Kept = append(res.Kept, r)
		}
	}
	return res, nil
}

// parallelRange calls fn for every index in [0, n) using up to workers
// goroutines over contiguous chunks. fn must only write to state owned by its index.
func parallelRange(ctx context.Context, n, workers int, fn func(i int)) error {
	if workers <= 0 {
		workers = 1
	}
	if n == 0 {
		return ctx.Err()
	}
	chunk := (n + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		lo, hi := start, min(start+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}
