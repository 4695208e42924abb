package catalog

import (
	"context"

	"github.com/japaniel/openings/pkg/tree"
)

// Depth returns the disambiguation depth of seq: the smallest k >= 1 such
// that no other line in root shares seq's first k half-moves, capped at
// len(seq). An empty sequence has depth 1.
//
// root must contain seq and every other retained line; Node.Count gives the
// number of lines through a prefix, so no rescans are needed.
func Depth(root *tree.Node, seq []string) int {
	if len(seq) == 0 {
		return 1
	}
	k := 1
	node := root.Child(seq[0])
	for node.Count() > 1 && k < len(seq) {
		node = node.Child(seq[k])
		k++
	}
	return k
}

// ResolveDepths computes Depth for every record, in parallel across workers.
// The returned slice is indexed like records.
func ResolveDepths(ctx context.Context, root *tree.Node, records []Record, workers int) ([]int, error) {
	depths := make([]int, len(records))
	err := parallelRange(ctx, len(records), workers, func(i int) {
		depths[i] = Depth(root, records[i].Moves)
	})
	if err != nil {
		return nil, err
	}
	return depths, nil
}
