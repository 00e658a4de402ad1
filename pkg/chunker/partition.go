package chunker

// balancedPartition splits lengths into k contiguous sublists whose totals
// are as even as a local search can make them. It returns the k+1 cut
// indices (cuts[0]=0, cuts[k]=len(lengths)).
//
// The search starts from evenly spaced boundaries and repeatedly moves a
// boundary adjacent to the worst-offending partition in the direction that
// reduces its total, stopping after 5 stalled iterations or 100 total.
func balancedPartition(lengths []int, k int) []int {
	n := len(lengths)
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}
	cuts := make([]int, k+1)
	for i := 0; i <= k; i++ {
		cuts[i] = i * n / k
	}

	sums := func(cuts []int) []int {
		out := make([]int, k)
		for p := 0; p < k; p++ {
			for i := cuts[p]; i < cuts[p+1]; i++ {
				out[p] += lengths[i]
			}
		}
		return out
	}
	maxOf := func(xs []int) (int, int) {
		best, at := -1, 0
		for i, x := range xs {
			if x > best {
				best, at = x, i
			}
		}
		return best, at
	}

	cost, worst := maxOf(sums(cuts))
	stalled := 0
	for iter := 0; iter < 100 && stalled < 5; iter++ {
		improved := false

		// shrinking the worst partition from either side; only moves
		// that keep every partition non-empty are candidates
		type move struct{ boundary, delta int }
		var candidates []move
		if worst > 0 && cuts[worst+1]-cuts[worst] > 1 {
			candidates = append(candidates, move{worst, +1})
		}
		if worst < k-1 && cuts[worst+1]-cuts[worst] > 1 {
			candidates = append(candidates, move{worst + 1, -1})
		}

		bestCost, bestMove := cost, move{}
		for _, m := range candidates {
			cuts[m.boundary] += m.delta
			if c, _ := maxOf(sums(cuts)); c < bestCost {
				bestCost, bestMove, improved = c, m, true
			}
			cuts[m.boundary] -= m.delta
		}
		if improved {
			cuts[bestMove.boundary] += bestMove.delta
			cost, worst = maxOf(sums(cuts))
			stalled = 0
		} else {
			stalled++
		}
	}
	return cuts
}

// partitionTotals sums each partition defined by cuts.
func partitionTotals(lengths, cuts []int) []int {
	out := make([]int, len(cuts)-1)
	for p := 0; p < len(out); p++ {
		for i := cuts[p]; i < cuts[p+1]; i++ {
			out[p] += lengths[i]
		}
	}
	return out
}
