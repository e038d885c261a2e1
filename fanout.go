package neosample

import "math/rand/v2"

// FullFanout takes every neighbor of a column.
const FullFanout = -1

// FanoutSample is the COO output of SampleFanout. Entry k is the edge from
// Rows[k] into the destination in CSC column Cols[k]; Positions[k] is the
// index of that neighbor in the CSC Row array.
type FanoutSample struct {
	Rows      []VertexID
	Cols      []int
	Positions []int
}

// Len returns the number of sampled edges.
func (s FanoutSample) Len() int { return len(s.Rows) }

// Destinations maps the sampled column positions back to vertex ids.
func (s FanoutSample) Destinations(csc *CSC) []VertexID {
	out := make([]VertexID, len(s.Cols))
	for k, c := range s.Cols {
		out[k] = csc.Frontier[c]
	}
	return out
}

// EdgeIDs returns the edge ids of the sampled entries, or nil if csc carries none.
func (s FanoutSample) EdgeIDs(csc *CSC) []int64 {
	if csc.EdgeIDs == nil {
		return nil
	}
	out := make([]int64, len(s.Positions))
	for k, p := range s.Positions {
		out[k] = csc.EdgeIDs[p]
	}
	return out
}

// SampleFanout selects at most fanout neighbors per CSC column.
//
//   - fanout == FullFanout takes the whole column.
//   - Without replacement it takes min(fanout, degree) distinct neighbors.
//   - With replacement it draws exactly fanout neighbors from every non-empty column.
//
// Empty columns never contribute. rng must not be shared with a concurrent caller.
func SampleFanout(csc *CSC, fanout int, replace bool, rng *rand.Rand) FanoutSample {
	var out FanoutSample
	var picked map[int]struct{}
	for col := range csc.Frontier {
		start, end := csc.ColOffsets[col], csc.ColOffsets[col+1]
		degree := end - start
		if degree == 0 {
			continue
		}

		take := func(offset int) {
			out.Rows = append(out.Rows, csc.Row[offset])
			out.Cols = append(out.Cols, col)
			out.Positions = append(out.Positions, offset)
		}

		switch {
		case fanout < 0 || (!replace && fanout >= degree):
			for offset := start; offset < end; offset++ {
				take(offset)
			}
		case replace:
			for i := 0; i < fanout; i++ {
				take(start + rng.IntN(degree))
			}
		default:
			// Floyd's algorithm: fanout distinct offsets out of degree.
			if picked == nil {
				picked = make(map[int]struct{}, fanout)
			} else {
				clear(picked)
			}
			for last := degree - fanout; last < degree; last++ {
				r := rng.IntN(last + 1)
				if _, dup := picked[r]; dup {
					r = last
				}
				picked[r] = struct{}{}
				take(start + r)
			}
		}
	}
	return out
}

// newRand returns a PCG-backed generator for the given seed pair.
func newRand(hi, lo uint64) *rand.Rand {
	return rand.New(rand.NewPCG(hi, lo))
}
