package rtree

import (
	"fmt"
	"math"

	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/spindex_errors"
	"github.com/drpcorg/spindex/utils"
)

// Neighbor is an entry ranked by the distance from a query point to its
// envelope.
type Neighbor struct {
	Entry
	Distance float64
}

// Nearest returns up to k entries closest to (x, y), closest first. The
// search window starts around the expected spacing of entries and doubles
// until it admits k candidates, then widens once more to the k-th
// candidate distance so that nothing closer is missed in the corners.
func (t *Tree) Nearest(x, y float64, k int) ([]Neighbor, error) {
	if err := checkPoint(x, y); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	bb, err := t.BoundingBox()
	if err != nil || bb.IsNull() {
		return nil, err
	}
	// a window this wide covers the whole index
	far := coveringRadius(bb, x, y)
	r := bb.Distance(x, y) + initialRadius(bb, k, t.meta.Count)
	for {
		r = min(r, far)
		cands, err := t.window(x, y, r)
		if err != nil {
			return nil, err
		}
		if len(cands) >= k || r >= far {
			top := rank(cands, k)
			if len(top) == 0 || r >= far {
				return top, nil
			}
			kth := top[len(top)-1].Distance
			if kth <= r {
				return top, nil
			}
			cands, err = t.window(x, y, kth)
			if err != nil {
				return nil, err
			}
			return rank(cands, k), nil
		}
		r *= 2
	}
}

// WithinDistance returns every entry at most d from (x, y), closest first.
func (t *Tree) WithinDistance(x, y, d float64) ([]Neighbor, error) {
	if err := checkPoint(x, y); err != nil {
		return nil, err
	}
	var hits []Neighbor
	for e, err := range t.Search(WithinDistance(x, y, d)) {
		if err != nil {
			return nil, err
		}
		hits = append(hits, Neighbor{Entry: e, Distance: e.Envelope.Distance(x, y)})
	}
	return rank(hits, len(hits)), nil
}

// checkPoint rejects query points a search window cannot be built around.
func checkPoint(x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("%w: query point (%g, %g)", spindex_errors.ErrInvalidEnvelope, x, y)
	}
	return nil
}

func (t *Tree) window(x, y, r float64) ([]Neighbor, error) {
	var res []Neighbor
	for e, err := range t.Search(Intersecting(envelope.Point(x, y).Buffer(r))) {
		if err != nil {
			return nil, err
		}
		res = append(res, Neighbor{Entry: e, Distance: e.Envelope.Distance(x, y)})
	}
	return res, nil
}

func rank(cands []Neighbor, k int) []Neighbor {
	var h utils.Heap[float64, Neighbor]
	for _, c := range cands {
		h.Push(c.Distance, c)
	}
	res := make([]Neighbor, 0, min(k, h.Len()))
	for len(res) < k && h.Len() > 0 {
		res = append(res, h.Pop().Value)
	}
	return res
}

// initialRadius is the radius of a disc expected to hold k of count
// uniformly spread entries.
func initialRadius(bb envelope.Envelope, k, count int) float64 {
	if count < 1 {
		count = 1
	}
	r := math.Sqrt(bb.Area() * float64(k) / float64(count) / math.Pi)
	if r > 0 {
		return r
	}
	r = max(bb.Width(), bb.Height()) * float64(k) / float64(count)
	if r > 0 {
		return r
	}
	return 1
}

func coveringRadius(bb envelope.Envelope, x, y float64) float64 {
	dx := max(math.Abs(x-bb.MinX), math.Abs(x-bb.MaxX))
	dy := max(math.Abs(y-bb.MinY), math.Abs(y-bb.MaxY))
	return math.Max(dx, dy)
}
