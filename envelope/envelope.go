// Package envelope implements axis-aligned bounding rectangles.
package envelope

import (
	"fmt"
	"math"

	"github.com/drpcorg/spindex/spindex_errors"
)

// Envelope is an axis-aligned rectangle. Min <= Max on both axes, except
// for Null which is the identity of Union.
type Envelope struct {
	MinX, MinY, MaxX, MaxY float64
}

// Null contains nothing; any envelope united with it is unchanged.
var Null = Envelope{
	MinX: math.Inf(1),
	MinY: math.Inf(1),
	MaxX: math.Inf(-1),
	MaxY: math.Inf(-1),
}

func New(minX, minY, maxX, maxY float64) Envelope {
	return Envelope{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Point returns the degenerate envelope of a single point.
func Point(x, y float64) Envelope {
	return Envelope{MinX: x, MinY: y, MaxX: x, MaxY: y}
}

func (e Envelope) IsNull() bool {
	return e.MinX > e.MaxX || e.MinY > e.MaxY
}

// Validate rejects NaN and infinite coordinates, inverted boxes and Null.
// Degenerate boxes (points, segments) are valid.
func (e Envelope) Validate() error {
	for _, v := range [...]float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %s", spindex_errors.ErrInvalidEnvelope, e)
		}
	}
	if e.MinX > e.MaxX || e.MinY > e.MaxY {
		return fmt.Errorf("%w: min exceeds max in %s", spindex_errors.ErrInvalidEnvelope, e)
	}
	return nil
}

func (e Envelope) Width() float64 {
	if e.IsNull() {
		return 0
	}
	return e.MaxX - e.MinX
}

func (e Envelope) Height() float64 {
	if e.IsNull() {
		return 0
	}
	return e.MaxY - e.MinY
}

// Area is zero for Null and for degenerate envelopes.
func (e Envelope) Area() float64 {
	return e.Width() * e.Height()
}

// Union returns the smallest envelope covering both.
func (e Envelope) Union(o Envelope) Envelope {
	if e.IsNull() {
		return o
	}
	if o.IsNull() {
		return e
	}
	return Envelope{
		MinX: min(e.MinX, o.MinX),
		MinY: min(e.MinY, o.MinY),
		MaxX: max(e.MaxX, o.MaxX),
		MaxY: max(e.MaxY, o.MaxY),
	}
}

// ExpandToInclude is Union under the name the tree code uses.
func (e Envelope) ExpandToInclude(o Envelope) Envelope {
	return e.Union(o)
}

// Intersects reports whether the closed rectangles share a point.
func (e Envelope) Intersects(o Envelope) bool {
	if e.IsNull() || o.IsNull() {
		return false
	}
	return e.MinX <= o.MaxX && o.MinX <= e.MaxX &&
		e.MinY <= o.MaxY && o.MinY <= e.MaxY
}

// Contains reports whether o lies entirely within e, boundary included.
func (e Envelope) Contains(o Envelope) bool {
	if e.IsNull() || o.IsNull() {
		return false
	}
	return e.MinX <= o.MinX && o.MaxX <= e.MaxX &&
		e.MinY <= o.MinY && o.MaxY <= e.MaxY
}

// Intersection is Null when the envelopes are disjoint.
func (e Envelope) Intersection(o Envelope) Envelope {
	if !e.Intersects(o) {
		return Null
	}
	return Envelope{
		MinX: max(e.MinX, o.MinX),
		MinY: max(e.MinY, o.MinY),
		MaxX: min(e.MaxX, o.MaxX),
		MaxY: min(e.MaxY, o.MaxY),
	}
}

// Enlargement is the area growth needed for e to cover o.
func (e Envelope) Enlargement(o Envelope) float64 {
	return e.Union(o).Area() - e.Area()
}

// DeadSpace is the area of the union not covered by either operand.
func (e Envelope) DeadSpace(o Envelope) float64 {
	return e.Union(o).Area() - e.Area() - o.Area()
}

func (e Envelope) Centre() (x, y float64) {
	return (e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2
}

// Distance is the euclidean distance from (x, y) to the nearest point of
// e, zero when the point lies inside.
func (e Envelope) Distance(x, y float64) float64 {
	if e.IsNull() {
		return math.Inf(1)
	}
	dx := max(e.MinX-x, 0, x-e.MaxX)
	dy := max(e.MinY-y, 0, y-e.MaxY)
	return math.Hypot(dx, dy)
}

// Buffer grows e by d on every side.
func (e Envelope) Buffer(d float64) Envelope {
	if e.IsNull() {
		return e
	}
	return Envelope{MinX: e.MinX - d, MinY: e.MinY - d, MaxX: e.MaxX + d, MaxY: e.MaxY + d}
}

func (e Envelope) Equal(o Envelope) bool {
	if e.IsNull() && o.IsNull() {
		return true
	}
	return e == o
}

func (e Envelope) String() string {
	if e.IsNull() {
		return "Env[null]"
	}
	return fmt.Sprintf("Env[%g:%g, %g:%g]", e.MinX, e.MaxX, e.MinY, e.MaxY)
}

// UnionAll folds Union over envs, Null for none.
func UnionAll(envs ...Envelope) Envelope {
	u := Null
	for _, e := range envs {
		u = u.Union(e)
	}
	return u
}
