package envelope

import (
	"math"
	"testing"

	"github.com/drpcorg/spindex/spindex_errors"
	"github.com/stretchr/testify/assert"
)

func TestEnvelope_Union(t *testing.T) {
	a := New(0, 0, 1, 1)
	b := New(2, -1, 3, 0.5)
	assert.Equal(t, New(0, -1, 3, 1), a.Union(b))
	assert.Equal(t, a, a.Union(Null))
	assert.Equal(t, a, Null.Union(a))
	assert.True(t, Null.Union(Null).IsNull())
	assert.Equal(t, New(0, 0, 2, 2), UnionAll(Point(0, 0), Point(2, 2)))
	assert.True(t, UnionAll().IsNull())
}

func TestEnvelope_Area(t *testing.T) {
	assert.Equal(t, 6.0, New(0, 0, 2, 3).Area())
	assert.Equal(t, 0.0, Point(5, 5).Area())
	assert.Equal(t, 0.0, Null.Area())
	assert.Equal(t, 3.0, New(0, 0, 1, 1).Enlargement(New(1, 1, 2, 2)))
	assert.Equal(t, 0.0, New(0, 0, 4, 4).Enlargement(New(1, 1, 2, 2)))
	assert.Equal(t, 2.0, New(0, 0, 1, 1).DeadSpace(New(1, 1, 2, 2)))
}

func TestEnvelope_IntersectsContains(t *testing.T) {
	a := New(0, 0, 10, 10)
	assert.True(t, a.Intersects(New(10, 10, 20, 20)), "touching boundaries intersect")
	assert.False(t, a.Intersects(New(10.1, 0, 20, 20)))
	assert.False(t, a.Intersects(Null))
	assert.True(t, a.Contains(a))
	assert.True(t, a.Contains(Point(0, 10)))
	assert.False(t, a.Contains(New(5, 5, 11, 6)))
	assert.False(t, Null.Contains(Null))
	assert.Equal(t, New(5, 5, 10, 10), a.Intersection(New(5, 5, 15, 15)))
	assert.True(t, a.Intersection(New(20, 20, 30, 30)).IsNull())
}

func TestEnvelope_Distance(t *testing.T) {
	a := New(0, 0, 2, 2)
	assert.Equal(t, 0.0, a.Distance(1, 1))
	assert.Equal(t, 3.0, a.Distance(5, 1))
	assert.Equal(t, 5.0, a.Distance(-3, -4))
	assert.True(t, math.IsInf(Null.Distance(0, 0), 1))
	assert.Equal(t, New(-1, -1, 3, 3), a.Buffer(1))
	x, y := a.Centre()
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 1.0, y)
}

func TestEnvelope_Validate(t *testing.T) {
	assert.NoError(t, Point(1, 1).Validate())
	assert.NoError(t, New(-5, -5, 5, 5).Validate())
	assert.ErrorIs(t, New(1, 0, 0, 1).Validate(), spindex_errors.ErrInvalidEnvelope)
	assert.ErrorIs(t, New(math.NaN(), 0, 1, 1).Validate(), spindex_errors.ErrInvalidEnvelope)
	assert.ErrorIs(t, New(0, 0, math.Inf(1), 1).Validate(), spindex_errors.ErrInvalidEnvelope)
	assert.ErrorIs(t, Null.Validate(), spindex_errors.ErrInvalidEnvelope)
}
