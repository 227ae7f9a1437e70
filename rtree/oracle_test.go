package rtree_test

import (
	"math/rand"
	"testing"

	"github.com/dhconnelly/rtreego"
	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/rtree"
	testutils "github.com/drpcorg/spindex/test_utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type oracleBox struct {
	id   rtree.EntryID
	rect rtreego.Rect
}

func (b *oracleBox) Bounds() rtreego.Rect {
	return b.rect
}

func toRect(t *testing.T, e envelope.Envelope) rtreego.Rect {
	r, err := rtreego.NewRect(rtreego.Point{e.MinX, e.MinY}, []float64{e.Width(), e.Height()})
	require.NoError(t, err)
	return r
}

// Window queries must agree with an independent R-tree implementation.
func TestTree_AgreesWithRtreego(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	boxes := testutils.RandomBoxes(rng, 3000, 1000, 15)

	tree, _ := openMem(t, rtree.Options{MaxFanout: 16, MinFanout: 6})
	require.NoError(t, tree.AddAll(boxes, nil))
	// drop a third to exercise reorganisation; the oracle only sees the rest
	for _, b := range boxes[:1000] {
		require.NoError(t, tree.Remove(b.ID))
	}
	oracle := rtreego.NewTree(2, 6, 16)
	for _, b := range boxes[1000:] {
		oracle.Insert(&oracleBox{id: b.ID, rect: toRect(t, b.Envelope)})
	}

	for i := 0; i < 100; i++ {
		x, y := rng.Float64()*1000, rng.Float64()*1000
		w := envelope.New(x, y, x+1+rng.Float64()*150, y+1+rng.Float64()*150)

		want := make(map[rtree.EntryID]struct{})
		for _, s := range oracle.SearchIntersect(toRect(t, w)) {
			want[s.(*oracleBox).id] = struct{}{}
		}
		got := searchSet(t, tree, rtree.Intersecting(w))
		assert.Equal(t, want, got, "window %s", w)
	}
}
