package testutils

import (
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/rtree"
	"github.com/drpcorg/spindex/spindex_errors"
)

// TestDirs returns fresh, removed-on-cleanup directory names.
func TestDirs(t testing.TB, names ...string) []string {
	dirs := make([]string, 0, len(names))
	base := t.TempDir()
	for _, name := range names {
		dir := base + string(os.PathSeparator) + name
		_ = os.RemoveAll(dir)
		dirs = append(dirs, dir)
	}
	return dirs
}

// RandomPoints makes n point entries in [0, span)^2 named p0..pN.
func RandomPoints(rng *rand.Rand, n int, span float64) []rtree.Entry {
	res := make([]rtree.Entry, n)
	for i := range res {
		res[i] = rtree.Entry{
			ID:       rtree.EntryID(fmt.Sprintf("p%d", i)),
			Envelope: envelope.Point(rng.Float64()*span, rng.Float64()*span),
		}
	}
	return res
}

// RandomBoxes makes n boxes with sides in (0, maxSide] named b0..bN.
func RandomBoxes(rng *rand.Rand, n int, span, maxSide float64) []rtree.Entry {
	res := make([]rtree.Entry, n)
	for i := range res {
		x, y := rng.Float64()*span, rng.Float64()*span
		w, h := maxSide*(0.01+0.99*rng.Float64()), maxSide*(0.01+0.99*rng.Float64())
		res[i] = rtree.Entry{
			ID:       rtree.EntryID(fmt.Sprintf("b%d", i)),
			Envelope: envelope.New(x, y, x+w, y+h),
		}
	}
	return res
}

// BruteForce filters entries the way a predicate search should.
func BruteForce(entries []rtree.Entry, admit func(rtree.Entry) bool) map[rtree.EntryID]struct{} {
	res := make(map[rtree.EntryID]struct{})
	for _, e := range entries {
		if admit(e) {
			res[e.ID] = struct{}{}
		}
	}
	return res
}

func IDSet(ids []rtree.EntryID) map[rtree.EntryID]struct{} {
	res := make(map[rtree.EntryID]struct{}, len(ids))
	for _, id := range ids {
		res[id] = struct{}{}
	}
	return res
}

// EntryMap is an external EntryStore kept by the caller, not the tree.
type EntryMap map[rtree.EntryID]envelope.Envelope

func (m EntryMap) EnvelopeOf(id rtree.EntryID) (envelope.Envelope, error) {
	env, ok := m[id]
	if !ok {
		return envelope.Null, fmt.Errorf("%w: %q", spindex_errors.ErrEntryNotFound, id)
	}
	return env, nil
}

func (m EntryMap) Exists(id rtree.EntryID) (bool, error) {
	_, ok := m[id]
	return ok, nil
}
