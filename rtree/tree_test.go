package rtree_test

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/rtree"
	"github.com/drpcorg/spindex/spindex_errors"
	testutils "github.com/drpcorg/spindex/test_utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T, opts rtree.Options) (*rtree.Tree, *rtree.MemStore) {
	store := rtree.NewMemStore()
	tree, err := rtree.Open(store, store, opts)
	require.NoError(t, err)
	return tree, store
}

func searchSet(t *testing.T, tree *rtree.Tree, p rtree.Predicate) map[rtree.EntryID]struct{} {
	ids, err := tree.SearchIDs(p)
	require.NoError(t, err)
	set := testutils.IDSet(ids)
	assert.Len(t, set, len(ids), "search yielded duplicates")
	return set
}

func TestTree_RootSplitAt101(t *testing.T) {
	tree, store := openMem(t, rtree.Options{})
	rng := rand.New(rand.NewSource(1))
	points := testutils.RandomPoints(rng, 101, 1000)

	for _, p := range points[:100] {
		require.NoError(t, tree.Add(p.ID, p.Envelope))
	}
	root, err := store.Node(tree.Root())
	require.NoError(t, err)
	assert.True(t, root.Leaf)
	assert.Equal(t, 1, tree.Height())

	require.NoError(t, tree.Add(points[100].ID, points[100].Envelope))
	root, err = store.Node(tree.Root())
	require.NoError(t, err)
	assert.False(t, root.Leaf)
	require.Len(t, root.Children, 2)
	assert.Equal(t, 2, tree.Height())
	for _, ref := range root.Children {
		child, err := store.Node(ref)
		require.NoError(t, err)
		assert.True(t, child.Leaf)
		assert.GreaterOrEqual(t, child.Size(), 40)
		assert.LessOrEqual(t, child.Size(), 100)
	}
	assert.Equal(t, 101, tree.Count())
	assert.NoError(t, tree.Validate(nil))
}

func TestTree_DeleteRandomOrder(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts rtree.Options
	}{
		{"default", rtree.Options{}},
		{"small", rtree.Options{MaxFanout: 4, MinFanout: 2}},
		{"greene", rtree.Options{MaxFanout: 6, MinFanout: 3, SplitMode: rtree.GreeneSplit}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tree, _ := openMem(t, tc.opts)
			rng := rand.New(rand.NewSource(42))
			points := testutils.RandomPoints(rng, 1000, 1000)
			require.NoError(t, tree.AddAll(points, nil))
			require.NoError(t, tree.Validate(nil))

			rng.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })
			for i, p := range points[:999] {
				before := tree.Count()
				require.NoError(t, tree.Remove(p.ID), "remove #%d", i)
				assert.Equal(t, before-1, tree.Count())
				require.NoError(t, tree.Validate(nil), "after remove #%d", i)
			}
			assert.Equal(t, 1, tree.Count())
			ids, err := tree.SearchIDs(rtree.All())
			require.NoError(t, err)
			assert.Equal(t, []rtree.EntryID{points[999].ID}, ids)
			bb, err := tree.BoundingBox()
			require.NoError(t, err)
			assert.Equal(t, points[999].Envelope, bb)
		})
	}
}

func TestTree_IntersectScenario(t *testing.T) {
	tree, _ := openMem(t, rtree.Options{})
	require.NoError(t, tree.Add("A", envelope.New(0, 0, 1, 1)))
	require.NoError(t, tree.Add("B", envelope.New(5, 5, 6, 6)))
	require.NoError(t, tree.Add("C", envelope.New(0.5, 0.5, 1.5, 1.5)))

	got := searchSet(t, tree, rtree.Intersecting(envelope.New(0, 0, 2, 2)))
	assert.Equal(t, testutils.IDSet([]rtree.EntryID{"A", "C"}), got)

	bb, err := tree.BoundingBox()
	require.NoError(t, err)
	assert.Equal(t, envelope.New(0, 0, 6, 6), bb)
}

func TestTree_RoundTrip(t *testing.T) {
	tree, store := openMem(t, rtree.Options{})
	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, tree.Add("x", envelope.New(1, 2, 3, 4)))
	empty, err = tree.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)

	require.NoError(t, tree.Remove("x"))
	empty, err = tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
	bb, err := tree.BoundingBox()
	require.NoError(t, err)
	assert.True(t, bb.IsNull())
	assert.Equal(t, 0, tree.Count())
	ok, err := store.Exists("x")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, tree.Remove("x"), spindex_errors.ErrEntryNotFound)
}

func TestTree_IdempotentSearch(t *testing.T) {
	tree, _ := openMem(t, rtree.Options{MaxFanout: 8, MinFanout: 3})
	rng := rand.New(rand.NewSource(3))
	require.NoError(t, tree.AddAll(testutils.RandomBoxes(rng, 500, 100, 5), nil))
	p := rtree.Intersecting(envelope.New(20, 20, 60, 60))
	first := searchSet(t, tree, p)
	second := searchSet(t, tree, p)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestTree_SearchMatchesBruteForce(t *testing.T) {
	for _, mode := range []rtree.SplitMode{rtree.QuadraticSplit, rtree.GreeneSplit} {
		t.Run(mode.String(), func(t *testing.T) {
			tree, _ := openMem(t, rtree.Options{MaxFanout: 8, MinFanout: 3, SplitMode: mode})
			rng := rand.New(rand.NewSource(11))
			boxes := testutils.RandomBoxes(rng, 2000, 1000, 20)
			require.NoError(t, tree.AddAll(boxes, nil))
			require.NoError(t, tree.Validate(nil))

			for i := 0; i < 50; i++ {
				x, y := rng.Float64()*1000, rng.Float64()*1000
				w := envelope.New(x, y, x+rng.Float64()*200, y+rng.Float64()*200)

				assert.Equal(t,
					testutils.BruteForce(boxes, func(e rtree.Entry) bool { return w.Intersects(e.Envelope) }),
					searchSet(t, tree, rtree.Intersecting(w)))
				assert.Equal(t,
					testutils.BruteForce(boxes, func(e rtree.Entry) bool { return w.Contains(e.Envelope) }),
					searchSet(t, tree, rtree.Within(w)))
				pt := envelope.Point(x, y)
				assert.Equal(t,
					testutils.BruteForce(boxes, func(e rtree.Entry) bool { return e.Envelope.Contains(pt) }),
					searchSet(t, tree, rtree.Covering(pt)))
				assert.Equal(t,
					testutils.BruteForce(boxes, func(e rtree.Entry) bool { return e.Envelope.Distance(x, y) <= 30 }),
					searchSet(t, tree, rtree.WithinDistance(x, y, 30)))
			}
		})
	}
}

func TestTree_WithEntryCheck(t *testing.T) {
	tree, _ := openMem(t, rtree.Options{})
	require.NoError(t, tree.Add("keep", envelope.New(0, 0, 1, 1)))
	require.NoError(t, tree.Add("drop", envelope.New(0, 0, 1, 1)))
	p := rtree.WithEntryCheck(rtree.All(), func(e rtree.Entry) bool { return e.ID == "keep" })
	assert.Equal(t, testutils.IDSet([]rtree.EntryID{"keep"}), searchSet(t, tree, p))
}

func TestTree_SearchStopsEarly(t *testing.T) {
	tree, _ := openMem(t, rtree.Options{MaxFanout: 4, MinFanout: 2})
	rng := rand.New(rand.NewSource(5))
	require.NoError(t, tree.AddAll(testutils.RandomPoints(rng, 100, 10), nil))
	n := 0
	for _, err := range tree.Search(rtree.All()) {
		require.NoError(t, err)
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestTree_Replace(t *testing.T) {
	mon := &rtree.RecordingMonitor{}
	tree, _ := openMem(t, rtree.Options{Monitor: mon})
	require.NoError(t, tree.Add("a", envelope.New(0, 0, 1, 1)))
	require.NoError(t, tree.Add("a", envelope.New(10, 10, 11, 11)))
	assert.Equal(t, 1, tree.Count())
	assert.Empty(t, searchSet(t, tree, rtree.Intersecting(envelope.New(0, 0, 1, 1))))
	assert.Len(t, searchSet(t, tree, rtree.Intersecting(envelope.New(10, 10, 11, 11))), 1)
	assert.Equal(t, int64(1), mon.Case(rtree.CaseReplaceExisting))
	assert.NoError(t, tree.Validate(nil))
}

func TestTree_ExternalEntryStore(t *testing.T) {
	entries := testutils.EntryMap{}
	store := rtree.NewMemStore()
	tree, err := rtree.Open(store, entries, rtree.Options{MaxFanout: 4, MinFanout: 2})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(9))
	points := testutils.RandomPoints(rng, 60, 100)
	for _, p := range points {
		entries[p.ID] = p.Envelope
		require.NoError(t, tree.Add(p.ID, p.Envelope))
	}

	require.NoError(t, tree.Remove(points[0].ID))
	delete(entries, points[0].ID)

	// a stale envelope still finds the entry through a full scan
	entries[points[1].ID] = envelope.Point(-50, -50)
	require.NoError(t, tree.Remove(points[1].ID))

	// not in the entry store at all
	delete(entries, points[2].ID)
	require.NoError(t, tree.Remove(points[2].ID))

	require.NoError(t, tree.RemoveHint(points[3].ID, points[3].Envelope))
	assert.ErrorIs(t, tree.Remove("nope"), spindex_errors.ErrEntryNotFound)
	assert.Equal(t, 56, tree.Count())
	assert.NoError(t, tree.Validate(nil))
}

func TestTree_ReadOnly(t *testing.T) {
	tree, store := openMem(t, rtree.Options{})
	require.NoError(t, tree.Add("a", envelope.New(0, 0, 1, 1)))

	snap := store.Snapshot()
	ro, err := rtree.Open(snap, snap, rtree.Options{})
	require.NoError(t, err)
	assert.True(t, ro.ReadOnly())
	assert.ErrorIs(t, ro.Add("b", envelope.New(0, 0, 1, 1)), spindex_errors.ErrReadOnlyIndex)
	assert.ErrorIs(t, ro.Remove("a"), spindex_errors.ErrReadOnlyIndex)
	assert.ErrorIs(t, ro.Clear(nil), spindex_errors.ErrReadOnlyIndex)
	assert.Len(t, searchSet(t, ro, rtree.All()), 1)

	fresh := rtree.NewMemStore()
	empty, err := rtree.Open(fresh, nil, rtree.Options{ReadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.NodeCount())
	assert.Empty(t, searchSet(t, empty, rtree.All()))
	isEmpty, err := empty.IsEmpty()
	require.NoError(t, err)
	assert.True(t, isEmpty)
}

func TestTree_InvalidEnvelope(t *testing.T) {
	tree, store := openMem(t, rtree.Options{})
	require.NoError(t, tree.Add("a", envelope.New(0, 0, 1, 1)))
	nodes := store.NodeCount()

	assert.ErrorIs(t, tree.Add("nan", envelope.New(math.NaN(), 0, 1, 1)), spindex_errors.ErrInvalidEnvelope)
	assert.ErrorIs(t, tree.Add("inv", envelope.New(2, 0, 1, 1)), spindex_errors.ErrInvalidEnvelope)
	err := tree.AddAll([]rtree.Entry{
		{ID: "ok", Envelope: envelope.New(0, 0, 1, 1)},
		{ID: "inf", Envelope: envelope.New(0, 0, math.Inf(1), 1)},
	}, nil)
	assert.ErrorIs(t, err, spindex_errors.ErrInvalidEnvelope)

	assert.Equal(t, 1, tree.Count())
	assert.Equal(t, nodes, store.NodeCount())
	ok, err := store.Exists("ok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTree_Nearest(t *testing.T) {
	tree, _ := openMem(t, rtree.Options{MaxFanout: 8, MinFanout: 3})
	rng := rand.New(rand.NewSource(21))
	points := testutils.RandomPoints(rng, 500, 100)
	require.NoError(t, tree.AddAll(points, nil))

	for i := 0; i < 40; i++ {
		x, y := rng.Float64()*160-30, rng.Float64()*160-30
		k := 1 + rng.Intn(12)
		got, err := tree.Nearest(x, y, k)
		require.NoError(t, err)
		require.Len(t, got, k)

		want := make([]float64, len(points))
		for j, p := range points {
			want[j] = p.Envelope.Distance(x, y)
		}
		slices.Sort(want)
		for j, n := range got {
			assert.InDelta(t, want[j], n.Distance, 1e-9, "query %d rank %d", i, j)
		}
	}

	all, err := tree.Nearest(50, 50, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 500)
	none, err := tree.Nearest(50, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	for _, q := range [][2]float64{{math.Inf(1), 0}, {0, math.Inf(-1)}, {math.NaN(), 0}} {
		_, err = tree.Nearest(q[0], q[1], 1)
		assert.ErrorIs(t, err, spindex_errors.ErrInvalidEnvelope)
		_, err = tree.WithinDistance(q[0], q[1], 10)
		assert.ErrorIs(t, err, spindex_errors.ErrInvalidEnvelope)
	}
}

func TestTree_WithinDistanceSorted(t *testing.T) {
	tree, _ := openMem(t, rtree.Options{})
	require.NoError(t, tree.Add("far", envelope.Point(3, 0)))
	require.NoError(t, tree.Add("near", envelope.Point(1, 0)))
	require.NoError(t, tree.Add("out", envelope.Point(9, 0)))
	got, err := tree.WithinDistance(0, 0, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rtree.EntryID("near"), got[0].ID)
	assert.Equal(t, rtree.EntryID("far"), got[1].ID)
	assert.Equal(t, 3.0, got[1].Distance)
}

func TestTree_CollapseRoot(t *testing.T) {
	tree, store := openMem(t, rtree.Options{MaxFanout: 4, MinFanout: 2, CollapseRoot: true})
	rng := rand.New(rand.NewSource(13))
	points := testutils.RandomPoints(rng, 200, 100)
	require.NoError(t, tree.AddAll(points, nil))
	for _, p := range points[:195] {
		require.NoError(t, tree.Remove(p.ID))
		root, err := store.Node(tree.Root())
		require.NoError(t, err)
		assert.False(t, !root.Leaf && len(root.Children) == 1, "single-child root left behind")
		require.NoError(t, tree.Validate(nil))
	}
	assert.LessOrEqual(t, tree.Height(), 3)
}

func TestTree_ClearRebuild(t *testing.T) {
	tree, store := openMem(t, rtree.Options{MaxFanout: 6, MinFanout: 2})
	rng := rand.New(rand.NewSource(17))
	boxes := testutils.RandomBoxes(rng, 300, 100, 3)
	require.NoError(t, tree.AddAll(boxes, nil))
	for _, b := range boxes[:250] {
		require.NoError(t, tree.Remove(b.ID))
	}

	l := &countingListener{}
	require.NoError(t, tree.Rebuild(l))
	assert.Equal(t, 50, l.begun)
	assert.Equal(t, 50, l.worked)
	assert.True(t, l.done)
	assert.Equal(t, 50, tree.Count())
	require.NoError(t, tree.Validate(nil))
	assert.Equal(t, testutils.BruteForce(boxes[250:], func(rtree.Entry) bool { return true }),
		searchSet(t, tree, rtree.All()))

	require.NoError(t, tree.Clear(nil))
	assert.Equal(t, 0, tree.Count())
	assert.Equal(t, 1, tree.Height())
	assert.Equal(t, 1, store.NodeCount())
	ok, err := store.Exists(boxes[260].ID)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tree.Validate(nil))
}

func TestTree_ValidateDetectsCorruption(t *testing.T) {
	tree, store := openMem(t, rtree.Options{MaxFanout: 4, MinFanout: 2})
	rng := rand.New(rand.NewSource(19))
	require.NoError(t, tree.AddAll(testutils.RandomPoints(rng, 30, 10), nil))
	require.NoError(t, tree.Validate(nil))

	root, err := store.Node(tree.Root())
	require.NoError(t, err)
	require.False(t, root.Leaf)
	child, err := store.Node(root.Children[0])
	require.NoError(t, err)
	grown := child.Clone()
	grown.Envelope = grown.Envelope.Buffer(1)
	require.NoError(t, store.PutNode(grown))
	assert.ErrorIs(t, tree.Validate(nil), spindex_errors.ErrCorruptIndex)

	require.NoError(t, store.PutNode(child))
	require.NoError(t, tree.Validate(nil))

	require.NoError(t, store.DeleteNode(child.Ref))
	var searchErr error
	for _, err := range tree.Search(rtree.All()) {
		if err != nil {
			searchErr = err
		}
	}
	assert.ErrorIs(t, searchErr, spindex_errors.ErrCorruptIndex)
}

func TestTree_OpenOptions(t *testing.T) {
	_, err := rtree.Open(rtree.NewMemStore(), nil, rtree.Options{MaxFanout: 4, MinFanout: 3})
	assert.ErrorIs(t, err, spindex_errors.ErrInvalidConfig)

	store := rtree.NewMemStore()
	tree, err := rtree.Open(store, store, rtree.Options{MaxFanout: 8, MinFanout: 3, SplitMode: rtree.GreeneSplit})
	require.NoError(t, err)
	require.NoError(t, tree.Add("a", envelope.Point(1, 1)))

	again, err := rtree.Open(store, store, rtree.Options{})
	require.NoError(t, err)
	meta := again.Meta()
	assert.Equal(t, 8, meta.MaxFanout)
	assert.Equal(t, 3, meta.MinFanout)
	assert.Equal(t, rtree.GreeneSplit, meta.SplitMode)
	assert.Equal(t, 1, again.Count())
}

func TestTree_MonitorAndStats(t *testing.T) {
	mon := &rtree.RecordingMonitor{}
	tree, _ := openMem(t, rtree.Options{MaxFanout: 4, MinFanout: 2, Monitor: mon})
	rng := rand.New(rand.NewSource(23))
	points := testutils.RandomPoints(rng, 100, 100)
	require.NoError(t, tree.AddAll(points, nil))
	assert.Positive(t, mon.Splits())
	assert.Positive(t, mon.Case(rtree.CaseRootSplit))
	assert.Equal(t, tree.Height(), mon.Height())

	for _, p := range points[:60] {
		require.NoError(t, tree.Remove(p.ID))
	}
	assert.Positive(t, mon.Case(rtree.CaseRemoveReorg))
	assert.Positive(t, mon.Reinserted())

	mon.ResetVisits()
	_, err := tree.SearchIDs(rtree.Intersecting(envelope.New(0, 0, 1, 1)))
	require.NoError(t, err)
	assert.Positive(t, mon.Visited())

	stats, err := tree.Stats()
	require.NoError(t, err)
	assert.Equal(t, 40, stats.Entries)
	assert.Equal(t, tree.Height(), stats.Height)
	assert.GreaterOrEqual(t, stats.Nodes, stats.Leaves)
	assert.Greater(t, stats.AvgLeafFill, 0.0)
	assert.LessOrEqual(t, stats.AvgLeafFill, 1.0)
}

type countingListener struct {
	begun, worked int
	done          bool
}

func (l *countingListener) Begin(units int) { l.begun = units }

func (l *countingListener) Worked(units int) { l.worked += units }

func (l *countingListener) Done() { l.done = true }

func TestTree_ValidateStoredEntries(t *testing.T) {
	tree, store := openMem(t, rtree.Options{MaxFanout: 4, MinFanout: 2})
	rng := rand.New(rand.NewSource(23))
	points := testutils.RandomPoints(rng, 20, 10)
	require.NoError(t, tree.AddAll(points, nil))
	require.NoError(t, tree.Validate(nil))

	require.NoError(t, store.PutEntry(points[3].ID, envelope.Point(500, 500)))
	assert.ErrorIs(t, tree.Validate(nil), spindex_errors.ErrCorruptIndex)
	require.NoError(t, store.PutEntry(points[3].ID, points[3].Envelope))

	require.NoError(t, store.DeleteEntry(points[4].ID))
	assert.ErrorIs(t, tree.Validate(nil), spindex_errors.ErrCorruptIndex)
	require.NoError(t, store.PutEntry(points[4].ID, points[4].Envelope))
	require.NoError(t, tree.Validate(nil))

	require.NoError(t, store.PutEntry("ghost", envelope.Point(1, 1)))
	err := tree.Validate(nil)
	assert.ErrorIs(t, err, spindex_errors.ErrCorruptIndex)
	assert.Contains(t, err.Error(), `"ghost"`)
}

// failingLeaves refuses leaf writes once armed.
type failingLeaves struct {
	*rtree.MemStore
	armed bool
}

func (s *failingLeaves) PutNode(n *rtree.Node) error {
	if s.armed && n.Leaf {
		return errors.New("disk full")
	}
	return s.MemStore.PutNode(n)
}

// armOnReorg arms the store as soon as a removal starts reorganising.
type armOnReorg struct {
	rtree.NopMonitor
	store *failingLeaves
}

func (m armOnReorg) AddCase(name string) {
	if name == rtree.CaseRemoveReorg {
		m.store.armed = true
	}
}

func TestTree_LostOrphansAreCorruption(t *testing.T) {
	mem := rtree.NewMemStore()
	nodes := &failingLeaves{MemStore: mem}
	tree, err := rtree.Open(nodes, mem, rtree.Options{
		MaxFanout: 4,
		MinFanout: 2,
		Monitor:   armOnReorg{store: nodes},
	})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(29))
	points := testutils.RandomPoints(rng, 40, 100)
	require.NoError(t, tree.AddAll(points, nil))

	var reorgErr error
	for _, p := range points {
		if reorgErr = tree.Remove(p.ID); reorgErr != nil {
			break
		}
	}
	require.Error(t, reorgErr)
	assert.True(t, nodes.armed)
	assert.ErrorIs(t, reorgErr, spindex_errors.ErrCorruptIndex)
	assert.Contains(t, reorgErr.Error(), "reinserted 0 of")
	assert.Contains(t, reorgErr.Error(), "disk full")
}
