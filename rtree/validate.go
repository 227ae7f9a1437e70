package rtree

import (
	"errors"
	"fmt"

	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/spindex_errors"
	"github.com/drpcorg/spindex/utils"
)

// Validate walks the whole tree and checks its structure: tight
// envelopes, fanout bounds, a uniform leaf depth, unique ids and the
// stored count. With an EntryStore every indexed entry must be stored
// under the same envelope; an EntryLister must hold nothing else.
// Failures wrap ErrCorruptIndex.
func (t *Tree) Validate(l Listener) error {
	l = listenerOrNull(l)
	l.Begin(t.meta.Count)
	defer l.Done()

	root, err := t.root()
	if err != nil {
		return err
	}
	if !root.Leaf && len(root.Children) == 0 {
		return corrupt("internal root %d has no children", root.Ref)
	}
	if root.Size() > t.meta.MaxFanout {
		return corrupt("root %d holds %d > %d", root.Ref, root.Size(), t.meta.MaxFanout)
	}
	v := validator{t: t, l: l, seen: make(map[EntryID]struct{})}
	if err := v.node(root, 1); err != nil {
		return err
	}
	if len(v.seen) != t.meta.Count {
		return corrupt("metadata count %d, tree holds %d", t.meta.Count, len(v.seen))
	}
	return v.strays()
}

// strays fails on a stored entry that no leaf holds.
func (v *validator) strays() error {
	lister, ok := v.t.entries.(EntryLister)
	if !ok {
		return nil
	}
	for id, err := range lister.EntryIDs() {
		if err != nil {
			return err
		}
		if _, held := v.seen[id]; !held {
			return corrupt("entry %q is stored but not indexed", id)
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{spindex_errors.ErrCorruptIndex}, args...)...)
}

type validator struct {
	t    *Tree
	l    Listener
	seen map[EntryID]struct{}
}

func (v *validator) node(n *Node, depth int) error {
	t := v.t
	if n.Ref != t.meta.Root && (n.Size() < t.meta.MinFanout || n.Size() > t.meta.MaxFanout) {
		return corrupt("node %d holds %d, bounds [%d, %d]", n.Ref, n.Size(), t.meta.MinFanout, t.meta.MaxFanout)
	}
	if n.Leaf {
		if depth != t.meta.Height {
			return corrupt("leaf %d at depth %d, height %d", n.Ref, depth, t.meta.Height)
		}
		if u := entriesEnvelope(n.Entries); !u.Equal(n.Envelope) {
			return corrupt("leaf %d envelope %s, entries cover %s", n.Ref, n.Envelope, u)
		}
		for _, e := range n.Entries {
			if _, dup := v.seen[e.ID]; dup {
				return corrupt("entry %q indexed twice", e.ID)
			}
			v.seen[e.ID] = struct{}{}
			if err := v.recorded(e); err != nil {
				return err
			}
		}
		v.l.Worked(len(n.Entries))
		return nil
	}
	u := envelope.Null
	for _, ref := range n.Children {
		c, err := t.node(ref)
		if err != nil {
			return err
		}
		u = u.Union(c.Envelope)
		if err := v.node(c, depth+1); err != nil {
			return err
		}
	}
	if !u.Equal(n.Envelope) {
		return corrupt("node %d envelope %s, children cover %s", n.Ref, n.Envelope, u)
	}
	return nil
}

func (v *validator) recorded(e Entry) error {
	if v.t.entries == nil {
		return nil
	}
	env, err := v.t.entries.EnvelopeOf(e.ID)
	if errors.Is(err, spindex_errors.ErrEntryNotFound) {
		return corrupt("entry %q is not recorded", e.ID)
	}
	if err != nil {
		return err
	}
	if !env.Equal(e.Envelope) {
		return corrupt("entry %q indexed as %s, recorded as %s", e.ID, e.Envelope, env)
	}
	return nil
}

// Stats describes the shape of a tree.
type Stats struct {
	Height      int
	Nodes       int
	Leaves      int
	Entries     int
	AvgLeafFill float64
	MaxFanout   int
	MinFanout   int
	SplitMode   SplitMode
}

// Stats walks the tree. AvgLeafFill is the mean entries/MaxFanout ratio.
func (t *Tree) Stats() (Stats, error) {
	s := Stats{
		Height:    t.meta.Height,
		MaxFanout: t.meta.MaxFanout,
		MinFanout: t.meta.MinFanout,
		SplitMode: t.meta.SplitMode,
	}
	var fill utils.AvgVal
	err := t.Walk(func(n *Node, _ int) error {
		s.Nodes++
		if n.Leaf {
			s.Leaves++
			s.Entries += len(n.Entries)
			fill.Add(float64(len(n.Entries)) / float64(t.meta.MaxFanout))
		}
		return nil
	})
	if err != nil {
		return s, err
	}
	s.AvgLeafFill = fill.Val()
	return s, nil
}
