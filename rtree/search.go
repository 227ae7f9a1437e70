package rtree

import (
	"iter"

	"github.com/drpcorg/spindex/envelope"
)

// Predicate drives a search. AdmitsNode prunes whole subtrees by their
// envelope; AdmitsEntry filters leaf entries and may consult the record
// behind the entry for an exact test.
type Predicate interface {
	AdmitsNode(env envelope.Envelope) bool
	AdmitsEntry(e Entry) bool
}

// PredicateFuncs adapts a pair of functions. A nil function admits all.
type PredicateFuncs struct {
	Node  func(env envelope.Envelope) bool
	Entry func(e Entry) bool
}

func (p PredicateFuncs) AdmitsNode(env envelope.Envelope) bool {
	return p.Node == nil || p.Node(env)
}

func (p PredicateFuncs) AdmitsEntry(e Entry) bool {
	return p.Entry == nil || p.Entry(e)
}

// All admits everything.
func All() Predicate {
	return PredicateFuncs{}
}

// Intersecting admits entries whose envelope intersects w.
func Intersecting(w envelope.Envelope) Predicate {
	return PredicateFuncs{
		Node:  w.Intersects,
		Entry: func(e Entry) bool { return w.Intersects(e.Envelope) },
	}
}

// Within admits entries whose envelope lies inside w.
func Within(w envelope.Envelope) Predicate {
	return PredicateFuncs{
		Node:  w.Intersects,
		Entry: func(e Entry) bool { return w.Contains(e.Envelope) },
	}
}

// Covering admits entries whose envelope contains w, e.g. the candidates
// for a point-in-polygon lookup.
func Covering(w envelope.Envelope) Predicate {
	return PredicateFuncs{
		Node:  func(env envelope.Envelope) bool { return env.Contains(w) },
		Entry: func(e Entry) bool { return e.Envelope.Contains(w) },
	}
}

// WithinDistance admits entries whose envelope is at most d from (x, y).
func WithinDistance(x, y, d float64) Predicate {
	return PredicateFuncs{
		Node:  func(env envelope.Envelope) bool { return env.Distance(x, y) <= d },
		Entry: func(e Entry) bool { return e.Envelope.Distance(x, y) <= d },
	}
}

// WithEntryCheck narrows p by an exact test run on entries p admits.
func WithEntryCheck(p Predicate, check func(e Entry) bool) Predicate {
	return PredicateFuncs{
		Node:  p.AdmitsNode,
		Entry: func(e Entry) bool { return p.AdmitsEntry(e) && check(e) },
	}
}

// Search walks the tree depth first, lazily. Every call starts a fresh
// walk; a storage error is yielded once and ends the sequence.
func (t *Tree) Search(p Predicate) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		root, err := t.root()
		if err != nil {
			yield(Entry{}, err)
			return
		}
		t.walk(root, p, yield)
	}
}

func (t *Tree) walk(n *Node, p Predicate, yield func(Entry, error) bool) bool {
	if !p.AdmitsNode(n.Envelope) {
		return true
	}
	t.mon.NodeVisited(n.Leaf)
	if n.Leaf {
		for _, e := range n.Entries {
			if p.AdmitsEntry(e) && !yield(e, nil) {
				return false
			}
		}
		return true
	}
	for _, ref := range n.Children {
		c, err := t.node(ref)
		if err != nil {
			yield(Entry{}, err)
			return false
		}
		if !t.walk(c, p, yield) {
			return false
		}
	}
	return true
}

// SearchIDs drains Search into a slice of ids.
func (t *Tree) SearchIDs(p Predicate) ([]EntryID, error) {
	var ids []EntryID
	for e, err := range t.Search(p) {
		if err != nil {
			return nil, err
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// Entries lists everything in the index.
func (t *Tree) Entries() ([]Entry, error) {
	res := make([]Entry, 0, t.meta.Count)
	for e, err := range t.Search(All()) {
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// Walk calls fn on every node, parents before children, with the root at
// depth 0.
func (t *Tree) Walk(fn func(n *Node, depth int) error) error {
	var walk func(ref NodeRef, depth int) error
	walk = func(ref NodeRef, depth int) error {
		n, err := t.node(ref)
		if err != nil {
			return err
		}
		if err := fn(n, depth); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if t.meta.Root == 0 {
		return nil
	}
	return walk(t.meta.Root, 0)
}
