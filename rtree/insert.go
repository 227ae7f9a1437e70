package rtree

import (
	"fmt"

	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/spindex_errors"
)

// Add indexes id under env. With an EntryRecorder a known id is replaced.
func (t *Tree) Add(id EntryID, env envelope.Envelope) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if err := env.Validate(); err != nil {
		return err
	}
	if t.recorder != nil {
		known, err := t.recorder.Exists(id)
		if err != nil {
			return err
		}
		if known {
			t.mon.AddCase(CaseReplaceExisting)
			if err := t.Remove(id); err != nil {
				return err
			}
		}
		if err := t.recorder.PutEntry(id, env); err != nil {
			return err
		}
	}
	if err := t.insert(Entry{ID: id, Envelope: env}); err != nil {
		return err
	}
	t.meta.Count++
	return t.saveMeta()
}

// chooseLeaf descends from the root and returns the root-to-leaf path.
func (t *Tree) chooseLeaf(env envelope.Envelope) ([]*Node, error) {
	n, err := t.root()
	if err != nil {
		return nil, err
	}
	path := []*Node{n}
	for !n.Leaf {
		if len(n.Children) == 0 {
			return nil, fmt.Errorf("%w: internal node %d without children", spindex_errors.ErrCorruptIndex, n.Ref)
		}
		var best *Node
		for _, ref := range n.Children {
			c, err := t.node(ref)
			if err != nil {
				return nil, err
			}
			if best == nil || betterSubtree(c.Envelope, best.Envelope, env) {
				best = c
			}
		}
		n = best
		path = append(path, n)
	}
	return path, nil
}

// betterSubtree reports whether candidate c beats the current best b for
// env: containers first, smallest container wins; otherwise least
// enlargement, then smallest resulting area.
func betterSubtree(c, b, env envelope.Envelope) bool {
	cIn, bIn := c.Contains(env), b.Contains(env)
	if cIn != bIn {
		return cIn
	}
	if cIn {
		return c.Area() < b.Area()
	}
	ce, be := c.Enlargement(env), b.Enlargement(env)
	if ce != be {
		return ce < be
	}
	return c.Union(env).Area() < b.Union(env).Area()
}

func (t *Tree) insert(e Entry) error {
	path, err := t.chooseLeaf(e.Envelope)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1]
	leaf.Entries = append(leaf.Entries, e)
	if leaf.Size() > t.meta.MaxFanout {
		t.mon.AddCase(CaseInsertSplit)
		return t.splitUp(path, e.Envelope)
	}
	t.mon.AddCase(CaseInsertNoSplit)
	leaf.Envelope = leaf.Envelope.Union(e.Envelope)
	if err := t.nodes.PutNode(leaf); err != nil {
		return err
	}
	return t.enlargeUp(path[:len(path)-1], e.Envelope)
}

// enlargeUp grows ancestors, deepest first, to cover env. It stops at the
// first one that already does.
func (t *Tree) enlargeUp(ancestors []*Node, env envelope.Envelope) error {
	for i := len(ancestors) - 1; i >= 0; i-- {
		a := ancestors[i]
		if a.Envelope.Contains(env) {
			return nil
		}
		a.Envelope = a.Envelope.Union(env)
		if err := t.nodes.PutNode(a); err != nil {
			return err
		}
	}
	return nil
}

// splitUp splits the overflowing last node of path and walks up linking
// siblings in, splitting again where a parent overflows in turn.
func (t *Tree) splitUp(path []*Node, env envelope.Envelope) error {
	for depth := len(path) - 1; depth >= 0; depth-- {
		n := path[depth]
		if n.Size() <= t.meta.MaxFanout {
			n.Envelope = n.Envelope.Union(env)
			if err := t.nodes.PutNode(n); err != nil {
				return err
			}
			return t.enlargeUp(path[:depth], env)
		}
		sibling, err := t.split(n)
		if err != nil {
			return err
		}
		if depth == 0 {
			root := &Node{
				Ref:      t.newRef(),
				Children: []NodeRef{n.Ref, sibling.Ref},
				Envelope: n.Envelope.Union(sibling.Envelope),
			}
			if err := t.nodes.PutNode(root); err != nil {
				return err
			}
			t.mon.AddCase(CaseRootSplit)
			t.replaceRoot(root.Ref, t.meta.Height+1)
			t.log.DebugCtx(t.ctx, "root split", "root", root.Ref, "height", t.meta.Height)
			return nil
		}
		parent := path[depth-1]
		parent.Children = append(parent.Children, sibling.Ref)
	}
	return nil
}
