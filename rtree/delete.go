package rtree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/spindex_errors"
)

// Remove deletes id from the index, ErrEntryNotFound if it is not there.
func (t *Tree) Remove(id EntryID) error {
	return t.remove(id, nil)
}

// RemoveHint is Remove given the envelope id was indexed under; the leaf
// search then only descends into nodes containing it.
func (t *Tree) RemoveHint(id EntryID, hint envelope.Envelope) error {
	return t.remove(id, &hint)
}

func (t *Tree) remove(id EntryID, hint *envelope.Envelope) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if hint == nil && t.entries != nil {
		env, err := t.entries.EnvelopeOf(id)
		switch {
		case err == nil:
			hint = &env
		case errors.Is(err, spindex_errors.ErrEntryNotFound):
			if t.recorder != nil {
				return err
			}
		default:
			return err
		}
	}
	path, idx, err := t.findEntry(id, hint)
	if err == nil && path == nil && hint != nil {
		// stale hint, fall back to a full scan
		path, idx, err = t.findEntry(id, nil)
	}
	if err != nil {
		return err
	}
	if path == nil {
		return fmt.Errorf("%w: %q", spindex_errors.ErrEntryNotFound, id)
	}

	leaf := path[len(path)-1]
	leaf.Entries = slices.Delete(leaf.Entries, idx, idx+1)
	leaf.Envelope = entriesEnvelope(leaf.Entries)
	if err := t.nodes.PutNode(leaf); err != nil {
		return err
	}
	if len(path) == 1 || leaf.Size() >= t.meta.MinFanout {
		t.mon.AddCase(CaseRemoveNoReorg)
		err = t.shrinkUp(path)
	} else {
		t.mon.AddCase(CaseRemoveReorg)
		err = t.reorganize(path)
	}
	if err != nil {
		return err
	}
	if t.recorder != nil {
		if err := t.recorder.DeleteEntry(id); err != nil {
			return err
		}
	}
	t.meta.Count--
	if t.collapse {
		if err := t.collapseRoot(); err != nil {
			return err
		}
	}
	return t.saveMeta()
}

// findEntry returns the root-to-leaf path to the leaf holding id and the
// entry position in it, or a nil path if there is none. With a hint only
// subtrees containing it are searched.
func (t *Tree) findEntry(id EntryID, hint *envelope.Envelope) ([]*Node, int, error) {
	root, err := t.root()
	if err != nil {
		return nil, -1, err
	}
	var path []*Node
	var walk func(n *Node) (int, error)
	walk = func(n *Node) (int, error) {
		path = append(path, n)
		if n.Leaf {
			if i := n.entryIndex(id); i >= 0 {
				return i, nil
			}
		} else {
			for _, ref := range n.Children {
				c, err := t.node(ref)
				if err != nil {
					return -1, err
				}
				if hint != nil && !c.Envelope.Contains(*hint) {
					continue
				}
				if i, err := walk(c); err != nil || i >= 0 {
					return i, err
				}
			}
		}
		path = path[:len(path)-1]
		return -1, nil
	}
	i, err := walk(root)
	if err != nil || i < 0 {
		return nil, -1, err
	}
	return path, i, nil
}

// shrinkUp re-unions the ancestors of the last node on path, stopping
// once an envelope comes out unchanged.
func (t *Tree) shrinkUp(path []*Node) error {
	for i := len(path) - 2; i >= 0; i-- {
		a := path[i]
		u, err := t.childrenEnvelope(a)
		if err != nil {
			return err
		}
		if u.Equal(a.Envelope) {
			return nil
		}
		a.Envelope = u
		if err := t.nodes.PutNode(a); err != nil {
			return err
		}
	}
	return nil
}

// reorganize handles an underflowing non-root leaf at the end of path. The
// highest node on the path whose removal keeps its non-root parent within
// bounds is cut out whole; its entries are reinserted from the top.
func (t *Tree) reorganize(path []*Node) error {
	i := len(path) - 1
	for i-1 > 0 && path[i-1].Size() == t.meta.MinFanout {
		i--
	}
	sub, parent := path[i], path[i-1]

	var orphans []Entry
	if err := t.collect(sub.Ref, &orphans); err != nil {
		return err
	}
	parent.Children = slices.DeleteFunc(parent.Children, func(ref NodeRef) bool { return ref == sub.Ref })
	if i-1 == 0 && len(parent.Children) == 0 {
		parent.Leaf = true
		parent.Children = nil
		parent.Envelope = envelope.Null
		t.mon.AddCase(CaseRootEmptied)
		t.replaceRoot(parent.Ref, 1)
	} else {
		u, err := t.childrenEnvelope(parent)
		if err != nil {
			return err
		}
		parent.Envelope = u
	}
	if err := t.nodes.PutNode(parent); err != nil {
		return err
	}
	if err := t.shrinkUp(path[:i]); err != nil {
		return err
	}

	t.log.DebugCtx(t.ctx, "subtree reorganised", "subtree", sub.Ref, "parent", parent.Ref,
		"orphans", len(orphans))
	for i, o := range orphans {
		if err := t.insert(o); err != nil {
			// the subtree is gone; the orphans not yet back are lost
			return fmt.Errorf("%w: reinserted %d of %d orphans: %w",
				spindex_errors.ErrCorruptIndex, i, len(orphans), err)
		}
	}
	t.mon.AddReinserted(len(orphans))
	return nil
}

// collect appends every entry under ref to orphans and deletes the nodes.
func (t *Tree) collect(ref NodeRef, orphans *[]Entry) error {
	n, err := t.node(ref)
	if err != nil {
		return err
	}
	if n.Leaf {
		*orphans = append(*orphans, n.Entries...)
	} else {
		if len(n.Children) == 0 {
			return fmt.Errorf("%w: internal node %d without children", spindex_errors.ErrCorruptIndex, n.Ref)
		}
		for _, c := range n.Children {
			if err := t.collect(c, orphans); err != nil {
				return err
			}
		}
	}
	return t.nodes.DeleteNode(ref)
}

// collapseRoot replaces an internal root holding one child with the child.
func (t *Tree) collapseRoot() error {
	for {
		root, err := t.root()
		if err != nil {
			return err
		}
		if root.Leaf || len(root.Children) != 1 {
			return nil
		}
		if err := t.nodes.DeleteNode(root.Ref); err != nil {
			return err
		}
		t.mon.AddCase(CaseRootCollapsed)
		t.replaceRoot(root.Children[0], t.meta.Height-1)
	}
}
