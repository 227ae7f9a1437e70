package rtree

import "fmt"

// AddAll adds entries one by one. All envelopes are checked before the
// first insert, so a bad one leaves the tree untouched.
func (t *Tree) AddAll(entries []Entry, l Listener) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	for _, e := range entries {
		if err := e.Envelope.Validate(); err != nil {
			return fmt.Errorf("entry %q: %w", e.ID, err)
		}
	}
	l = listenerOrNull(l)
	l.Begin(len(entries))
	defer l.Done()
	for _, e := range entries {
		if err := t.Add(e.ID, e.Envelope); err != nil {
			return err
		}
		l.Worked(1)
	}
	return nil
}

// Clear removes every entry and leaves a single empty leaf as the root.
func (t *Tree) Clear(l Listener) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	l = listenerOrNull(l)
	l.Begin(t.meta.Count)
	defer l.Done()

	var drop func(ref NodeRef) error
	drop = func(ref NodeRef) error {
		n, err := t.node(ref)
		if err != nil {
			return err
		}
		if n.Leaf {
			if t.recorder != nil {
				for _, e := range n.Entries {
					if err := t.recorder.DeleteEntry(e.ID); err != nil {
						return err
					}
				}
			}
			l.Worked(len(n.Entries))
		}
		for _, c := range n.Children {
			if err := drop(c); err != nil {
				return err
			}
		}
		return t.nodes.DeleteNode(ref)
	}
	if err := drop(t.meta.Root); err != nil {
		return err
	}
	root := newLeaf(t.newRef())
	if err := t.nodes.PutNode(root); err != nil {
		return err
	}
	t.replaceRoot(root.Ref, 1)
	t.meta.Count = 0
	return t.saveMeta()
}

// Rebuild reinserts every entry into a fresh tree. Useful after heavy
// deletion, which may leave a deep and sparse tree behind.
func (t *Tree) Rebuild(l Listener) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	entries, err := t.Entries()
	if err != nil {
		return err
	}
	if err := t.Clear(nil); err != nil {
		return err
	}
	return t.AddAll(entries, l)
}
