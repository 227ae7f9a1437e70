package nodestore

import (
	"github.com/drpcorg/spindex/codec"
	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/rtree"
	"github.com/drpcorg/spindex/spindex_errors"
	"github.com/pkg/errors"
)

// Txn buffers every write in memory and applies them as one pebble batch
// on Commit. A nil map value marks a deletion. Reads see the buffered
// writes first.
type Txn struct {
	s       *Store
	nodes   map[rtree.NodeRef]*rtree.Node
	entries map[rtree.EntryID]*envelope.Envelope
	meta    *rtree.Metadata
	done    bool
}

func (t *Txn) Node(ref rtree.NodeRef) (*rtree.Node, error) {
	if n, ok := t.nodes[ref]; ok {
		if n == nil {
			return nil, errors.Wrapf(spindex_errors.ErrNodeNotFound, "node %d deleted", ref)
		}
		return n.Clone(), nil
	}
	if n, ok := t.s.cache.Get(ref); ok {
		return n.Clone(), nil
	}
	n, err := readNode(t.s.db, ref)
	if err != nil {
		return nil, err
	}
	t.s.cache.Add(ref, n)
	return n.Clone(), nil
}

func (t *Txn) PutNode(n *rtree.Node) error {
	t.nodes[n.Ref] = n.Clone()
	return nil
}

func (t *Txn) DeleteNode(ref rtree.NodeRef) error {
	t.nodes[ref] = nil
	return nil
}

func (t *Txn) Metadata() (rtree.Metadata, bool, error) {
	if t.meta != nil {
		return *t.meta, true, nil
	}
	return readMeta(t.s.db)
}

func (t *Txn) PutMetadata(m rtree.Metadata) error {
	t.meta = &m
	return nil
}

func (t *Txn) ReadOnly() bool {
	return false
}

func (t *Txn) EnvelopeOf(id rtree.EntryID) (envelope.Envelope, error) {
	if e, ok := t.entries[id]; ok {
		if e == nil {
			return envelope.Null, errors.Wrapf(spindex_errors.ErrEntryNotFound, "%q", id)
		}
		return *e, nil
	}
	return readEnvelope(t.s.db, id)
}

func (t *Txn) Exists(id rtree.EntryID) (bool, error) {
	if e, ok := t.entries[id]; ok {
		return e != nil, nil
	}
	_, ok, err := get(t.s.db, EntryKey(id))
	return ok, err
}

func (t *Txn) PutEntry(id rtree.EntryID, env envelope.Envelope) error {
	t.entries[id] = &env
	return nil
}

func (t *Txn) DeleteEntry(id rtree.EntryID) error {
	t.entries[id] = nil
	return nil
}

// Dirty is the number of buffered node and entry writes.
func (t *Txn) Dirty() int {
	return len(t.nodes) + len(t.entries)
}

// Commit writes everything in one batch and refreshes the node cache.
func (t *Txn) Commit() (err error) {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	batch := t.s.db.NewBatch()
	defer func() {
		if cerr := batch.Close(); err == nil {
			err = cerr
		}
	}()
	for ref, n := range t.nodes {
		if n == nil {
			err = batch.Delete(NodeKey(ref), nil)
		} else {
			err = batch.Set(NodeKey(ref), codec.EncodeNode(n), nil)
		}
		if err != nil {
			return errors.Wrapf(err, "batch node %d", ref)
		}
	}
	for id, e := range t.entries {
		if e == nil {
			err = batch.Delete(EntryKey(id), nil)
		} else {
			err = batch.Set(EntryKey(id), codec.EncodeEnvelope(*e), nil)
		}
		if err != nil {
			return errors.Wrapf(err, "batch entry %q", id)
		}
	}
	if t.meta != nil {
		data, err := codec.EncodeMetadata(*t.meta)
		if err != nil {
			return err
		}
		if err = batch.Set(metaKey, data, nil); err != nil {
			return errors.Wrap(err, "batch metadata")
		}
	}
	if err = batch.Commit(t.s.wo); err != nil {
		// database state is unknown after a failed commit
		t.s.cache.Purge()
		return errors.Wrap(err, "commit")
	}
	for ref, n := range t.nodes {
		if n == nil {
			t.s.cache.Remove(ref)
		} else {
			t.s.cache.Add(ref, n)
		}
	}
	return nil
}

// Discard drops the buffered writes.
func (t *Txn) Discard() {
	t.done = true
	t.nodes, t.entries, t.meta = nil, nil, nil
}
