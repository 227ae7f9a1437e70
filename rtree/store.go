package rtree

import (
	"fmt"
	"iter"
	"maps"

	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/spindex_errors"
)

// NodeStore persists nodes and the index metadata. Node must return a
// node the caller may modify freely; changes become visible through
// PutNode only. Missing nodes are reported as ErrNodeNotFound.
type NodeStore interface {
	Node(ref NodeRef) (*Node, error)
	PutNode(n *Node) error
	DeleteNode(ref NodeRef) error
	Metadata() (meta Metadata, ok bool, err error)
	PutMetadata(meta Metadata) error
	ReadOnly() bool
}

// EntryStore resolves entry ids to the envelope they were indexed under.
// EnvelopeOf reports ErrEntryNotFound for unknown ids.
type EntryStore interface {
	EnvelopeOf(id EntryID) (envelope.Envelope, error)
	Exists(id EntryID) (bool, error)
}

// EntryRecorder is an EntryStore the tree keeps in step with its leaves.
// With one, Add of a known id replaces the old entry.
type EntryRecorder interface {
	EntryStore
	PutEntry(id EntryID, env envelope.Envelope) error
	DeleteEntry(id EntryID) error
}

// EntryLister is an EntryStore that can enumerate the ids it holds.
type EntryLister interface {
	EntryIDs() iter.Seq2[EntryID, error]
}

// MemStore keeps nodes, metadata and entries in maps. Not safe for
// concurrent use.
type MemStore struct {
	nodes    map[NodeRef]*Node
	entries  map[EntryID]envelope.Envelope
	meta     Metadata
	hasMeta  bool
	readOnly bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		nodes:   make(map[NodeRef]*Node),
		entries: make(map[EntryID]envelope.Envelope),
	}
}

// Snapshot returns a read-only copy.
func (s *MemStore) Snapshot() *MemStore {
	c := &MemStore{
		nodes:    make(map[NodeRef]*Node, len(s.nodes)),
		entries:  maps.Clone(s.entries),
		meta:     s.meta,
		hasMeta:  s.hasMeta,
		readOnly: true,
	}
	for ref, n := range s.nodes {
		c.nodes[ref] = n.Clone()
	}
	return c
}

func (s *MemStore) NodeCount() int {
	return len(s.nodes)
}

func (s *MemStore) Node(ref NodeRef) (*Node, error) {
	n, ok := s.nodes[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %d", spindex_errors.ErrNodeNotFound, ref)
	}
	return n.Clone(), nil
}

func (s *MemStore) PutNode(n *Node) error {
	if s.readOnly {
		return spindex_errors.ErrReadOnlyIndex
	}
	s.nodes[n.Ref] = n.Clone()
	return nil
}

func (s *MemStore) DeleteNode(ref NodeRef) error {
	if s.readOnly {
		return spindex_errors.ErrReadOnlyIndex
	}
	delete(s.nodes, ref)
	return nil
}

func (s *MemStore) Metadata() (Metadata, bool, error) {
	return s.meta, s.hasMeta, nil
}

func (s *MemStore) PutMetadata(meta Metadata) error {
	if s.readOnly {
		return spindex_errors.ErrReadOnlyIndex
	}
	s.meta, s.hasMeta = meta, true
	return nil
}

func (s *MemStore) ReadOnly() bool {
	return s.readOnly
}

func (s *MemStore) EnvelopeOf(id EntryID) (envelope.Envelope, error) {
	env, ok := s.entries[id]
	if !ok {
		return envelope.Null, fmt.Errorf("%w: %q", spindex_errors.ErrEntryNotFound, id)
	}
	return env, nil
}

func (s *MemStore) Exists(id EntryID) (bool, error) {
	_, ok := s.entries[id]
	return ok, nil
}

func (s *MemStore) PutEntry(id EntryID, env envelope.Envelope) error {
	if s.readOnly {
		return spindex_errors.ErrReadOnlyIndex
	}
	s.entries[id] = env
	return nil
}

func (s *MemStore) DeleteEntry(id EntryID) error {
	if s.readOnly {
		return spindex_errors.ErrReadOnlyIndex
	}
	delete(s.entries, id)
	return nil
}

func (s *MemStore) EntryIDs() iter.Seq2[EntryID, error] {
	return func(yield func(EntryID, error) bool) {
		for id := range s.entries {
			if !yield(id, nil) {
				return
			}
		}
	}
}
