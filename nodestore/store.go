// Package nodestore keeps R-tree nodes, entry envelopes and index metadata
// in pebble.
//
// Keys:
//
//	'M'            metadata
//	'N' + ref(8)   node, big endian ref
//	'E' + id       envelope an entry is indexed under
package nodestore

import (
	"encoding/binary"
	"io"
	"iter"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/spindex/codec"
	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/rtree"
	"github.com/drpcorg/spindex/spindex_errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

const DefaultCacheSize = 4096

var metaKey = []byte{'M'}

func NodeKey(ref rtree.NodeRef) []byte {
	key := make([]byte, 0, 9)
	key = append(key, 'N')
	return binary.BigEndian.AppendUint64(key, uint64(ref))
}

func EntryKey(id rtree.EntryID) []byte {
	key := make([]byte, 0, 1+len(id))
	key = append(key, 'E')
	return append(key, id...)
}

// reader is what *pebble.DB and *pebble.Snapshot have in common.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// get copies the value out; ok is false for a missing key.
func get(r reader, key []byte) (val []byte, ok bool, err error) {
	v, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val = append([]byte(nil), v...)
	return val, true, closer.Close()
}

// Store hands out write transactions and read-only snapshot views. Only
// one transaction may be open at a time; the node cache mirrors what the
// last committed transaction left in the database.
type Store struct {
	db    *pebble.DB
	wo    *pebble.WriteOptions
	cache *lru.Cache[rtree.NodeRef, *rtree.Node]
}

func New(db *pebble.DB, cacheSize int, wo *pebble.WriteOptions) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if wo == nil {
		wo = pebble.Sync
	}
	cache, err := lru.New[rtree.NodeRef, *rtree.Node](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, wo: wo, cache: cache}, nil
}

func (s *Store) CachedNodes() int {
	return s.cache.Len()
}

func (s *Store) Begin() *Txn {
	return &Txn{
		s:       s,
		nodes:   make(map[rtree.NodeRef]*rtree.Node),
		entries: make(map[rtree.EntryID]*envelope.Envelope),
	}
}

func (s *Store) Snapshot() *View {
	return &View{snap: s.db.NewSnapshot()}
}

func readNode(r reader, ref rtree.NodeRef) (*rtree.Node, error) {
	val, ok, err := get(r, NodeKey(ref))
	if err != nil {
		return nil, errors.Wrapf(err, "get node %d", ref)
	}
	if !ok {
		return nil, errors.Wrapf(spindex_errors.ErrNodeNotFound, "node %d", ref)
	}
	return codec.DecodeNode(ref, val)
}

func readMeta(r reader) (rtree.Metadata, bool, error) {
	val, ok, err := get(r, metaKey)
	if err != nil || !ok {
		return rtree.Metadata{}, false, errors.Wrap(err, "get metadata")
	}
	m, err := codec.DecodeMetadata(val)
	return m, err == nil, err
}

func readEnvelope(r reader, id rtree.EntryID) (envelope.Envelope, error) {
	val, ok, err := get(r, EntryKey(id))
	if err != nil {
		return envelope.Null, errors.Wrapf(err, "get entry %q", id)
	}
	if !ok {
		return envelope.Null, errors.Wrapf(spindex_errors.ErrEntryNotFound, "%q", id)
	}
	return codec.DecodeEnvelope(val)
}

// View is a read-only NodeStore and EntryStore over a pebble snapshot.
type View struct {
	snap *pebble.Snapshot
}

func (v *View) Node(ref rtree.NodeRef) (*rtree.Node, error) {
	return readNode(v.snap, ref)
}

func (v *View) PutNode(*rtree.Node) error {
	return spindex_errors.ErrReadOnlyIndex
}

func (v *View) DeleteNode(rtree.NodeRef) error {
	return spindex_errors.ErrReadOnlyIndex
}

func (v *View) Metadata() (rtree.Metadata, bool, error) {
	return readMeta(v.snap)
}

func (v *View) PutMetadata(rtree.Metadata) error {
	return spindex_errors.ErrReadOnlyIndex
}

func (v *View) ReadOnly() bool {
	return true
}

func (v *View) EnvelopeOf(id rtree.EntryID) (envelope.Envelope, error) {
	return readEnvelope(v.snap, id)
}

func (v *View) Exists(id rtree.EntryID) (bool, error) {
	_, ok, err := get(v.snap, EntryKey(id))
	return ok, err
}

// EntryIDs yields the ids of all stored entries in key order.
func (v *View) EntryIDs() iter.Seq2[rtree.EntryID, error] {
	return func(yield func(rtree.EntryID, error) bool) {
		it, err := v.snap.NewIter(&pebble.IterOptions{
			LowerBound: []byte{'E'},
			UpperBound: []byte{'E' + 1},
		})
		if err != nil {
			yield("", errors.Wrap(err, "entry scan"))
			return
		}
		defer it.Close()
		for it.First(); it.Valid(); it.Next() {
			if !yield(rtree.EntryID(it.Key()[1:]), nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield("", errors.Wrap(err, "entry scan"))
		}
	}
}

func (v *View) Close() error {
	return v.snap.Close()
}
