package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash"
	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/rtree"
	"github.com/drpcorg/spindex/spindex_errors"
	"github.com/fxamacker/cbor/v2"
)

const (
	litLeaf     = 'L'
	litInternal = 'I'
	litBox      = 'B'
	litEntry    = 'E'
	litKey      = 'K'
	litChild    = 'C'

	envelopeLen = 32
	checksumLen = 8
)

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{spindex_errors.ErrCorruptIndex}, args...)...)
}

func AppendEnvelope(into []byte, e envelope.Envelope) []byte {
	for _, v := range [...]float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		into = binary.BigEndian.AppendUint64(into, math.Float64bits(v))
	}
	return into
}

func ParseEnvelope(b []byte) (envelope.Envelope, error) {
	if len(b) != envelopeLen {
		return envelope.Null, corrupt("envelope of %d bytes", len(b))
	}
	f := func(i int) float64 {
		return math.Float64frombits(binary.BigEndian.Uint64(b[8*i:]))
	}
	return envelope.Envelope{MinX: f(0), MinY: f(1), MaxX: f(2), MaxY: f(3)}, nil
}

// EncodeEnvelope is the value stored per indexed entry.
func EncodeEnvelope(e envelope.Envelope) []byte {
	return Record(litBox, AppendEnvelope(make([]byte, 0, envelopeLen), e))
}

func DecodeEnvelope(data []byte) (envelope.Envelope, error) {
	body, rest, err := TakeWary(litBox, data)
	if err != nil || len(rest) != 0 {
		return envelope.Null, corrupt("bad envelope record: %v", err)
	}
	return ParseEnvelope(body)
}

// EncodeNode serialises n without its ref, which lives in the key.
func EncodeNode(n *rtree.Node) []byte {
	lit := byte(litInternal)
	if n.Leaf {
		lit = litLeaf
	}
	bm, buf := OpenHeader(make([]byte, 0, 64+48*n.Size()), lit)
	var box [envelopeLen]byte
	buf = Append(buf, litBox, AppendEnvelope(box[:0], n.Envelope))
	if n.Leaf {
		for _, e := range n.Entries {
			ebm, b := OpenHeader(buf, litEntry)
			b = Append(b, litKey, []byte(e.ID))
			b = Append(b, litBox, AppendEnvelope(box[:0], e.Envelope))
			CloseHeader(b, ebm)
			buf = b
		}
	} else {
		var ref [8]byte
		for _, c := range n.Children {
			binary.BigEndian.PutUint64(ref[:], uint64(c))
			buf = Append(buf, litChild, ref[:])
		}
	}
	CloseHeader(buf, bm)
	return binary.BigEndian.AppendUint64(buf, xxhash.Sum64(buf))
}

// DecodeNode parses a node stored under ref. Any damage, checksum
// mismatches included, is reported as ErrCorruptIndex.
func DecodeNode(ref rtree.NodeRef, data []byte) (*rtree.Node, error) {
	if len(data) < checksumLen {
		return nil, corrupt("node %d: %d bytes", ref, len(data))
	}
	rec, sum := data[:len(data)-checksumLen], data[len(data)-checksumLen:]
	if xxhash.Sum64(rec) != binary.BigEndian.Uint64(sum) {
		return nil, corrupt("node %d: checksum mismatch", ref)
	}
	lit, body, rest, err := TakeAnyWary(rec)
	if err != nil || len(rest) != 0 || (lit != litLeaf && lit != litInternal) {
		return nil, corrupt("node %d: bad record %q: %v", ref, lit, err)
	}
	n := &rtree.Node{Ref: ref, Leaf: lit == litLeaf}
	box, body, err := TakeWary(litBox, body)
	if err != nil {
		return nil, corrupt("node %d: no envelope: %v", ref, err)
	}
	if n.Envelope, err = ParseEnvelope(box); err != nil {
		return nil, err
	}
	for len(body) > 0 {
		var item []byte
		if n.Leaf {
			if item, body, err = TakeWary(litEntry, body); err != nil {
				return nil, corrupt("node %d: entry: %v", ref, err)
			}
			e, err := parseEntry(item)
			if err != nil {
				return nil, corrupt("node %d: %v", ref, err)
			}
			n.Entries = append(n.Entries, e)
		} else {
			if item, body, err = TakeWary(litChild, body); err != nil || len(item) != 8 {
				return nil, corrupt("node %d: child ref: %v", ref, err)
			}
			n.Children = append(n.Children, rtree.NodeRef(binary.BigEndian.Uint64(item)))
		}
	}
	return n, nil
}

func parseEntry(item []byte) (rtree.Entry, error) {
	id, rest, err := TakeWary(litKey, item)
	if err != nil {
		return rtree.Entry{}, err
	}
	box, rest, err := TakeWary(litBox, rest)
	if err != nil {
		return rtree.Entry{}, err
	}
	if len(rest) != 0 {
		return rtree.Entry{}, ErrBadRecord
	}
	env, err := ParseEnvelope(box)
	return rtree.Entry{ID: rtree.EntryID(id), Envelope: env}, err
}

func EncodeMetadata(m rtree.Metadata) ([]byte, error) {
	return cbor.Marshal(m)
}

func DecodeMetadata(data []byte) (m rtree.Metadata, err error) {
	if err = cbor.Unmarshal(data, &m); err != nil {
		return m, corrupt("metadata: %v", err)
	}
	return m, nil
}
