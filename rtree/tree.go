package rtree

import (
	"context"
	"errors"
	"fmt"

	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/spindex_errors"
	"github.com/drpcorg/spindex/utils"
)

// Options configure a tree. Fanout and split mode only apply when the
// store holds no metadata yet; afterwards the stored values win.
type Options struct {
	MaxFanout int
	MinFanout int
	SplitMode SplitMode

	// CollapseRoot replaces an internal root holding a single child with
	// that child after each removal.
	CollapseRoot bool
	ReadOnly     bool

	Monitor Monitor
	Log     utils.Logger
	// Ctx carries default log attributes of the running operation.
	Ctx context.Context
}

func (o *Options) SetDefaults() {
	if o.MaxFanout == 0 {
		o.MaxFanout = DefaultMaxFanout
	}
	if o.MinFanout == 0 {
		o.MinFanout = DefaultMinFanout
	}
	if o.Monitor == nil {
		o.Monitor = NopMonitor{}
	}
	if o.Log == nil {
		o.Log = utils.NopLogger
	}
	if o.Ctx == nil {
		o.Ctx = context.Background()
	}
}

type Tree struct {
	nodes   NodeStore
	entries EntryStore
	// recorder is entries when the tree maintains it, nil otherwise
	recorder EntryRecorder

	meta     Metadata
	readOnly bool
	collapse bool

	mon Monitor
	log utils.Logger
	ctx context.Context
}

// Open binds a tree to its stores, initialising an empty index if the
// node store has no metadata. entries may be nil.
func Open(nodes NodeStore, entries EntryStore, opts Options) (*Tree, error) {
	opts.SetDefaults()
	t := &Tree{
		nodes:    nodes,
		entries:  entries,
		readOnly: opts.ReadOnly || nodes.ReadOnly(),
		collapse: opts.CollapseRoot,
		mon:      opts.Monitor,
		log:      opts.Log,
		ctx:      opts.Ctx,
	}
	if rec, ok := entries.(EntryRecorder); ok {
		t.recorder = rec
	}
	meta, ok, err := nodes.Metadata()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := meta.Validate(); err != nil {
			return nil, err
		}
		t.meta = meta
		return t, nil
	}
	if err := ValidateFanout(opts.MaxFanout, opts.MinFanout); err != nil {
		return nil, err
	}
	if opts.SplitMode > GreeneSplit {
		return nil, fmt.Errorf("%w: split mode %d", spindex_errors.ErrInvalidConfig, opts.SplitMode)
	}
	t.meta = Metadata{
		MaxFanout: opts.MaxFanout,
		MinFanout: opts.MinFanout,
		SplitMode: opts.SplitMode,
		NextRef:   1,
		Height:    1,
	}
	if t.readOnly {
		// nothing stored yet, a reader sees an empty index
		return t, nil
	}
	root := newLeaf(t.newRef())
	t.meta.Root = root.Ref
	if err := t.nodes.PutNode(root); err != nil {
		return nil, err
	}
	if err := t.saveMeta(); err != nil {
		return nil, err
	}
	t.log.DebugCtx(t.ctx, "index initialised", "max_fanout", t.meta.MaxFanout,
		"min_fanout", t.meta.MinFanout, "split", t.meta.SplitMode)
	return t, nil
}

func (t *Tree) Meta() Metadata {
	return t.meta
}

func (t *Tree) Count() int {
	return t.meta.Count
}

func (t *Tree) Height() int {
	return t.meta.Height
}

func (t *Tree) ReadOnly() bool {
	return t.readOnly
}

// Root is the current root ref, zero for a never-written read-only tree.
func (t *Tree) Root() NodeRef {
	return t.meta.Root
}

// IsEmpty is true when the root has no bounding box.
func (t *Tree) IsEmpty() (bool, error) {
	bb, err := t.BoundingBox()
	if err != nil {
		return false, err
	}
	return bb.IsNull(), nil
}

// BoundingBox is the envelope of the whole index, Null when empty.
func (t *Tree) BoundingBox() (envelope.Envelope, error) {
	root, err := t.root()
	if err != nil {
		return envelope.Null, err
	}
	return root.Envelope, nil
}

func (t *Tree) root() (*Node, error) {
	if t.meta.Root == 0 {
		return newLeaf(0), nil
	}
	return t.node(t.meta.Root)
}

func (t *Tree) node(ref NodeRef) (*Node, error) {
	n, err := t.nodes.Node(ref)
	if errors.Is(err, spindex_errors.ErrNodeNotFound) {
		return nil, fmt.Errorf("%w: dangling node ref: %w", spindex_errors.ErrCorruptIndex, err)
	}
	return n, err
}

func (t *Tree) newRef() NodeRef {
	ref := t.meta.NextRef
	t.meta.NextRef++
	return ref
}

// replaceRoot installs a new root; only root splits and collapses call it.
func (t *Tree) replaceRoot(ref NodeRef, height int) {
	t.meta.Root = ref
	if t.meta.Height != height {
		t.meta.Height = height
		t.mon.HeightChanged(height)
	}
}

func (t *Tree) saveMeta() error {
	return t.nodes.PutMetadata(t.meta)
}

func (t *Tree) checkWritable() error {
	if t.readOnly {
		return spindex_errors.ErrReadOnlyIndex
	}
	return nil
}

// childrenEnvelope re-unions an internal node from its stored children.
func (t *Tree) childrenEnvelope(n *Node) (envelope.Envelope, error) {
	u := envelope.Null
	for _, ref := range n.Children {
		c, err := t.node(ref)
		if err != nil {
			return envelope.Null, err
		}
		u = u.Union(c.Envelope)
	}
	return u, nil
}
