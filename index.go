package spindex

import (
	"context"
	"iter"
	"time"

	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/rtree"
	"github.com/drpcorg/spindex/spindex_errors"
	"github.com/drpcorg/spindex/utils"
)

// Add indexes id under env, replacing whatever id was indexed under before.
func (ix *Index) Add(ctx context.Context, id rtree.EntryID, env envelope.Envelope) error {
	if err := env.Validate(); err != nil {
		observe(ix.dir, "add", time.Now(), err)
		return err
	}
	return ix.write(ctx, "add", func(tree *rtree.Tree) error {
		return tree.Add(id, env)
	})
}

// AddAll adds entries in one transaction: all of them or none.
func (ix *Index) AddAll(ctx context.Context, entries []rtree.Entry, l rtree.Listener) error {
	return ix.write(ctx, "add_all", func(tree *rtree.Tree) error {
		return tree.AddAll(entries, ix.listener(ctx, "add_all", l))
	})
}

func (ix *Index) Remove(ctx context.Context, id rtree.EntryID) error {
	return ix.write(ctx, "remove", func(tree *rtree.Tree) error {
		return tree.Remove(id)
	})
}

// Clear removes every entry.
func (ix *Index) Clear(ctx context.Context, l rtree.Listener) error {
	return ix.write(ctx, "clear", func(tree *rtree.Tree) error {
		return tree.Clear(ix.listener(ctx, "clear", l))
	})
}

// Rebuild reinserts all entries into a fresh tree.
func (ix *Index) Rebuild(ctx context.Context, l rtree.Listener) error {
	return ix.write(ctx, "rebuild", func(tree *rtree.Tree) error {
		ix.log.InfoCtx(ctx, "rebuilding", "count", tree.Count(), "height", tree.Height())
		return tree.Rebuild(ix.listener(ctx, "rebuild", l))
	})
}

// listener falls back to progress logging when the caller passes none.
func (ix *Index) listener(ctx context.Context, task string, l rtree.Listener) rtree.Listener {
	if l != nil {
		return l
	}
	return rtree.NewLoggingListener(ctx, task, ix.log, ix.opts.ProgressInterval)
}

// Search lazily yields the entries p admits from a snapshot taken when
// iteration starts.
func (ix *Index) Search(p rtree.Predicate) iter.Seq2[rtree.Entry, error] {
	return func(yield func(rtree.Entry, error) bool) {
		start := time.Now()
		err := ix.read(context.Background(), func(tree *rtree.Tree) error {
			for e, err := range tree.Search(p) {
				if err != nil {
					return err
				}
				if !yield(e, nil) {
					return nil
				}
			}
			return nil
		})
		observe(ix.dir, "search", start, err)
		if err != nil {
			yield(rtree.Entry{}, err)
		}
	}
}

func (ix *Index) SearchIDs(p rtree.Predicate) ([]rtree.EntryID, error) {
	var ids []rtree.EntryID
	for e, err := range ix.Search(p) {
		if err != nil {
			return nil, err
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (ix *Index) Count() (n int, err error) {
	err = ix.read(context.Background(), func(tree *rtree.Tree) error {
		n = tree.Count()
		return nil
	})
	return
}

// BoundingBox covers every entry; envelope.Null when the index is empty.
func (ix *Index) BoundingBox() (bb envelope.Envelope, err error) {
	err = ix.read(context.Background(), func(tree *rtree.Tree) error {
		bb, err = tree.BoundingBox()
		return err
	})
	return
}

func (ix *Index) IsEmpty() (bool, error) {
	bb, err := ix.BoundingBox()
	if err != nil {
		return false, err
	}
	return bb.IsNull(), nil
}

func (ix *Index) Exists(id rtree.EntryID) (ok bool, err error) {
	if ix.closed.Load() {
		return false, spindex_errors.ErrClosed
	}
	view := ix.store.Snapshot()
	defer view.Close()
	return view.Exists(id)
}

// EnvelopeOf is the envelope id is indexed under, ErrEntryNotFound if none.
func (ix *Index) EnvelopeOf(id rtree.EntryID) (envelope.Envelope, error) {
	if ix.closed.Load() {
		return envelope.Null, spindex_errors.ErrClosed
	}
	view := ix.store.Snapshot()
	defer view.Close()
	return view.EnvelopeOf(id)
}

// Nearest returns up to k entries closest to (x, y), closest first.
func (ix *Index) Nearest(x, y float64, k int) (res []rtree.Neighbor, err error) {
	start := time.Now()
	defer func() { observe(ix.dir, "nearest", start, err) }()
	err = ix.read(context.Background(), func(tree *rtree.Tree) error {
		res, err = tree.Nearest(x, y, k)
		return err
	})
	return
}

// WithinDistance returns the entries at most d from (x, y), closest first.
func (ix *Index) WithinDistance(x, y, d float64) (res []rtree.Neighbor, err error) {
	start := time.Now()
	defer func() { observe(ix.dir, "within_distance", start, err) }()
	err = ix.read(context.Background(), func(tree *rtree.Tree) error {
		res, err = tree.WithinDistance(x, y, d)
		return err
	})
	return
}

// Validate checks the structure of the tree and its stored entries: every
// indexed entry is stored under its envelope and nothing else is stored.
func (ix *Index) Validate(ctx context.Context, l rtree.Listener) (err error) {
	start := time.Now()
	defer func() { observe(ix.dir, "validate", start, err) }()
	ctx = utils.WithDefaultArgs(ctx, "op", "validate")
	err = ix.read(ctx, func(tree *rtree.Tree) error {
		return tree.Validate(ix.listener(ctx, "validate", l))
	})
	if err != nil {
		ix.log.ErrorCtx(ctx, "validation failed", "err", err)
	}
	return
}

func (ix *Index) Stats() (s rtree.Stats, err error) {
	err = ix.read(context.Background(), func(tree *rtree.Tree) error {
		s, err = tree.Stats()
		return err
	})
	return
}
