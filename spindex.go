// Package spindex is a persistent R-tree spatial index on top of pebble.
//
// All mutations go through one writer at a time, each inside a single
// pebble batch: a failed add or remove leaves nothing behind. Reads run on
// pebble snapshots and never wait for the writer.
package spindex

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/spindex/nodestore"
	"github.com/drpcorg/spindex/rtree"
	"github.com/drpcorg/spindex/spindex_errors"
	"github.com/drpcorg/spindex/utils"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

type Options struct {
	pebble.Options

	MaxFanout int
	MinFanout int
	SplitMode rtree.SplitMode
	// CollapseRoot shrinks the tree when the root is left with one child.
	CollapseRoot bool
	ReadOnly     bool

	NodeCacheSize int
	WriteOptions  *pebble.WriteOptions
	Logger        utils.Logger
	// ProgressInterval rate-limits progress lines of long operations.
	ProgressInterval time.Duration
}

func (o *Options) SetDefaults() {
	if o.MaxFanout == 0 {
		o.MaxFanout = rtree.DefaultMaxFanout
	}
	if o.MinFanout == 0 {
		o.MinFanout = rtree.DefaultMinFanout
	}
	if o.NodeCacheSize == 0 {
		o.NodeCacheSize = nodestore.DefaultCacheSize
	}
	if o.WriteOptions == nil {
		o.WriteOptions = pebble.Sync
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.ProgressInterval == 0 {
		o.ProgressInterval = 5 * time.Second
	}
}

// directories open in this process
var openDirs = xsync.NewMapOf[string, struct{}]()

type Index struct {
	dir   string
	db    *pebble.DB
	store *nodestore.Store
	opts  Options
	log   utils.Logger
	mon   *metricsMonitor

	lock   sync.Mutex
	closed atomic.Bool
}

// Open opens or creates the index stored in dir. A fresh directory gets
// the fanout and split mode of opts; an existing one keeps its own.
func Open(dir string, opts Options) (ix *Index, err error) {
	opts.SetDefaults()
	if err = rtree.ValidateFanout(opts.MaxFanout, opts.MinFanout); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if _, loaded := openDirs.LoadOrStore(abs, struct{}{}); loaded {
		return nil, fmt.Errorf("%w: %s", spindex_errors.ErrAlreadyOpen, abs)
	}
	defer func() {
		if err != nil {
			openDirs.Delete(abs)
		}
	}()

	popts := opts.Options
	popts.ReadOnly = opts.ReadOnly
	db, err := pebble.Open(abs, &popts)
	if err != nil {
		return nil, err
	}
	store, err := nodestore.New(db, opts.NodeCacheSize, opts.WriteOptions)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ix = &Index{
		dir:   abs,
		db:    db,
		store: store,
		opts:  opts,
		log:   opts.Logger,
		mon:   newMetricsMonitor(abs),
	}

	ctx := utils.WithDefaultArgs(context.Background(), "dir", abs)
	var meta rtree.Metadata
	if opts.ReadOnly {
		err = ix.read(ctx, func(tree *rtree.Tree) error {
			meta = tree.Meta()
			return nil
		})
	} else {
		// a fresh directory gets its metadata and root written here
		err = ix.write(ctx, "open", func(tree *rtree.Tree) error {
			meta = tree.Meta()
			return nil
		})
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if meta.MaxFanout != opts.MaxFanout || meta.MinFanout != opts.MinFanout || meta.SplitMode != opts.SplitMode {
		ix.log.WarnCtx(ctx, "stored tree parameters differ from options, using stored",
			"max_fanout", meta.MaxFanout, "min_fanout", meta.MinFanout, "split", meta.SplitMode)
	}
	ix.mon.HeightChanged(meta.Height)
	IndexedEntries.WithLabelValues(abs).Set(float64(meta.Count))
	ix.log.InfoCtx(ctx, "index open", "count", meta.Count, "height", meta.Height, "read_only", opts.ReadOnly)
	return ix, nil
}

func (ix *Index) Close() error {
	if !ix.closed.CompareAndSwap(false, true) {
		return spindex_errors.ErrClosed
	}
	ix.lock.Lock()
	defer ix.lock.Unlock()
	defer openDirs.Delete(ix.dir)
	ix.log.Info("index closed", "dir", ix.dir)
	return ix.db.Close()
}

func (ix *Index) Directory() string {
	return ix.dir
}

func (ix *Index) ReadOnly() bool {
	return ix.opts.ReadOnly
}

func (ix *Index) treeOptions(ctx context.Context) rtree.Options {
	return rtree.Options{
		MaxFanout:    ix.opts.MaxFanout,
		MinFanout:    ix.opts.MinFanout,
		SplitMode:    ix.opts.SplitMode,
		CollapseRoot: ix.opts.CollapseRoot,
		Monitor:      ix.mon,
		Log:          ix.log,
		Ctx:          ctx,
	}
}

// write runs fn on a tree bound to a fresh transaction and commits it if
// fn succeeds.
func (ix *Index) write(ctx context.Context, op string, fn func(tree *rtree.Tree) error) (err error) {
	if ix.closed.Load() {
		return spindex_errors.ErrClosed
	}
	if ix.opts.ReadOnly {
		return spindex_errors.ErrReadOnlyIndex
	}
	start := time.Now()
	defer func() { observe(ix.dir, op, start, err) }()

	ix.lock.Lock()
	defer ix.lock.Unlock()
	ctx = utils.WithDefaultArgs(ctx, "op", op, "opid", uuid.Must(uuid.NewV7()).String())

	txn := ix.store.Begin()
	tree, err := rtree.Open(txn, txn, ix.treeOptions(ctx))
	if err == nil {
		err = fn(tree)
	}
	if err != nil {
		txn.Discard()
		ix.log.DebugCtx(ctx, "operation rolled back", "err", err)
		return err
	}
	dirty := txn.Dirty()
	if err = txn.Commit(); err != nil {
		ix.log.ErrorCtx(ctx, "commit failed", "err", err)
		return err
	}
	IndexedEntries.WithLabelValues(ix.dir).Set(float64(tree.Count()))
	ix.mon.HeightChanged(tree.Height())
	ix.log.DebugCtx(ctx, "committed", "writes", dirty, "count", tree.Count(), "took", time.Since(start))
	return nil
}

// read runs fn on a read-only tree over a fresh snapshot.
func (ix *Index) read(ctx context.Context, fn func(tree *rtree.Tree) error) error {
	if ix.closed.Load() {
		return spindex_errors.ErrClosed
	}
	view := ix.store.Snapshot()
	defer view.Close()
	tree, err := rtree.Open(view, view, ix.treeOptions(ctx))
	if err != nil {
		return err
	}
	return fn(tree)
}
