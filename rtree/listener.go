package rtree

import (
	"context"
	"time"

	"github.com/drpcorg/spindex/utils"
)

// Listener receives progress of long operations: bulk adds, rebuilds,
// clears and validation passes.
type Listener interface {
	Begin(units int)
	Worked(units int)
	Done()
}

type NullListener struct{}

func (NullListener) Begin(int) {}
func (NullListener) Worked(int) {}
func (NullListener) Done() {}

// LoggingListener writes progress lines, at most one per Interval.
type LoggingListener struct {
	Name     string
	Log      utils.Logger
	Ctx      context.Context
	Interval time.Duration

	total, done int
	started     time.Time
	lastLog     time.Time
	now         func() time.Time
}

func NewLoggingListener(ctx context.Context, name string, log utils.Logger, interval time.Duration) *LoggingListener {
	return &LoggingListener{Name: name, Log: log, Ctx: ctx, Interval: interval}
}

func (l *LoggingListener) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

func (l *LoggingListener) Begin(units int) {
	l.total, l.done = units, 0
	l.started = l.clock()
	l.lastLog = l.started
	l.Log.InfoCtx(l.Ctx, "progress begin", "task", l.Name, "units", units)
}

func (l *LoggingListener) Worked(units int) {
	l.done += units
	now := l.clock()
	if now.Sub(l.lastLog) < l.Interval {
		return
	}
	l.lastLog = now
	var pct float64
	if l.total > 0 {
		pct = 100 * float64(l.done) / float64(l.total)
	}
	l.Log.InfoCtx(l.Ctx, "progress", "task", l.Name, "done", l.done, "total", l.total,
		"percent", pct, "elapsed", now.Sub(l.started))
}

func (l *LoggingListener) Done() {
	l.Log.InfoCtx(l.Ctx, "progress done", "task", l.Name, "done", l.done,
		"elapsed", l.clock().Sub(l.started))
}

func listenerOrNull(l Listener) Listener {
	if l == nil {
		return NullListener{}
	}
	return l
}
