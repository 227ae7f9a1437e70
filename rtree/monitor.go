package rtree

import (
	"sync/atomic"

	"github.com/drpcorg/spindex/utils"
)

// Case names reported through Monitor.AddCase.
const (
	CaseInsertNoSplit   = "insert_no_split"
	CaseInsertSplit     = "insert_split"
	CaseRootSplit       = "root_split"
	CaseRemoveNoReorg   = "remove_no_reorg"
	CaseRemoveReorg     = "remove_reorg"
	CaseRootCollapsed   = "root_collapsed"
	CaseRootEmptied     = "root_emptied"
	CaseReplaceExisting = "replace_existing"
)

// Monitor observes structural events of a tree.
type Monitor interface {
	AddSplit()
	AddReinserted(n int)
	AddCase(name string)
	NodeVisited(leaf bool)
	HeightChanged(height int)
}

type NopMonitor struct{}

func (NopMonitor) AddSplit() {}
func (NopMonitor) AddReinserted(int) {}
func (NopMonitor) AddCase(string) {}
func (NopMonitor) NodeVisited(bool) {}
func (NopMonitor) HeightChanged(int) {}

// RecordingMonitor keeps counters in memory.
type RecordingMonitor struct {
	splits     atomic.Int64
	reinserted atomic.Int64
	visited    atomic.Int64
	leaves     atomic.Int64
	height     atomic.Int64
	cases      utils.CMap[string, *atomic.Int64]
}

func (m *RecordingMonitor) AddSplit() {
	m.splits.Add(1)
}

func (m *RecordingMonitor) AddReinserted(n int) {
	m.reinserted.Add(int64(n))
}

func (m *RecordingMonitor) AddCase(name string) {
	c, _ := m.cases.LoadOrStore(name, new(atomic.Int64))
	c.Add(1)
}

func (m *RecordingMonitor) NodeVisited(leaf bool) {
	m.visited.Add(1)
	if leaf {
		m.leaves.Add(1)
	}
}

func (m *RecordingMonitor) HeightChanged(height int) {
	m.height.Store(int64(height))
}

func (m *RecordingMonitor) Splits() int64 {
	return m.splits.Load()
}

func (m *RecordingMonitor) Reinserted() int64 {
	return m.reinserted.Load()
}

func (m *RecordingMonitor) Visited() int64 {
	return m.visited.Load()
}

func (m *RecordingMonitor) LeavesVisited() int64 {
	return m.leaves.Load()
}

func (m *RecordingMonitor) Height() int {
	return int(m.height.Load())
}

func (m *RecordingMonitor) Case(name string) int64 {
	c, ok := m.cases.Load(name)
	if !ok {
		return 0
	}
	return c.Load()
}

func (m *RecordingMonitor) Cases() map[string]int64 {
	res := make(map[string]int64)
	m.cases.Range(func(name string, c *atomic.Int64) bool {
		res[name] = c.Load()
		return true
	})
	return res
}

// ResetVisits zeroes the visit counters before a measured query.
func (m *RecordingMonitor) ResetVisits() {
	m.visited.Store(0)
	m.leaves.Store(0)
}
