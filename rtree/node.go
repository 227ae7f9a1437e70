// Package rtree implements an R-tree over a pluggable node store.
//
// A Tree addresses nodes by NodeRef and keeps no parent pointers: every
// mutation walks down from the root and carries the path it took, so the
// store only ever sees whole nodes being read, written and deleted. One
// Tree value is meant to live for one transaction of the backing store.
package rtree

import (
	"slices"

	"github.com/drpcorg/spindex/envelope"
)

// NodeRef is a store-assigned node key. Zero means no node.
type NodeRef uint64

// EntryID is opaque to the tree.
type EntryID string

// Entry is a leaf payload.
type Entry struct {
	ID       EntryID
	Envelope envelope.Envelope
}

// Node is either a leaf holding entries or an internal node holding child
// refs. Envelope is the exact union of what it holds.
type Node struct {
	Ref      NodeRef
	Leaf     bool
	Envelope envelope.Envelope
	Entries  []Entry
	Children []NodeRef
}

func newLeaf(ref NodeRef) *Node {
	return &Node{Ref: ref, Leaf: true, Envelope: envelope.Null}
}

// Size is the fanout of the node.
func (n *Node) Size() int {
	if n.Leaf {
		return len(n.Entries)
	}
	return len(n.Children)
}

func (n *Node) Clone() *Node {
	c := *n
	c.Entries = slices.Clone(n.Entries)
	c.Children = slices.Clone(n.Children)
	return &c
}

func (n *Node) entryIndex(id EntryID) int {
	return slices.IndexFunc(n.Entries, func(e Entry) bool { return e.ID == id })
}

func (n *Node) childIndex(ref NodeRef) int {
	return slices.Index(n.Children, ref)
}

func entriesEnvelope(entries []Entry) envelope.Envelope {
	u := envelope.Null
	for _, e := range entries {
		u = u.Union(e.Envelope)
	}
	return u
}
