package spindex

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/drpcorg/spindex/rtree"
)

// Dump prints the tree, one node or entry per line, indented by depth.
func (ix *Index) Dump(writer io.Writer) error {
	return ix.read(context.Background(), func(tree *rtree.Tree) error {
		meta := tree.Meta()
		fmt.Fprintf(writer, "root %d height %d count %d fanout [%d, %d] %s\n",
			meta.Root, meta.Height, meta.Count, meta.MinFanout, meta.MaxFanout, meta.SplitMode)
		if meta.Root == 0 {
			return nil
		}
		return tree.Walk(func(n *rtree.Node, depth int) error {
			indent := strings.Repeat("  ", depth)
			kind := "internal"
			if n.Leaf {
				kind = "leaf"
			}
			fmt.Fprintf(writer, "%sN%d %s %d %s\n", indent, n.Ref, kind, n.Size(), n.Envelope)
			for _, e := range n.Entries {
				fmt.Fprintf(writer, "%s  %q %s\n", indent, e.ID, e.Envelope)
			}
			return nil
		})
	})
}
