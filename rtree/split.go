package rtree

import (
	"math"
	"sort"

	"github.com/drpcorg/spindex/envelope"
)

// quadraticSplit partitions envs into two groups of at least minFanout.
// Seeds are the pair wasting the most area together; the rest go one by
// one, most decided first, to the group that grows least.
func quadraticSplit(envs []envelope.Envelope, minFanout int) (g1, g2 []int) {
	s1, s2 := 0, 1
	worst := math.Inf(-1)
	for i := 0; i < len(envs); i++ {
		for j := i + 1; j < len(envs); j++ {
			if d := envs[i].DeadSpace(envs[j]); d > worst {
				worst, s1, s2 = d, i, j
			}
		}
	}
	g1, g2 = []int{s1}, []int{s2}
	u1, u2 := envs[s1], envs[s2]

	rest := make([]int, 0, len(envs)-2)
	for i := range envs {
		if i != s1 && i != s2 {
			rest = append(rest, i)
		}
	}

	for len(rest) > 0 {
		if len(g1)+len(rest) <= minFanout {
			g1 = append(g1, rest...)
			break
		}
		if len(g2)+len(rest) <= minFanout {
			g2 = append(g2, rest...)
			break
		}
		pick, pickDiff := 0, math.Inf(-1)
		var d1, d2 float64
		for k, i := range rest {
			e1, e2 := u1.Enlargement(envs[i]), u2.Enlargement(envs[i])
			if diff := math.Abs(e1 - e2); diff > pickDiff {
				pick, pickDiff, d1, d2 = k, diff, e1, e2
			}
		}
		i := rest[pick]
		rest = append(rest[:pick], rest[pick+1:]...)

		toFirst := false
		switch {
		case d1 < d2:
			toFirst = true
		case d2 < d1:
		case u1.Area() < u2.Area():
			toFirst = true
		case u2.Area() < u1.Area():
		default:
			toFirst = len(g1) <= len(g2)
		}
		if toFirst {
			g1 = append(g1, i)
			u1 = u1.Union(envs[i])
		} else {
			g2 = append(g2, i)
			u2 = u2.Union(envs[i])
		}
	}
	return g1, g2
}

// greeneSplit sorts by centre along the longest axis of the union and cuts
// the sequence in half.
func greeneSplit(envs []envelope.Envelope) (g1, g2 []int) {
	u := envelope.UnionAll(envs...)
	alongX := u.Width() >= u.Height()
	order := make([]int, len(envs))
	for i := range order {
		order[i] = i
	}
	centre := func(i int) float64 {
		x, y := envs[i].Centre()
		if alongX {
			return x
		}
		return y
	}
	sort.SliceStable(order, func(a, b int) bool {
		return centre(order[a]) < centre(order[b])
	})
	half := len(order) / 2
	return order[:half], order[half:]
}

func (t *Tree) partition(envs []envelope.Envelope) (g1, g2 []int) {
	if t.meta.SplitMode == GreeneSplit {
		return greeneSplit(envs)
	}
	return quadraticSplit(envs, t.meta.MinFanout)
}

// split moves part of an overflowing node into a new sibling. Both halves
// get tight envelopes and are written back.
func (t *Tree) split(n *Node) (*Node, error) {
	sibling := &Node{Ref: t.newRef(), Leaf: n.Leaf}
	if n.Leaf {
		envs := make([]envelope.Envelope, len(n.Entries))
		for i, e := range n.Entries {
			envs[i] = e.Envelope
		}
		g1, g2 := t.partition(envs)
		all := n.Entries
		n.Entries = make([]Entry, 0, len(g1))
		sibling.Entries = make([]Entry, 0, len(g2))
		for _, i := range g1 {
			n.Entries = append(n.Entries, all[i])
		}
		for _, i := range g2 {
			sibling.Entries = append(sibling.Entries, all[i])
		}
		n.Envelope = entriesEnvelope(n.Entries)
		sibling.Envelope = entriesEnvelope(sibling.Entries)
	} else {
		envs := make([]envelope.Envelope, len(n.Children))
		for i, ref := range n.Children {
			c, err := t.node(ref)
			if err != nil {
				return nil, err
			}
			envs[i] = c.Envelope
		}
		g1, g2 := t.partition(envs)
		all := n.Children
		n.Children = make([]NodeRef, 0, len(g1))
		sibling.Children = make([]NodeRef, 0, len(g2))
		n.Envelope, sibling.Envelope = envelope.Null, envelope.Null
		for _, i := range g1 {
			n.Children = append(n.Children, all[i])
			n.Envelope = n.Envelope.Union(envs[i])
		}
		for _, i := range g2 {
			sibling.Children = append(sibling.Children, all[i])
			sibling.Envelope = sibling.Envelope.Union(envs[i])
		}
	}
	if err := t.nodes.PutNode(sibling); err != nil {
		return nil, err
	}
	if err := t.nodes.PutNode(n); err != nil {
		return nil, err
	}
	t.mon.AddSplit()
	t.log.DebugCtx(t.ctx, "node split", "node", n.Ref, "sibling", sibling.Ref,
		"leaf", n.Leaf, "sizes", []int{n.Size(), sibling.Size()})
	return sibling, nil
}
