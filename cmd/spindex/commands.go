package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/drpcorg/spindex"
	"github.com/drpcorg/spindex/envelope"
	"github.com/drpcorg/spindex/rtree"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HelpOpen     = errors.New("open path/to/index")
	HelpAdd      = errors.New("add id x y | add id minX minY maxX maxY")
	HelpRemove   = errors.New("remove id [id...]")
	HelpSearch   = errors.New("search [intersecting|within|covering] minX minY maxX maxY")
	HelpNear     = errors.New("near x y [k]")
	HelpDist     = errors.New("dist x y distance")
	HelpMetrics  = errors.New("metrics host:port")
	ErrBadNumber = errors.New("bad number")
)

func (repl *REPL) CommandHelp() {
	for _, h := range []error{HelpOpen, HelpAdd, HelpRemove, HelpSearch, HelpNear, HelpDist, HelpMetrics} {
		_, _ = fmt.Fprintln(repl.out, h.Error())
	}
	_, _ = fmt.Fprintln(repl.out, "close | count | bbox | stats | validate | dump | rebuild | clear | exit")
}

func parseSplit(s string) (rtree.SplitMode, error) {
	return rtree.ParseSplitMode(s)
}

func parseFloats(args []string) ([]float64, error) {
	res := make([]float64, 0, len(args))
	for _, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadNumber, a)
		}
		res = append(res, f)
	}
	return res, nil
}

func parseEnvelope(args []string) (envelope.Envelope, error) {
	nums, err := parseFloats(args)
	if err != nil {
		return envelope.Null, err
	}
	switch len(nums) {
	case 2:
		return envelope.Point(nums[0], nums[1]), nil
	case 4:
		return envelope.New(nums[0], nums[1], nums[2], nums[3]), nil
	}
	return envelope.Null, ErrBadNumber
}

func (repl *REPL) CommandOpen(args []string) (err error) {
	if len(args) != 1 {
		return HelpOpen
	}
	if repl.index() != nil {
		if err = repl.CommandClose(nil); err != nil {
			return
		}
	}
	ix, err := spindex.Open(args[0], repl.Opts)
	if err != nil {
		return
	}
	repl.current.Store(ix)
	for _, c := range ix.Collectors() {
		err = repl.registry.Register(c)
		if are := (prometheus.AlreadyRegisteredError{}); errors.As(err, &are) {
			err = nil
		}
		if err != nil {
			return
		}
		repl.pebble = c
	}
	_, _ = fmt.Fprintf(repl.out, "index %s opened\n", ix.Directory())
	return
}

func (repl *REPL) CommandClose(args []string) (err error) {
	if repl.pebble != nil {
		repl.registry.Unregister(repl.pebble)
		repl.pebble = nil
	}
	ix := repl.current.Swap(nil)
	if ix == nil {
		return ErrNotOpen
	}
	dir := ix.Directory()
	err = ix.Close()
	if err == nil {
		_, _ = fmt.Fprintf(repl.out, "index %s closed\n", dir)
	}
	return
}

func (repl *REPL) CommandAdd(args []string) error {
	if len(args) != 3 && len(args) != 5 {
		return HelpAdd
	}
	env, err := parseEnvelope(args[1:])
	if err != nil {
		return err
	}
	return repl.index().Add(context.Background(), rtree.EntryID(args[0]), env)
}

func (repl *REPL) CommandRemove(args []string) error {
	if len(args) == 0 {
		return HelpRemove
	}
	for _, id := range args {
		if err := repl.index().Remove(context.Background(), rtree.EntryID(id)); err != nil {
			return err
		}
	}
	return nil
}

func searchPredicate(args []string) (rtree.Predicate, error) {
	kind := "intersecting"
	if len(args) == 5 {
		kind, args = args[0], args[1:]
	}
	if len(args) != 4 {
		return nil, HelpSearch
	}
	env, err := parseEnvelope(args)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "intersecting":
		return rtree.Intersecting(env), nil
	case "within":
		return rtree.Within(env), nil
	case "covering":
		return rtree.Covering(env), nil
	}
	return nil, HelpSearch
}

func (repl *REPL) CommandSearch(args []string) error {
	p, err := searchPredicate(args)
	if err != nil {
		return err
	}
	n := 0
	for e, err := range repl.index().Search(p) {
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(repl.out, "%s\t%s\n", e.ID, e.Envelope)
		n++
	}
	_, _ = fmt.Fprintf(repl.out, "%d found\n", n)
	return nil
}

func (repl *REPL) printNeighbors(res []rtree.Neighbor) {
	for _, nb := range res {
		_, _ = fmt.Fprintf(repl.out, "%s\t%s\t%g\n", nb.ID, nb.Envelope, nb.Distance)
	}
}

func (repl *REPL) CommandNear(args []string) error {
	if len(args) != 2 && len(args) != 3 {
		return HelpNear
	}
	nums, err := parseFloats(args)
	if err != nil {
		return err
	}
	k := 1
	if len(nums) == 3 {
		k = int(nums[2])
	}
	res, err := repl.index().Nearest(nums[0], nums[1], k)
	if err != nil {
		return err
	}
	repl.printNeighbors(res)
	return nil
}

func (repl *REPL) CommandDist(args []string) error {
	if len(args) != 3 {
		return HelpDist
	}
	nums, err := parseFloats(args)
	if err != nil {
		return err
	}
	res, err := repl.index().WithinDistance(nums[0], nums[1], nums[2])
	if err != nil {
		return err
	}
	repl.printNeighbors(res)
	return nil
}

func (repl *REPL) CommandCount(args []string) error {
	n, err := repl.index().Count()
	if err == nil {
		_, _ = fmt.Fprintln(repl.out, n)
	}
	return err
}

func (repl *REPL) CommandBBox(args []string) error {
	bb, err := repl.index().BoundingBox()
	if err == nil {
		_, _ = fmt.Fprintln(repl.out, bb.String())
	}
	return err
}

func (repl *REPL) CommandStats(args []string) error {
	s, err := repl.index().Stats()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(repl.out, "height %d nodes %d leaves %d entries %d avg leaf fill %.1f fanout [%d, %d] %s\n",
		s.Height, s.Nodes, s.Leaves, s.Entries, s.AvgLeafFill, s.MinFanout, s.MaxFanout, s.SplitMode)
	return nil
}

func (repl *REPL) CommandValidate(args []string) error {
	err := repl.index().Validate(context.Background(), nil)
	if err == nil {
		_, _ = fmt.Fprintln(repl.out, "ok")
	}
	return err
}

func (repl *REPL) CommandRebuild(args []string) error {
	return repl.index().Rebuild(context.Background(), nil)
}

func (repl *REPL) CommandClear(args []string) error {
	return repl.index().Clear(context.Background(), nil)
}
