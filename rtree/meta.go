package rtree

import (
	"fmt"
	"strings"

	"github.com/drpcorg/spindex/spindex_errors"
)

const (
	DefaultMaxFanout = 100
	DefaultMinFanout = 40
)

type SplitMode uint8

const (
	QuadraticSplit SplitMode = iota
	GreeneSplit
)

func (m SplitMode) String() string {
	switch m {
	case QuadraticSplit:
		return "quadratic"
	case GreeneSplit:
		return "greene"
	default:
		return fmt.Sprintf("SplitMode(%d)", uint8(m))
	}
}

func ParseSplitMode(s string) (SplitMode, error) {
	switch strings.ToLower(s) {
	case "", "quadratic":
		return QuadraticSplit, nil
	case "greene":
		return GreeneSplit, nil
	}
	return 0, fmt.Errorf("%w: unknown split mode %q", spindex_errors.ErrInvalidConfig, s)
}

// Metadata is the per-index record: fanout bounds, the root and counters.
type Metadata struct {
	MaxFanout int       `cbor:"1,keyasint"`
	MinFanout int       `cbor:"2,keyasint"`
	SplitMode SplitMode `cbor:"3,keyasint"`
	Root      NodeRef   `cbor:"4,keyasint"`
	NextRef   NodeRef   `cbor:"5,keyasint"`
	Count     int       `cbor:"6,keyasint"`
	Height    int       `cbor:"7,keyasint"`
}

// ValidateFanout accepts bounds under which any MaxFanout+1 items can be
// split into two groups of at least MinFanout each.
func ValidateFanout(maxFanout, minFanout int) error {
	if minFanout < 1 || maxFanout < 2 || 2*minFanout > maxFanout+1 {
		return fmt.Errorf("%w: fanout min=%d max=%d", spindex_errors.ErrInvalidConfig, minFanout, maxFanout)
	}
	return nil
}

func (m Metadata) Validate() error {
	if err := ValidateFanout(m.MaxFanout, m.MinFanout); err != nil {
		return err
	}
	if m.SplitMode > GreeneSplit {
		return fmt.Errorf("%w: split mode %d", spindex_errors.ErrInvalidConfig, m.SplitMode)
	}
	if m.Root == 0 || m.NextRef <= m.Root || m.Count < 0 || m.Height < 1 {
		return fmt.Errorf("%w: metadata root=%d next=%d count=%d height=%d",
			spindex_errors.ErrCorruptIndex, m.Root, m.NextRef, m.Count, m.Height)
	}
	return nil
}
