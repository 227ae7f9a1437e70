// Provides common spindex errors definitions.
package spindex_errors

import "errors"

var (
	ErrReadOnlyIndex   = errors.New("spindex: index is read-only")
	ErrEntryNotFound   = errors.New("spindex: entry not found")
	ErrInvalidEnvelope = errors.New("spindex: invalid envelope")
	ErrCorruptIndex    = errors.New("spindex: corrupt index")

	ErrInvalidConfig = errors.New("spindex: invalid index configuration")
	ErrNodeNotFound  = errors.New("spindex: node not found")
	ErrClosed        = errors.New("spindex: no index open")
	ErrAlreadyOpen   = errors.New("spindex: index directory already open")
)
