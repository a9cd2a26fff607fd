package market

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidArgument marks malformed input: non-positive price, size or
	// volume, negative transaction or cancellation amounts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange marks a query against an undefined ladder slot or a
	// level index outside [0, depth).
	ErrOutOfRange = errors.New("out of range")

	// ErrInvalidState marks an inconsistent snapshot or a failed cross-book
	// consistency check. Callers treat it as "retry with the next snapshot".
	ErrInvalidState = errors.New("invalid state")
)
