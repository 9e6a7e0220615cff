package ensemble

import "errors"

var (
	// ErrMissingInput marks an expected input file that does not exist. The
	// daily loader recovers from it by skipping the affected date.
	ErrMissingInput = errors.New("missing input")

	// ErrMalformedConfig marks inputs inconsistent with the requested layout:
	// wrong member count, absent parameter, duplicate keys, mismatched grid
	// shapes or member files that do not line up.
	ErrMalformedConfig = errors.New("malformed configuration")
)
