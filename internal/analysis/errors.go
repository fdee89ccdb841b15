package analysis

import "errors"

var (
	ErrLengthMismatch = errors.New("frame times and values differ in length")
	ErrUnknownStem    = errors.New("unknown stem type")
)
