package rhythm

import "errors"

var (
	ErrNoTransients = errors.New("rhythm: need at least two transients")
	ErrBPMRange     = errors.New("rhythm: invalid BPM range")
)
