package midi

import "errors"

var ErrTimeFormat = errors.New("midi: only metric (ticks per quarter) time format is supported")
