package mapping

import "errors"

// ErrMalformedKey reports a parameter key without a layer or parameter part.
var ErrMalformedKey = errors.New("mapping: malformed parameter key")
