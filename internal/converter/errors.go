package converter

import "errors"

// ErrBadHostValue is returned when a converter is given a host value of
// the wrong Go type for its field kind.
var ErrBadHostValue = errors.New("converter: unexpected host value type")
