package wire

import "errors"

// ErrMalformed means the buffer was too short for the outer+inner
// headers it claims to carry, or inner_length overruns the buffer.
// Callers match it with errors.Is, never string comparison.
var ErrMalformed = errors.New("wire: malformed packet")
