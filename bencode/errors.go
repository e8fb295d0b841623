package bencode

import "errors"

// Error kinds raised by the generic codec. TypeMismatch is raised by typed
// views built on top of Value (metainfo, tracker), not by this package.
var (
	ErrTruncatedInput = errors.New("bencode: truncated input")
	ErrBadDigit       = errors.New("bencode: malformed digit sequence")
	ErrBadKeyOrder    = errors.New("bencode: dictionary keys out of order")
	ErrBadLength      = errors.New("bencode: invalid string length prefix")
	ErrTypeMismatch   = errors.New("bencode: value is not of the expected type")
)
