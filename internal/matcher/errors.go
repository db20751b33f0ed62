package matcher

import "errors"

var (
	ErrUnknownMethod      = errors.New("unknown request method")
	ErrUnknownContentType = errors.New("unknown content type")
	ErrUnparseableBody    = errors.New("unable to parse request body")
	ErrInvalidExpectation = errors.New("invalid parameter expectation")
)
