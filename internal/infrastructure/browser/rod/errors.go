package rod

import "errors"

var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrInvalidSelector = errors.New("invalid selector")
	ErrInvalidScroll   = errors.New("invalid scroll target")
	ErrSessionClosed   = errors.New("browser session closed")
	ErrPoolClosed      = errors.New("page pool closed")
)
