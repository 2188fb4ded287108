package ws

import "errors"

var (
	ErrClosed         = errors.New("subscriber closed")
	ErrSendBufferFull = errors.New("subscriber send buffer full")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrForbidden      = errors.New("not allowed for this connection")
	ErrRateLimited    = errors.New("too many messages")
)
