package transfer

import "errors"

var (
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrProtocol         = errors.New("protocol error")
	ErrSizeMismatch     = errors.New("size mismatch")
)
