// Package transport defines the direct peer channel the transfer engine runs over.
package transport

import "errors"

var ErrClosed = errors.New("channel closed")

// Message is one frame received on a Channel. IsString marks text frames.
type Message struct {
	Data     []byte
	IsString bool
}

// Channel is an ordered, reliable, message-oriented peer channel.
//
// Messages and the close event that arrive before OnMessage or OnClose is
// called are held and replayed in order once the handler is registered.
// Handlers must not call back into the Channel.
type Channel interface {
	Send(data []byte) error
	SendText(text string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	OnBufferedAmountLow(f func())
	OnMessage(f func(Message))
	OnClose(f func())
	Close() error
}
