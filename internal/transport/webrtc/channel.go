package webrtc

import (
	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/privosend/internal/transport"
)

// dataChannel adapts a pion data channel to transport.Channel. Its message
// handler is installed as soon as the channel exists so nothing sent before
// the engine attaches is lost.
type dataChannel struct {
	dc    *webrtc.DataChannel
	inbox transport.Dispatcher
}

var _ transport.Channel = (*dataChannel)(nil)

func newDataChannel(dc *webrtc.DataChannel) *dataChannel {
	c := &dataChannel{dc: dc}

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.inbox.Deliver(transport.Message{Data: msg.Data, IsString: msg.IsString})
	})
	dc.OnClose(c.markClosed)

	return c
}

func (c *dataChannel) markClosed() {
	c.inbox.Close()
}

func (c *dataChannel) Send(data []byte) error {
	return c.dc.Send(data)
}

func (c *dataChannel) SendText(text string) error {
	return c.dc.SendText(text)
}

func (c *dataChannel) BufferedAmount() uint64 {
	return c.dc.BufferedAmount()
}

func (c *dataChannel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.dc.SetBufferedAmountLowThreshold(threshold)
}

func (c *dataChannel) OnBufferedAmountLow(f func()) {
	c.dc.OnBufferedAmountLow(f)
}

func (c *dataChannel) OnMessage(f func(transport.Message)) {
	c.inbox.OnMessage(f)
}

func (c *dataChannel) OnClose(f func()) {
	c.inbox.OnClose(f)
}

func (c *dataChannel) Close() error {
	err := c.dc.Close()
	c.markClosed()
	return err
}
