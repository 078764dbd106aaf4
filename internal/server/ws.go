package server

import (
	"context"
	"time"

	cws "github.com/coder/websocket"
)

// displayWriteTimeout bounds one frame written to a display. A display that
// stops reading has its connection closed instead of stalling every push.
const displayWriteTimeout = 10 * time.Second

// wsChannel adapts a websocket connection to a jrpc2 channel, one message
// per JSON-RPC frame.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
	// writeTimeout defaults to displayWriteTimeout.
	writeTimeout time.Duration
}

func (c *wsChannel) Send(data []byte) error {
	timeout := c.writeTimeout
	if timeout <= 0 {
		timeout = displayWriteTimeout
	}
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	return c.conn.Write(ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}
