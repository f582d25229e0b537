package nats

import (
	"github.com/nats-io/nats.go"
)

// Unsubscriber cancels interest in a subject.
type Unsubscriber interface {
	Unsubscribe() error
}

// Conn is the subset of *nats.Conn used by this package.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (Unsubscriber, error)
	Close()
}

// connAdapter adapts *nats.Conn to Conn.
type connAdapter struct {
	nc *nats.Conn
}

// WrapConn adapts a live *nats.Conn.
func WrapConn(nc *nats.Conn) Conn {
	return &connAdapter{nc: nc}
}

func (c *connAdapter) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

func (c *connAdapter) Subscribe(subject string, handler nats.MsgHandler) (Unsubscriber, error) {
	return c.nc.Subscribe(subject, handler)
}

func (c *connAdapter) Close() {
	c.nc.Close()
}
