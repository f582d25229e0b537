package nats

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

// natsMessage wraps a *nats.Msg to implement pubsub.Message.
type natsMessage struct {
	msg      *nats.Msg
	received time.Time
}

// WrapMessage wraps a *nats.Msg as a pubsub.Message.
func WrapMessage(msg *nats.Msg) pubsub.Message {
	return &natsMessage{msg: msg, received: time.Now()}
}

func (m *natsMessage) Data() []byte         { return m.msg.Data }
func (m *natsMessage) Subject() string      { return m.msg.Subject }
func (m *natsMessage) Timestamp() time.Time { return m.received }
