package memory

import "time"

// memoryMessage implements pubsub.Message for in-memory delivery.
type memoryMessage struct {
	data      []byte
	subject   string
	timestamp time.Time
}

func (m *memoryMessage) Data() []byte         { return m.data }
func (m *memoryMessage) Subject() string      { return m.subject }
func (m *memoryMessage) Timestamp() time.Time { return m.timestamp }
