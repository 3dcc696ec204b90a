package mocks

// MockMessage is a static implementation of the mqtt.Message interface for
// feeding payloads into subscription handlers.
type MockMessage struct {
	TopicValue   string
	PayloadValue []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 1 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.TopicValue }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Payload() []byte   { return m.PayloadValue }
func (m *MockMessage) Ack()              {}
