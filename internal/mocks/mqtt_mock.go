// Package mocks holds hand-written testify mocks shared by the package-level
// test suites.
package mocks

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MockMQTTClient is a mock implementation of the mqtt.MQTTClient interface.
type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) Connect() mqtt.Token {
	args := m.Called()
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	args := m.Called(topic, qos, callback)
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	args := m.Called(topics)
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

// MockToken is a mock implementation of the mqtt.Token interface.
type MockToken struct {
	mock.Mock
}

// Error returns the error associated with the token.
func (m *MockToken) Error() error {
	args := m.Called()
	return args.Error(0)
}

// Wait waits for the token to complete.
func (m *MockToken) Wait() bool {
	args := m.Called()
	return args.Bool(0)
}

// Done returns the done channel for the token.
func (m *MockToken) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(<-chan struct{})
}

// WaitTimeout waits for the token to complete or timeout.
func (m *MockToken) WaitTimeout(timeout time.Duration) bool {
	args := m.Called(timeout)
	return args.Bool(0)
}

// NewSucceededToken returns a token that completes immediately without error.
func NewSucceededToken() *MockToken {
	token := new(MockToken)
	token.On("Wait").Return(true)
	token.On("Error").Return(nil)
	return token
}

// NewFailedToken returns a token that completes immediately with err.
func NewFailedToken(err error) *MockToken {
	token := new(MockToken)
	token.On("Wait").Return(true)
	token.On("Error").Return(err)
	return token
}
