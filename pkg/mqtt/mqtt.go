package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/pkg/file"
)

// MQTTClient defines the interface for an MQTT client.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// subscription records an active subscription so it can be re-issued after a
// reconnect. Broker-side subscription state does not reliably survive a
// session resumption, so the client re-subscribes on every connect.
type subscription struct {
	qos      byte
	callback mqtt.MessageHandler
}

// MqttService provides methods for MQTT operations over a single shared
// connection.
type MqttService struct {
	client        MQTTClient
	fileClient    file.FileOperations
	logger        zerolog.Logger
	subscriptions cmap.ConcurrentMap[string, subscription]
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(fileClient file.FileOperations, logger zerolog.Logger) *MqttService {
	return &MqttService{
		fileClient:    fileClient,
		logger:        logger,
		subscriptions: cmap.New[subscription](),
	}
}

// Initialize sets up the MQTT client with server-side TLS and starts the
// connection. Used by the relay, which authenticates to the broker as a
// backend client with a clean session.
func (s *MqttService) Initialize(broker, clientID, caCertPath string) error {
	tlsConfig, err := s.caCertPool(caCertPath)
	if err != nil {
		return err
	}

	opts := s.baseOptions(broker, clientID, tlsConfig)
	opts.SetCleanSession(true)

	return s.connectWithOptions(opts)
}

// InitializeMutualTLS sets up the MQTT client with mutual TLS from the device
// certificate, private key and root CA, and starts the connection. The
// session is persistent and the client ID is the thing name, matching what
// the broker expects from a field device.
func (s *MqttService) InitializeMutualTLS(broker, clientID, certPath, keyPath, caCertPath string) error {
	tlsConfig, err := s.caCertPool(caCertPath)
	if err != nil {
		return err
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("failed to load device certificate/key pair: %w", err)
	}
	tlsConfig.Certificates = []tls.Certificate{cert}

	opts := s.baseOptions(broker, clientID, tlsConfig)
	opts.SetCleanSession(false)

	return s.connectWithOptions(opts)
}

func (s *MqttService) caCertPool(caCertPath string) (*tls.Config, error) {
	caCert, err := s.fileClient.ReadFileRaw(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate")
	}

	return &tls.Config{RootCAs: caCertPool}, nil
}

func (s *MqttService) baseOptions(broker, clientID string, tlsConfig *tls.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetTLSConfig(tlsConfig)

	// Reconnect policy: paho retries with backoff up to the max interval.
	// Re-subscription is our job, done from the OnConnect hook below.
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("MQTT connection lost, reconnecting")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.resubscribeAll()
	})

	return opts
}

func (s *MqttService) connectWithOptions(opts *mqtt.ClientOptions) error {
	s.client = mqtt.NewClient(opts)

	token := s.Connect()
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}

	return nil
}

// resubscribeAll re-issues every registered subscription. Runs on every
// connect, including the first, which is harmless.
func (s *MqttService) resubscribeAll() {
	for entry := range s.subscriptions.IterBuffered() {
		topic, sub := entry.Key, entry.Val

		token := s.client.Subscribe(topic, sub.qos, sub.callback)
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to restore subscription after reconnect")
		} else {
			s.logger.Info().Str("topic", topic).Msg("Subscription restored")
		}
	}
}

// Connect connects to the MQTT broker.
func (s *MqttService) Connect() mqtt.Token {
	return s.client.Connect()
}

// Publish sends a message to the specified topic.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return s.client.Publish(topic, qos, retained, payload)
}

// Subscribe subscribes to the specified topic with a message handler and
// records the subscription for replay after reconnects.
func (s *MqttService) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	s.subscriptions.Set(topic, subscription{qos: qos, callback: callback})
	return s.client.Subscribe(topic, qos, callback)
}

// Unsubscribe unsubscribes from the specified topics.
func (s *MqttService) Unsubscribe(topics ...string) mqtt.Token {
	for _, topic := range topics {
		s.subscriptions.Remove(topic)
	}
	return s.client.Unsubscribe(topics...)
}

// Disconnect gracefully disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	s.client.Disconnect(quiesce)
}
