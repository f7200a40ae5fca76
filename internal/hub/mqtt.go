package hub

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesceMillis  = 250
	commandTopic       = "command"
)

// MQTTConfig configures the MQTT consumer. The json tags match the "mqtt"
// block of the config file.
type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

// mqttClient is the part of mqtt.Client the consumer uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConsumer relays published text to an MQTT broker and passes messages
// arriving on <prefix>/command back to the bridge.
//
// Text of the form "<kind>:<rest>" goes to <prefix>/<kind> with the whole
// text as payload, so frames land on <prefix>/serial_recive and alarms on
// <prefix>/alarm.
type MQTTConsumer struct {
	id     string
	client mqttClient
	prefix string
	qos    byte

	mu     sync.Mutex
	closed bool
}

// NewMQTTConsumer connects to cfg.Broker and subscribes to the command topic.
func NewMQTTConsumer(cfg MQTTConfig, onMessage MessageHandler) (*MQTTConsumer, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("mqtt: connection to %s lost: %v", cfg.Broker, err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	c, err := newMQTTConsumer(client, cfg, onMessage)
	if err != nil {
		client.Disconnect(mqttQuiesceMillis)
		return nil, err
	}
	monitoring.Logf("mqtt: connected to %s, publishing under %s/", cfg.Broker, c.prefix)
	return c, nil
}

func newMQTTConsumer(client mqttClient, cfg MQTTConfig, onMessage MessageHandler) (*MQTTConsumer, error) {
	c := &MQTTConsumer{
		id:     "mqtt:" + cfg.ClientID,
		client: client,
		prefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:    cfg.QoS,
	}
	if onMessage == nil {
		return c, nil
	}

	topic := c.prefix + "/" + commandTopic
	token := client.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		onMessage(c.id, string(msg.Payload()))
	})
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("failed to subscribe to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return c, nil
}

func (c *MQTTConsumer) ID() string { return c.id }

// Topic returns the topic text is published on.
func (c *MQTTConsumer) Topic(text string) string {
	kind := "message"
	if i := strings.IndexByte(text, ':'); i > 0 {
		kind = text[:i]
	}
	return c.prefix + "/" + kind
}

// Send publishes text without waiting for the broker. Publish failures are
// logged rather than returned so a reconnecting client stays attached.
func (c *MQTTConsumer) Send(text string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConsumerClosed
	}

	token := c.client.Publish(c.Topic(text), c.qos, false, text)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			monitoring.Logf("mqtt: publish failed: %v", err)
		}
	default:
	}
	return nil
}

// Close disconnects from the broker.
func (c *MQTTConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.client.Disconnect(mqttQuiesceMillis)
	return nil
}
