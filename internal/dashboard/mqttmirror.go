package dashboard

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SensorsIot/wsjt-x-MCP/internal/coordinator"
)

// MQTTOptions configures the optional MQTT mirror of dashboard-bus
// events (spec.md §6 names this OUT OF CORE and optional).
type MQTTOptions struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// mqttMirror republishes every dashboard-bus event to an MQTT broker,
// grounded on the teacher's mqtt_publisher.go connection-option shape
// (auto-reconnect, connect-retry, keepalive) with the metrics-specific
// publishing loops dropped in favor of a single bus-event republish.
type mqttMirror struct {
	client mqtt.Client
	prefix string
}

func newMQTTMirror(opts MQTTOptions, logger *log.Logger) (*mqttMirror, error) {
	if logger == nil {
		logger = log.Default()
	}
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(fmt.Sprintf("wsjtxmcpd-%d", time.Now().UnixNano()))
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(10 * time.Second)
	clientOpts.SetKeepAlive(60 * time.Second)
	clientOpts.SetPingTimeout(10 * time.Second)
	clientOpts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logger.Printf("dashboard: mqtt connection lost: %v", err)
	})

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}

	prefix := opts.TopicPrefix
	if prefix == "" {
		prefix = "wsjtxmcpd"
	}
	return &mqttMirror{client: client, prefix: prefix}, nil
}

func (m *mqttMirror) publish(ev coordinator.BusEvent) {
	body, err := json.Marshal(busEventWire{Kind: string(ev.Kind), InstanceID: ev.InstanceID, Payload: ev.Payload, CorrelationID: ev.CorrelationID, At: time.Now().UTC()})
	if err != nil {
		return
	}
	topic := fmt.Sprintf("%s/%s/%s", m.prefix, ev.InstanceID, ev.Kind)
	m.client.Publish(topic, 0, false, body)
}

func (m *mqttMirror) close() {
	m.client.Disconnect(250)
}
