package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const mqttPublishTimeout = 5 * time.Second

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string
}

// MQTTPublisher forwards events to <topic>/<workspace> at QoS 0.
type MQTTPublisher struct {
	log    zerolog.Logger
	client mqttClient
	topic  string
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(opts MQTTOptions, log zerolog.Logger) (*MQTTPublisher, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", opts.Broker).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", opts.Broker, token.Error())
	}
	log.Info().Str("broker", opts.Broker).Str("topic", opts.Topic).Msg("mqtt publisher connected")
	return newMQTTPublisher(client, opts.Topic, log), nil
}

func newMQTTPublisher(client mqttClient, topic string, log zerolog.Logger) *MQTTPublisher {
	topic = strings.TrimRight(strings.TrimSpace(topic), "/")
	if topic == "" {
		topic = "fibermap"
	}
	return &MQTTPublisher{log: log, client: client, topic: topic}
}

func (p *MQTTPublisher) Topic(workspace string) string {
	return p.topic + "/" + workspace
}

// Publish sends ev without waiting for the broker; failures are logged.
func (p *MQTTPublisher) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("encode mqtt event")
		return
	}
	topic := p.Topic(ev.Workspace)
	token := p.client.Publish(topic, 0, false, payload)
	go func() {
		if !token.WaitTimeout(mqttPublishTimeout) {
			p.log.Warn().Str("topic", topic).Msg("mqtt publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		}
	}()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
