package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cast"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("oigshield_%d", rand.Intn(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:                   mqtt.NewClient(opts),
		cfg:                      cfg.MQTT,
		selectCommandRegexp:      selectCommandExtractor(cfg.MQTT.BaseTopic),
		inputNumberCommandRegexp: inputNumberCommandExtractor(cfg.MQTT.BaseTopic),
	}
}

type MQTTClient struct {
	client                   mqtt.Client
	cfg                      config.MQTTConfig
	selectCommandRegexp      *regexp.Regexp
	inputNumberCommandRegexp *regexp.Regexp
}

const (
	COMMAND_TYPE_SELECT = "select"
	COMMAND_TYPE_NUMBER = "number"
)

// ParsedMQTTCommand is a write request received on a select or number
// command topic. DeviceId is the entity id, which is also the command name.
type ParsedMQTTCommand struct {
	DeviceId string
	Command  string
	Payload  string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) SensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *MQTTClient) BinarySensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *MQTTClient) SelectStateTopic(selectId string) string {
	return fmt.Sprintf("%s/%s/%s/state", c.baseTopic(), COMMAND_TYPE_SELECT, selectId)
}

func (c *MQTTClient) SelectCommandTopic(selectId string) string {
	return fmt.Sprintf("%s/%s/%s/set", c.baseTopic(), COMMAND_TYPE_SELECT, selectId)
}

func (c *MQTTClient) InputNumberStateTopic(id string) string {
	return fmt.Sprintf("%s/%s/%s/state", c.baseTopic(), COMMAND_TYPE_NUMBER, id)
}

func (c *MQTTClient) InputNumberCommandTopic(id string) string {
	return fmt.Sprintf("%s/%s/%s/set", c.baseTopic(), COMMAND_TYPE_NUMBER, id)
}

func (c *MQTTClient) ShieldEventTopic() string {
	return fmt.Sprintf("%s/shield/event", c.baseTopic())
}

// ParseMQTTCommand recognizes select and number command topics of this bridge.
func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	if c.selectCommandRegexp.MatchString(msg.Topic()) {
		return c.parseSelectMQTTCommand(msg)
	}
	return c.parseInputNumberMQTTCommand(msg)
}

func (c *MQTTClient) parseSelectMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.selectCommandRegexp.FindStringSubmatch(msg.Topic())
	if matches == nil {
		return nil, errors.New("invalid command")
	}
	payload := strings.TrimSpace(string(msg.Payload()))
	if payload == "" {
		return nil, errors.New("empty select option")
	}
	return &ParsedMQTTCommand{
		DeviceId: matches[1],
		Command:  COMMAND_TYPE_SELECT,
		Payload:  payload,
	}, nil
}

func (c *MQTTClient) parseInputNumberMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.inputNumberCommandRegexp.FindStringSubmatch(msg.Topic())
	if matches == nil {
		return nil, errors.New("invalid command")
	}
	payload := strings.TrimSpace(string(msg.Payload()))
	if _, err := cast.ToFloat64E(payload); err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", payload, err)
	}
	return &ParsedMQTTCommand{
		DeviceId: matches[1],
		Command:  COMMAND_TYPE_NUMBER,
		Payload:  payload,
	}, nil
}

// Publish, Subscribe, Connect and the rest return immediately and report the
// outcome of the token to continuation from another goroutine.

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	awaitToken(c.client.Publish(topic, qos, retain, payload), "publish", timeout, continuation)
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	awaitToken(c.client.Subscribe(topic, qos, handler), "subscribe", timeout, continuation)
}

// SubscribeToCommandTopic subscribes to the select and number command topics only,
// so the bridge does not receive its own state messages.
func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	filters := make(map[string]byte, len(c.commandTopics()))
	for _, topic := range c.commandTopics() {
		filters[topic] = 1
	}
	awaitToken(c.client.SubscribeMultiple(filters, handler), "subscribe", timeout, continuation)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	awaitToken(c.client.Unsubscribe(topic), "unsubscribe", timeout, continuation)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	awaitToken(c.client.Connect(), "connect", timeout, continuation)
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) commandTopics() []string {
	return []string{
		fmt.Sprintf("%s/%s/+/set", c.baseTopic(), COMMAND_TYPE_SELECT),
		fmt.Sprintf("%s/%s/+/set", c.baseTopic(), COMMAND_TYPE_NUMBER),
	}
}

func awaitToken(token mqtt.Token, op string, timeout time.Duration, continuation func(error)) {
	go func() {
		if !token.WaitTimeout(timeout) {
			continuation(fmt.Errorf("MQTT %s timed out", op))
			return
		}
		continuation(token.Error())
	}()
}

func selectCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/%s/([a-zA-Z0-9_]+)/set$", regexp.QuoteMeta(baseTopic), COMMAND_TYPE_SELECT))
}

func inputNumberCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/%s/([a-zA-Z0-9_]+)/set$", regexp.QuoteMeta(baseTopic), COMMAND_TYPE_NUMBER))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
