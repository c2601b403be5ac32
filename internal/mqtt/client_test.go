package mqtt

import (
	"testing"

	"github.com/berfenger/oigshield2mqtt/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload string
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return []byte(m.payload) }
func (m fakeMessage) Ack()              {}

func testClient() *MQTTClient {
	cfg := config.Config{MQTT: config.MQTTConfig{Host: "localhost", Port: 1883, BaseTopic: "oigshield"}}
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestSelectCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/select/set_box_mode/set"
	r := selectCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "set_box_mode", "select extract")
}

func TestSelectCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/select/set_box_mode/state"
	r := selectCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestInputNumberCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/number/number_name/set"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "number_name", "number_id extract")
}

func TestInputNumberCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/select/number_name/set"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestParseMQTTCommand(t *testing.T) {

	require := require.New(t)
	c := testClient()

	cmd, err := c.ParseMQTTCommand(fakeMessage{topic: "oigshield/select/set_box_mode/set", payload: "Home 2"})
	require.NoError(err)
	require.Equal(&ParsedMQTTCommand{DeviceId: "set_box_mode", Command: COMMAND_TYPE_SELECT, Payload: "Home 2"}, cmd)

	cmd, err = c.ParseMQTTCommand(fakeMessage{topic: "oigshield/number/set_grid_delivery_limit/set", payload: "3500"})
	require.NoError(err)
	require.Equal(COMMAND_TYPE_NUMBER, cmd.Command)
	require.Equal("3500", cmd.Payload)

	_, err = c.ParseMQTTCommand(fakeMessage{topic: "oigshield/number/set_grid_delivery_limit/set", payload: "lots"})
	require.Error(err)

	_, err = c.ParseMQTTCommand(fakeMessage{topic: "oigshield/sensor/box_prms_mode/state", payload: "Home 1"})
	require.Error(err)
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)
	c := testClient()

	assert.Equal("oigshield/bridge/state", c.BridgeStateTopic())
	assert.Equal("oigshield/select/set_box_mode/state", c.SelectStateTopic("set_box_mode"))
	assert.Equal("oigshield/select/set_box_mode/set", c.SelectCommandTopic("set_box_mode"))
	assert.Equal("oigshield/shield/event", c.ShieldEventTopic())
}

func TestCommandTopics(t *testing.T) {

	assert := assert.New(t)
	c := testClient()

	assert.Equal([]string{"oigshield/select/+/set", "oigshield/number/+/set"}, c.commandTopics())

	_, err := c.ParseMQTTCommand(fakeMessage{topic: "oigshield/select/set_boiler_mode/set", payload: "  "})
	assert.Error(err)

	cmd, err := c.ParseMQTTCommand(fakeMessage{topic: "oigshield/number/set_grid_delivery_limit/set", payload: " 4200 "})
	assert.NoError(err)
	assert.Equal("4200", cmd.Payload)
}
