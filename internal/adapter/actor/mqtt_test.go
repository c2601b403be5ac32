package actor

import (
	"testing"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/shield"
	"github.com/berfenger/oigshield2mqtt/internal/mqtt"
	"github.com/berfenger/oigshield2mqtt/internal/util"
	"github.com/berfenger/oigshield2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.Equal(t, domain.ACTOR_ID_MQTT, resp.Id)

	es.Publish(domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_BOX_MODE,
		},
		Value: "Home 2",
	})
	es.Publish(domain.ShieldAuditEvent{
		Event: shield.AuditEvent{Type: shield.EventQueued, Name: "set_box_mode"},
	})

	result, err = context.RequestFuture(pid, domain.PublishDiscoveryRequest{}, 2*time.Second).Result()
	assert.NoError(t, err)
	assert.IsType(t, domain.PublishDiscoveryResponse{}, result)

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}

func TestEvent2MQTTMessage(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	act := NewTestMQTTActor(&cfg, nil, zap.NewNop())
	act.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	msg := act.event2MQTTMessage(domain.SelectUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SELECT_ID_GRID_DELIVERY},
		Value:                  "Zapnuto / On",
	})
	assert.Equal(&rawMessage{topic: "oigshield_test/select/set_grid_delivery/state", message: "Zapnuto / On", retain: true}, msg)

	msg = act.event2MQTTMessage(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SENSOR_ID_GRID_LIMIT},
		Value:                  4999.6,
	})
	assert.Equal("5000", msg.message)
	assert.False(msg.retain)

	msg = act.event2MQTTMessage(domain.InputNumberUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.NUMBER_ID_GRID_LIMIT},
		Value:                  3500,
	})
	assert.Equal("oigshield_test/number/set_grid_delivery_limit/state", msg.topic)
	assert.True(msg.retain)

	assert.Nil(act.event2MQTTMessage(struct{}{}))
}
