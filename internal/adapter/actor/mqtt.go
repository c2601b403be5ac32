package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/config"
	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/shield"
	"github.com/berfenger/oigshield2mqtt/internal/mqtt"
	"github.com/berfenger/oigshield2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	logger         *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

// shieldEventPayload is the JSON published on the shield event topic.
type shieldEventPayload struct {
	shield.AuditEvent
	Changes []string `json:"changes"`
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()

	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		state.subscribeEventStream(root, self)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				root.Send(self, ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishSensorUpdateRequest:
		// receive message from event bus and publish to MQTT if needed
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValue(ctx, msg.Event, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.ShieldAuditEvent:
		state.logger.Debug("mqtt@default ShieldAuditEvent", zap.String("event", string(msg.Event.Type)))
		payload, err := json.Marshal(shieldEventPayload{AuditEvent: msg.Event, Changes: msg.Event.Changes()})
		if err != nil {
			state.logger.Error("mqtt@default could not encode shield event", zap.Error(err))
			return
		}
		state.publishMessage(ctx, state.client.ShieldEventTopic(), string(payload), false, nil)
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		err := state.PublishHomeAssistantDiscovery(msg.Sensors, msg.Selects, msg.InputNumbers)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		actorutil.ForRequest(msg).TryRespond(ctx, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ResponseFailed(err),
		})
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// subscribeEventStream forwards sensor updates and shield audit events from
// the event stream to this actor.
func (state *MQTTActor) subscribeEventStream(root *actor.RootContext, self *actor.PID) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		switch ev := value.(type) {
		case domain.SensorUpdateEvent:
			root.Send(self, domain.PublishSensorUpdateRequest{Event: ev})
		case domain.ShieldAuditEvent:
			root.Send(self, ev)
		}
	})
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
		}
	case domain.SelectUpdateEvent:
		return &rawMessage{
			topic:   state.client.SelectStateTopic(msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case domain.InputNumberUpdateEvent:
		return &rawMessage{
			topic:   state.client.InputNumberStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
			retain:  true,
		}
	case domain.BridgeStateUpdateEvent:
		var stringMessage string
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		} else {
			stringMessage = mqtt.MQTT_PAYLOAD_OFFLINE
		}
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: stringMessage,
			retain:  true,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishSensorValue(ctx actor.Context, event domain.SensorUpdateEvent, retain bool, replyTo *actor.PID) {
	msg := state.event2MQTTMessage(event)
	if msg == nil {
		return
	}
	state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.EventPublishResultReceive)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ResponseFailed(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishSensorUpdateResponse{
				ActorResponseMixIn: domain.ResponseFailed(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(sensors []domain.GenericSensor,
	selects []domain.GenericSelect, inputNumbers []domain.GenericInputNumber) error {
	prefix := state.config.MQTT.HADiscoveryTopic
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoverySensorTopic(prefix, sensors[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	for i := range selects {
		msg := mqtt.GenericSelectToHADiscoveryMessage(state.client, selects[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoverySelectTopic(prefix, selects[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	for i := range inputNumbers {
		msg := mqtt.GenericInputNumberToHADiscoveryMessage(state.client, inputNumbers[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoveryInputNumberTopic(prefix, inputNumbers[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.logger.Debug("mqtt: disconnect")
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
		state.client = nil
	}
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

// DummyReceive answers like the real actor without talking to a broker.
func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.subscribeEventStream(ctx.ActorSystem().Root, ctx.Self())
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishSensorUpdateRequest:
		if m := state.event2MQTTMessage(msg.Event); m != nil {
			state.logger.Sugar().Debugf("mqtt@dummy: sensor publish %s => %s", m.topic, m.message)
		}
		actorutil.ForRequest(msg).TryRespond(ctx, domain.PublishSensorUpdateResponse{})
	case domain.ShieldAuditEvent:
		state.logger.Debug("mqtt@dummy ShieldAuditEvent", zap.String("event", string(msg.Event.Type)))
	case domain.PublishMessageRequest:
		actorutil.ForRequest(msg).TryRespond(ctx, domain.PublishMessageResponse{})
	case domain.PublishDiscoveryRequest:
		actorutil.ForRequest(msg).TryRespond(ctx, domain.PublishDiscoveryResponse{})
	}
}
