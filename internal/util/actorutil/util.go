package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/service"
	"github.com/berfenger/oigshield2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps a select option or number written over MQTT
// to a shield submission. The entity id is the command name.
func ParsedMQTTCommandToCommand(catalog *service.CommandCatalog, cmd mqtt.ParsedMQTTCommand) (domain.SubmitCommandRequest, error) {
	switch {
	case cmd.Command == mqtt.COMMAND_TYPE_SELECT && cmd.DeviceId == domain.SELECT_ID_BOX_MODE,
		cmd.Command == mqtt.COMMAND_TYPE_SELECT && cmd.DeviceId == domain.SELECT_ID_GRID_DELIVERY,
		cmd.Command == mqtt.COMMAND_TYPE_SELECT && cmd.DeviceId == domain.SELECT_ID_BOILER_MODE,
		cmd.Command == mqtt.COMMAND_TYPE_NUMBER && cmd.DeviceId == domain.NUMBER_ID_GRID_LIMIT:
	default:
		return domain.SubmitCommandRequest{}, fmt.Errorf("%w: %s %s", service.ErrUnknownCommand, cmd.Command, cmd.DeviceId)
	}
	params, err := catalog.FromPayload(cmd.DeviceId, cmd.Payload)
	if err != nil {
		return domain.SubmitCommandRequest{}, err
	}
	return domain.SubmitCommandRequest{
		Name:   cmd.DeviceId,
		Params: params,
	}, nil
}
