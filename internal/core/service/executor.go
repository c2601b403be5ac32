package service

import (
	"context"
	"fmt"

	"github.com/berfenger/oigshield2mqtt/internal/core/port"
	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"go.uber.org/zap"
)

// CommandExecutor translates catalog params into box writes.
type CommandExecutor struct {
	box    port.BoxControl
	logger *zap.Logger
}

func NewCommandExecutor(box port.BoxControl, logger *zap.Logger) *CommandExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandExecutor{
		box:    box,
		logger: logger,
	}
}

func (e *CommandExecutor) Execute(ctx context.Context, cmd shield.Command) error {
	e.logger.Info("sending command to cloud", zap.String("id", cmd.ID), zap.String("name", cmd.Name), zap.Any("params", cmd.Params))

	switch p := derefParams(cmd.Params).(type) {
	case BoxModeParams:
		code := optionIndex(BoxModes, p.Mode)
		if code < 0 {
			return fmt.Errorf("unknown box mode %q", p.Mode)
		}
		return e.box.SetBoxMode(ctx, code)
	case GridDeliveryParams:
		if p.Limit != nil {
			return e.box.SetGridDeliveryLimit(ctx, *p.Limit)
		}
		mode := canonicalOption(GridDeliveryModes, p.Mode)
		if mode == "" {
			return fmt.Errorf("unknown grid delivery mode %q", p.Mode)
		}
		return e.box.SetGridDelivery(ctx, mode != GRID_DELIVERY_OFF)
	case GridDeliveryLimitParams:
		return e.box.SetGridDeliveryLimit(ctx, p.Limit)
	case BoilerModeParams:
		code := optionIndex(BoilerModes, p.Mode)
		if code < 0 {
			return fmt.Errorf("unknown boiler mode %q", p.Mode)
		}
		return e.box.SetBoilerMode(ctx, code)
	}
	return fmt.Errorf("%w: %s with %T", ErrUnknownCommand, cmd.Name, cmd.Params)
}

func optionIndex(options []string, v string) int {
	v = canonicalOption(options, v)
	for i, o := range options {
		if o == v {
			return i
		}
	}
	return -1
}

var _ shield.RemoteExecutor = (*CommandExecutor)(nil)
