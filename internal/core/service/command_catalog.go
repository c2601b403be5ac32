package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

const (
	CMD_SET_BOX_MODE            = "set_box_mode"
	CMD_SET_GRID_DELIVERY       = "set_grid_delivery"
	CMD_SET_GRID_DELIVERY_LIMIT = "set_grid_delivery_limit"
	CMD_SET_BOILER_MODE         = "set_boiler_mode"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidParams  = errors.New("invalid command params")
)

type BoxModeParams struct {
	Mode string `json:"mode" validate:"required,box_mode"`
}

// GridDeliveryParams sets either the delivery mode or the power limit, never both.
type GridDeliveryParams struct {
	Mode  string `json:"mode,omitempty" validate:"omitempty,grid_mode"`
	Limit *int   `json:"limit,omitempty" validate:"omitempty,min=1,max=9999"`
}

type GridDeliveryLimitParams struct {
	Limit int `json:"limit" validate:"required,min=1,max=9999"`
}

type BoilerModeParams struct {
	Mode string `json:"mode" validate:"required,boiler_mode"`
}

// CommandCatalog knows every mutating command: how to decode and validate its
// params and which resources it is expected to change.
type CommandCatalog struct {
	validate *validator.Validate
	norm     *shield.Normalizer
}

func NewCommandCatalog(norm *shield.Normalizer) *CommandCatalog {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, options := range map[string][]string{
		"box_mode":    BoxModes,
		"grid_mode":   GridDeliveryModes,
		"boiler_mode": BoilerModes,
	} {
		if err := v.RegisterValidation(tag, optionValidator(options)); err != nil {
			panic(fmt.Errorf("register %s validation: %w", tag, err))
		}
	}
	v.RegisterStructValidation(validateGridDelivery, GridDeliveryParams{})
	return &CommandCatalog{
		validate: v,
		norm:     norm,
	}
}

func (c *CommandCatalog) Normalizer() *shield.Normalizer {
	return c.norm
}

func (c *CommandCatalog) Names() []string {
	names := []string{CMD_SET_BOX_MODE, CMD_SET_GRID_DELIVERY, CMD_SET_GRID_DELIVERY_LIMIT, CMD_SET_BOILER_MODE}
	sort.Strings(names)
	return names
}

// Decode reads JSON params for a command.
func (c *CommandCatalog) Decode(name string, data []byte) (any, error) {
	var params any
	switch name {
	case CMD_SET_BOX_MODE:
		params = &BoxModeParams{}
	case CMD_SET_GRID_DELIVERY:
		params = &GridDeliveryParams{}
	case CMD_SET_GRID_DELIVERY_LIMIT:
		params = &GridDeliveryLimitParams{}
	case CMD_SET_BOILER_MODE:
		params = &BoilerModeParams{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if err := json.Unmarshal(data, params); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidParams, err)
	}
	return derefParams(params), nil
}

// FromPayload maps a single MQTT select option or number to command params.
func (c *CommandCatalog) FromPayload(name, payload string) (any, error) {
	payload = strings.TrimSpace(payload)
	switch name {
	case CMD_SET_BOX_MODE:
		return BoxModeParams{Mode: payload}, nil
	case CMD_SET_GRID_DELIVERY:
		return GridDeliveryParams{Mode: payload}, nil
	case CMD_SET_GRID_DELIVERY_LIMIT:
		f, err := cast.ToFloat64E(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidParams, err)
		}
		return GridDeliveryLimitParams{Limit: int(math.Round(f))}, nil
	case CMD_SET_BOILER_MODE:
		return BoilerModeParams{Mode: payload}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// Request validates params and builds the shield request for a command.
// Option values are rewritten to their canonical spelling.
func (c *CommandCatalog) Request(name string, params any) (shield.Request, error) {
	params = derefParams(params)
	if params == nil {
		return shield.Request{}, fmt.Errorf("%w: missing params", ErrInvalidParams)
	}
	if err := c.validate.Struct(params); err != nil {
		return shield.Request{}, fmt.Errorf("%w: %s", ErrInvalidParams, err)
	}

	switch p := params.(type) {
	case BoxModeParams:
		if name != CMD_SET_BOX_MODE {
			break
		}
		p.Mode = canonicalOption(BoxModes, p.Mode)
		return shield.Request{Name: name, Params: p, Expected: expectResource(RESOURCE_BOX_MODE, p.Mode)}, nil
	case GridDeliveryParams:
		if name != CMD_SET_GRID_DELIVERY {
			break
		}
		if p.Limit != nil {
			return shield.Request{Name: name, Params: p, Expected: expectResource(RESOURCE_GRID_LIMIT, *p.Limit)}, nil
		}
		p.Mode = canonicalOption(GridDeliveryModes, p.Mode)
		return shield.Request{Name: name, Params: p, Expected: expectResource(RESOURCE_GRID_DELIVERY, p.Mode)}, nil
	case GridDeliveryLimitParams:
		if name != CMD_SET_GRID_DELIVERY_LIMIT {
			break
		}
		return shield.Request{Name: name, Params: p, Expected: expectResource(RESOURCE_GRID_LIMIT, p.Limit)}, nil
	case BoilerModeParams:
		if name != CMD_SET_BOILER_MODE {
			break
		}
		p.Mode = canonicalOption(BoilerModes, p.Mode)
		target := SWITCH_OFF
		if p.Mode == BOILER_MODE_MANUAL {
			target = SWITCH_ON
		}
		return shield.Request{Name: name, Params: p, Expected: expectResource(RESOURCE_BOILER_MODE, target)}, nil
	}
	return shield.Request{}, fmt.Errorf("%w: %s with %T", ErrUnknownCommand, name, params)
}

// expectResource asks for a change only when the observed value differs from
// target. A resource that was never observed is still expected to change.
func expectResource(resourceID string, target any) shield.ExpectedStateProvider {
	return func(obs shield.StateObserver, norm *shield.Normalizer) shield.ExpectedState {
		if shield.Matches(obs, norm, nil, resourceID, target) {
			return nil
		}
		return shield.ExpectedState{{ResourceID: resourceID, Value: target}}
	}
}

func validateGridDelivery(sl validator.StructLevel) {
	p := sl.Current().Interface().(GridDeliveryParams)
	if (p.Mode == "") == (p.Limit == nil) {
		sl.ReportError(p.Mode, "Mode", "mode", "mode_xor_limit", "")
	}
}

func optionValidator(options []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return canonicalOption(options, fl.Field().String()) != ""
	}
}

// canonicalOption matches v against options ignoring case, whitespace and '/'.
func canonicalOption(options []string, v string) string {
	want := foldOption(v)
	if want == "" {
		return ""
	}
	for _, o := range options {
		if foldOption(o) == want {
			return o
		}
	}
	return ""
}

func foldOption(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '/' {
			return -1
		}
		return r
	}, strings.ToLower(s))
}

func derefParams(params any) any {
	switch p := params.(type) {
	case *BoxModeParams:
		if p == nil {
			return nil
		}
		return *p
	case *GridDeliveryParams:
		if p == nil {
			return nil
		}
		return *p
	case *GridDeliveryLimitParams:
		if p == nil {
			return nil
		}
		return *p
	case *BoilerModeParams:
		if p == nil {
			return nil
		}
		return *p
	}
	return params
}
