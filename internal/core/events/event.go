package events

import (
	. "github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/service"
	"github.com/berfenger/oigshield2mqtt/internal/core/shield"
	"github.com/berfenger/oigshield2mqtt/pkg/oigcloud"

	"github.com/spf13/cast"
)

// BoxStatsToUpdateEvents maps resource values derived from a stats payload to
// sensor, select and number updates.
func BoxStatsToUpdateEvents(box oigcloud.BoxStats, values map[string]any) []any {
	var events []any

	if v, ok := values[service.RESOURCE_BOX_MODE]; ok {
		mode := cast.ToString(v)
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_BOX_MODE},
			Value:                  mode,
		})
		events = append(events, SelectUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SELECT_ID_BOX_MODE},
			Value:                  mode,
		})
	}
	if v, ok := values[service.RESOURCE_GRID_DELIVERY]; ok {
		mode := cast.ToString(v)
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_DELIVERY},
			Value:                  mode,
		})
		events = append(events, SelectUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SELECT_ID_GRID_DELIVERY},
			Value:                  mode,
		})
	}
	if v, ok := values[service.RESOURCE_GRID_LIMIT]; ok {
		limit := cast.ToFloat64(v)
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_LIMIT},
			Value:                  limit,
		})
		events = append(events, InputNumberUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: NUMBER_ID_GRID_LIMIT},
			Value:                  limit,
		})
	}
	if v, ok := values[service.RESOURCE_BOILER_MODE]; ok {
		state := cast.ToString(v)
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_BOILER_MODE},
			Value:                  state,
		})
		// the select shows the mode, the sensor the switch state
		mode := service.BOILER_MODE_CBB
		if state == service.SWITCH_ON {
			mode = service.BOILER_MODE_MANUAL
		}
		events = append(events, SelectUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SELECT_ID_BOILER_MODE},
			Value:                  mode,
		})
	}
	if v, ok := box.Node("actual", "bat_c"); ok {
		if soc, err := cast.ToFloat64E(v); err == nil {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_BATTERY_SOC},
				Value:                  soc,
			})
		}
	}
	return events
}

func ShieldStateUpdateEvents(snap shield.Snapshot) []any {
	activity := SHIELD_STATE_IDLE
	queued := len(snap.Queue)
	if snap.Active != nil {
		activity = snap.Active.Name
		queued++
	}
	return []any{
		TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_SHIELD_STATUS},
			Value:                  SHIELD_STATE_ACTIVE,
		},
		FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_SHIELD_QUEUE},
			Value:                  float64(queued),
		},
		TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_SHIELD_ACTIVITY},
			Value:                  activity,
		},
	}
}
