package service

import (
	"github.com/berfenger/oigshield2mqtt/internal/core/shield"
	"github.com/berfenger/oigshield2mqtt/pkg/oigcloud"

	"github.com/spf13/cast"
)

// Observable resources the shield verifies commands against.
const (
	RESOURCE_BOX_MODE      = "box_prms_mode"
	RESOURCE_GRID_DELIVERY = "invertor_prms_to_grid"
	RESOURCE_GRID_LIMIT    = "invertor_prm1_p_max_feed_grid"
	RESOURCE_BOILER_MODE   = "boiler_manual_mode"
)

const (
	BOX_MODE_HOME_1   = "Home 1"
	BOX_MODE_HOME_2   = "Home 2"
	BOX_MODE_HOME_3   = "Home 3"
	BOX_MODE_HOME_UPS = "Home UPS"

	GRID_DELIVERY_OFF     = "Vypnuto / Off"
	GRID_DELIVERY_ON      = "Zapnuto / On"
	GRID_DELIVERY_LIMITED = "S omezením / Limited"

	BOILER_MODE_CBB    = "CBB"
	BOILER_MODE_MANUAL = "Manual"

	SWITCH_OFF = "Vypnuto/Off"
	SWITCH_ON  = "Zapnuto/On"

	STATE_CHANGING = "changing"
	STATE_UNKNOWN  = "unknown"

	GRID_LIMIT_UNLIMITED = 10000
)

// Resources lists every resource ResourceValues can derive.
var Resources = []string{RESOURCE_BOX_MODE, RESOURCE_GRID_DELIVERY, RESOURCE_GRID_LIMIT, RESOURCE_BOILER_MODE}

var BoxModes = []string{BOX_MODE_HOME_1, BOX_MODE_HOME_2, BOX_MODE_HOME_3, BOX_MODE_HOME_UPS}

var GridDeliveryModes = []string{GRID_DELIVERY_OFF, GRID_DELIVERY_ON, GRID_DELIVERY_LIMITED}

var BoilerModes = []string{BOILER_MODE_CBB, BOILER_MODE_MANUAL}

// NewNormalizer returns the normalizer for the box resources. The grid limit is
// compared as a whole number of watts; everything else is enumerated.
func NewNormalizer() *shield.Normalizer {
	return shield.NewNormalizer(map[string]shield.ResourceSpec{
		RESOURCE_GRID_LIMIT: {Kind: shield.KindNumeric, Precision: 0},
	}, shield.DefaultSynonyms)
}

// ResourceValues derives the display value of every resource from a stats
// payload. Resources whose source nodes are missing are left out.
func ResourceValues(box oigcloud.BoxStats) map[string]any {
	values := make(map[string]any, 4)

	if v, ok := box.Node("box_prms", "mode"); ok {
		values[RESOURCE_BOX_MODE] = boxModeName(v)
	}
	if v, ok := box.Node("invertor_prms", "to_grid"); ok {
		values[RESOURCE_GRID_DELIVERY] = gridDeliveryMode(box, v)
	}
	if v, ok := box.Node("invertor_prm1", "p_max_feed_grid"); ok {
		if f, err := cast.ToFloat64E(v); err == nil {
			values[RESOURCE_GRID_LIMIT] = f
		}
	}
	if v, ok := box.Node("boiler_prms", "manual"); ok {
		values[RESOURCE_BOILER_MODE] = switchName(v)
	}
	return values
}

func boxModeName(v any) string {
	code, err := cast.ToIntE(v)
	if err != nil || code < 0 || code >= len(BoxModes) {
		return STATE_UNKNOWN
	}
	return BoxModes[code]
}

func switchName(v any) string {
	switch code, err := cast.ToIntE(v); {
	case err != nil:
		return STATE_UNKNOWN
	case code == 0:
		return SWITCH_OFF
	case code == 1:
		return SWITCH_ON
	}
	return STATE_UNKNOWN
}

// gridDeliveryMode combines to_grid, crcte and p_max_feed_grid. Queen boxes
// report the limit without crcte, so they follow a different table.
func gridDeliveryMode(box oigcloud.BoxStats, toGridRaw any) string {
	toGrid, err := cast.ToIntE(toGridRaw)
	if err != nil {
		return STATE_UNKNOWN
	}
	var enabled, maxFeed int
	if v, ok := box.Node("box_prms", "crcte"); ok {
		enabled = cast.ToInt(v)
	}
	if v, ok := box.Node("invertor_prm1", "p_max_feed_grid"); ok {
		maxFeed = cast.ToInt(v)
	}

	if box.Queen() {
		switch {
		case toGrid == 0 && maxFeed == 0:
			return GRID_DELIVERY_OFF
		case toGrid == 0 && maxFeed > 0:
			return GRID_DELIVERY_LIMITED
		case toGrid == 1:
			return GRID_DELIVERY_ON
		}
		return STATE_CHANGING
	}

	switch {
	case enabled == 0 && toGrid == 0:
		return GRID_DELIVERY_OFF
	case enabled == 1 && toGrid == 1 && maxFeed <= GRID_LIMIT_UNLIMITED-1:
		return GRID_DELIVERY_LIMITED
	case enabled == 1 && toGrid == 1 && maxFeed == GRID_LIMIT_UNLIMITED:
		return GRID_DELIVERY_ON
	}
	return STATE_CHANGING
}
