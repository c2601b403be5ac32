package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/oigshield2mqtt/internal/core/service"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE    = "bridge"
	SENSOR_ID_BOX_MODE        = service.RESOURCE_BOX_MODE
	SENSOR_ID_GRID_DELIVERY   = service.RESOURCE_GRID_DELIVERY
	SENSOR_ID_GRID_LIMIT      = service.RESOURCE_GRID_LIMIT
	SENSOR_ID_BOILER_MODE     = service.RESOURCE_BOILER_MODE
	SENSOR_ID_BATTERY_SOC     = "battery_soc"
	SENSOR_ID_SHIELD_STATUS   = "service_shield_status"
	SENSOR_ID_SHIELD_QUEUE    = "service_shield_queue"
	SENSOR_ID_SHIELD_ACTIVITY = "service_shield_activity"
	SELECT_ID_BOX_MODE        = service.CMD_SET_BOX_MODE
	SELECT_ID_GRID_DELIVERY   = service.CMD_SET_GRID_DELIVERY
	SELECT_ID_BOILER_MODE     = service.CMD_SET_BOILER_MODE
	NUMBER_ID_GRID_LIMIT      = service.CMD_SET_GRID_DELIVERY_LIMIT
	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_BATTERY      = "battery"
	DEVICE_CLASS_POWER        = "power"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
	INPUT_NUMBER_MODE_BOX     = "box"
	STATE_UNKNOWN             = "unknown"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("oigshield_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "oigshield2mqtt",
		Model:        "OIG Shield bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("OIG Shield %s", md5HashShort(baseTopic)),
	}
}

func BoxDevice(boxId string, queen bool) Device {
	model := "Battery Box"
	if queen {
		model = "Battery Box Queen"
	}
	return Device{
		Id:           fmt.Sprintf("oig_box_%s", md5HashShort(boxId)),
		Manufacturer: "OIG Power",
		Model:        model,
		Name:         fmt.Sprintf("OIG %s", boxId),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// BoxSensors are the observed resources of the box. The first sensor carries
// the full device, the rest only reference it.
func BoxSensors(boxDevice Device) []GenericSensor {
	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:     boxDevice,
		Id:         SENSOR_ID_BOX_MODE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Box mode",
		Icon:       "mdi:home-battery",
		UniqueId:   uniqueId(boxDevice.Id, SENSOR_ID_BOX_MODE),
	})
	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(boxDevice),
		Id:         SENSOR_ID_GRID_DELIVERY,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Grid delivery",
		Icon:       "mdi:transmission-tower-export",
		UniqueId:   uniqueId(boxDevice.Id, SENSOR_ID_GRID_DELIVERY),
	})
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(boxDevice),
		Id:                SENSOR_ID_GRID_LIMIT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid delivery limit",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(boxDevice.Id, SENSOR_ID_GRID_LIMIT),
	})
	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(boxDevice),
		Id:         SENSOR_ID_BOILER_MODE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Boiler manual mode",
		Icon:       "mdi:water-boiler",
		UniqueId:   uniqueId(boxDevice.Id, SENSOR_ID_BOILER_MODE),
	})
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(boxDevice),
		Id:                SENSOR_ID_BATTERY_SOC,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery state of charge",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(boxDevice.Id, SENSOR_ID_BATTERY_SOC),
	})
	return sensors
}

func ShieldSensors(bridgeDevice Device) []GenericSensor {
	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(bridgeDevice),
		Id:             SENSOR_ID_SHIELD_STATUS,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "ServiceShield status",
		Icon:           "mdi:shield-check",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_SHIELD_STATUS),
	})
	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(bridgeDevice),
		Id:         SENSOR_ID_SHIELD_QUEUE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "ServiceShield queue",
		Icon:       "mdi:format-list-numbered",
		StateClass: STATE_CLASS_MEASUREMENT,
		UniqueId:   uniqueId(bridgeDevice.Id, SENSOR_ID_SHIELD_QUEUE),
	})
	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(bridgeDevice),
		Id:         SENSOR_ID_SHIELD_ACTIVITY,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "ServiceShield activity",
		Icon:       "mdi:shield-sync",
		UniqueId:   uniqueId(bridgeDevice.Id, SENSOR_ID_SHIELD_ACTIVITY),
	})
	return sensors
}

func BoxSelects(boxDevice Device) []GenericSelect {
	var selects []GenericSelect

	selects = append(selects, GenericSelect{
		Device:   IdDevice(boxDevice),
		Id:       SELECT_ID_BOX_MODE,
		Name:     "Set box mode",
		UniqueId: uniqueId(boxDevice.Id, SELECT_ID_BOX_MODE),
		Icon:     "mdi:home-battery-outline",
		Options:  service.BoxModes,
	})
	selects = append(selects, GenericSelect{
		Device:   IdDevice(boxDevice),
		Id:       SELECT_ID_GRID_DELIVERY,
		Name:     "Set grid delivery",
		UniqueId: uniqueId(boxDevice.Id, SELECT_ID_GRID_DELIVERY),
		Icon:     "mdi:transmission-tower",
		Options:  service.GridDeliveryModes,
	})
	selects = append(selects, GenericSelect{
		Device:   IdDevice(boxDevice),
		Id:       SELECT_ID_BOILER_MODE,
		Name:     "Set boiler mode",
		UniqueId: uniqueId(boxDevice.Id, SELECT_ID_BOILER_MODE),
		Icon:     "mdi:water-boiler-auto",
		Options:  service.BoilerModes,
	})
	return selects
}

func BoxInputNumbers(boxDevice Device) []GenericInputNumber {
	return []GenericInputNumber{{
		Device:            IdDevice(boxDevice),
		Id:                NUMBER_ID_GRID_LIMIT,
		Name:              "Set grid delivery limit",
		UniqueId:          uniqueId(boxDevice.Id, NUMBER_ID_GRID_LIMIT),
		Icon:              "mdi:transmission-tower-export",
		UnitOfMeasurement: "W",
		Min:               1,
		Max:               9999,
		Step:              1,
		Mode:              INPUT_NUMBER_MODE_BOX,
	}}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
