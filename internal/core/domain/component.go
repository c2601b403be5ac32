package domain

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // power, battery, enum
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

type GenericSelect struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
	Options  []string
}

type GenericInputNumber struct {
	Device            Device
	Id                string
	Name              string
	UniqueId          string
	Icon              string
	UnitOfMeasurement string
	Max               float64
	Min               float64
	Step              float64
	Mode              string
}
