// Package models contains the wire types of the telemetry backend.
// Field names (type, deviceId, ...) are fixed by the backend protocol.
package models

// SensorType определяет способ интерпретации значения датчика
type SensorType string

const (
	SensorGauge    SensorType = "gauge"
	SensorText     SensorType = "text"
	SensorSwitch   SensorType = "switch"
	SensorSnapshot SensorType = "snapshot"
)

// Attribute пара ключ/значение; дубликаты ключей допустимы, порядок сохраняется
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Sensor датчик устройства; id уникален в пределах устройства
type Sensor struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Desc       string      `json:"desc,omitempty"`
	Kind       SensorType  `json:"type"`
	URI        string      `json:"uri,omitempty"`
	Formula    string      `json:"formula,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Device устройство проекта; id уникален в пределах ответа metadata
type Device struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Desc       string      `json:"desc,omitempty"`
	Kind       string      `json:"type"`
	URI        string      `json:"uri,omitempty"`
	Lat        *float64    `json:"lat,omitempty"`
	Lon        *float64    `json:"lon,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Sensors    []Sensor    `json:"sensors,omitempty"`
}

// FindSensor returns the sensor with the given id
func (d *Device) FindSensor(id string) (Sensor, bool) {
	for _, s := range d.Sensors {
		if s.ID == id {
			return s, true
		}
	}
	return Sensor{}, false
}

// FindDevice returns the device with the given id
func FindDevice(devices []Device, id string) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// EditDevice partial update payload for PUT /device/{id}
type EditDevice struct {
	Name       string      `json:"name"`
	Desc       string      `json:"desc,omitempty"`
	Kind       string      `json:"type"`
	URI        string      `json:"uri,omitempty"`
	Lat        *float64    `json:"lat,omitempty"`
	Lon        *float64    `json:"lon,omitempty"`
	Attributes []Attribute `json:"attributes"` // всегда передаётся целиком, пустой список очищает
}

// EditSensor partial update payload for PUT /device/{id}/sensor/{id}
type EditSensor struct {
	Name       string      `json:"name"`
	Desc       string      `json:"desc,omitempty"`
	Kind       SensorType  `json:"type"`
	URI        string      `json:"uri,omitempty"`
	Formula    string      `json:"formula,omitempty"`
	Attributes []Attribute `json:"attributes"`
}

// RawData последнее значение датчика; ID совпадает с Sensor.ID того же устройства
type RawData struct {
	ID       string   `json:"id"`
	DeviceID string   `json:"deviceId"`
	Value    []string `json:"value"`
	Time     string   `json:"time,omitempty"`
}

// SensorWithData датчик вместе с его значением (Data == nil если значения нет)
type SensorWithData struct {
	Sensor Sensor   `json:"sensor"`
	Data   *RawData `json:"data"`
}
