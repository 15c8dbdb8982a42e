// Package navigation holds the Device → Sensor → Attribute page state.
//
// State changes only through the transition methods, which are called on user
// actions. Network completions never mutate it; they only change what the
// derived views resolve to.
package navigation

import (
	"sync"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/models"
)

// ViewStatus текущий уровень навигации
type ViewStatus int

const (
	ViewDevice ViewStatus = iota
	ViewDeviceAttr
	ViewSensor
	ViewSensorAttr
)

func (v ViewStatus) String() string {
	switch v {
	case ViewDevice:
		return "device"
	case ViewDeviceAttr:
		return "device_attr"
	case ViewSensor:
		return "sensor"
	case ViewSensorAttr:
		return "sensor_attr"
	default:
		return "unknown"
	}
}

func (v ViewStatus) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// PageContext is the state of the machine. An empty id means "not selected".
//
//	SelectedSensor != "" only in ViewSensorAttr
//	SelectedDevice != "" whenever View != ViewDevice
type PageContext struct {
	View           ViewStatus `json:"view"`
	SelectedDevice string     `json:"selectedDevice,omitempty"`
	SelectedSensor string     `json:"selectedSensor,omitempty"`
}

// Valid reports whether c satisfies the selection invariants
func (c PageContext) Valid() bool {
	switch c.View {
	case ViewDevice:
		return c.SelectedDevice == "" && c.SelectedSensor == ""
	case ViewDeviceAttr, ViewSensor:
		return c.SelectedDevice != "" && c.SelectedSensor == ""
	case ViewSensorAttr:
		return c.SelectedDevice != "" && c.SelectedSensor != ""
	default:
		return false
	}
}

// Displayed is the projection of (PageContext, metadata) shown to the user.
// Err is a NotFoundLocally error when a selected id has no match; the page
// then shows an error panel with a back action.
type Displayed struct {
	Context PageContext
	Device  *models.Device
	Sensor  *models.Sensor
	Err     error
}

// Derive resolves the selected ids against devices
func Derive(c PageContext, devices []models.Device) Displayed {
	out := Displayed{Context: c}
	if c.View == ViewDevice {
		return out
	}

	device, ok := models.FindDevice(devices, c.SelectedDevice)
	if !ok {
		out.Err = apperr.NotFound("device %q not found", c.SelectedDevice)
		return out
	}
	out.Device = &device

	if c.View == ViewSensorAttr {
		sensor, ok := device.FindSensor(c.SelectedSensor)
		if !ok {
			out.Err = apperr.NotFound("sensor %q not found in device %q", c.SelectedSensor, c.SelectedDevice)
			return out
		}
		out.Sensor = &sensor
	}
	return out
}

// Machine is safe for concurrent use
type Machine struct {
	mu      sync.Mutex
	ctx     PageContext
	version uint64

	// memo для Displayed
	memoValid   bool
	memoVersion uint64
	memoRev     uint64
	memo        Displayed
}

func NewMachine() *Machine {
	return &Machine{}
}

// Context returns the current state and its version
func (m *Machine) Context() (PageContext, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx, m.version
}

// apply must be called with mu held
func (m *Machine) apply(next PageContext) bool {
	if next == m.ctx {
		return false
	}
	m.ctx = next
	m.version++
	return true
}

// ViewSensors: Device → Sensor. Ignored in other states or for an empty id.
func (m *Machine) ViewSensors(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.View != ViewDevice || deviceID == "" {
		return false
	}
	return m.apply(PageContext{View: ViewSensor, SelectedDevice: deviceID})
}

// ViewDeviceAttr: Device → DeviceAttr
func (m *Machine) ViewDeviceAttr(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.View != ViewDevice || deviceID == "" {
		return false
	}
	return m.apply(PageContext{View: ViewDeviceAttr, SelectedDevice: deviceID})
}

// ViewSensorAttr: Sensor → SensorAttr
func (m *Machine) ViewSensorAttr(sensorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.View != ViewSensor || sensorID == "" {
		return false
	}
	return m.apply(PageContext{
		View:           ViewSensorAttr,
		SelectedDevice: m.ctx.SelectedDevice,
		SelectedSensor: sensorID,
	})
}

// BackToDevice returns to the device list from any state
func (m *Machine) BackToDevice() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apply(PageContext{View: ViewDevice})
}

// BackToSensors: SensorAttr → Sensor, keeps the device
func (m *Machine) BackToSensors() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.View != ViewSensorAttr {
		return false
	}
	return m.apply(PageContext{View: ViewSensor, SelectedDevice: m.ctx.SelectedDevice})
}

// Back leaves the current level: SensorAttr → Sensor, everything else → Device
func (m *Machine) Back() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.View == ViewSensorAttr {
		return m.apply(PageContext{View: ViewSensor, SelectedDevice: m.ctx.SelectedDevice})
	}
	return m.apply(PageContext{View: ViewDevice})
}

// Reset is called when the active project changes. The version always
// advances so that memoized views of the previous project are dropped.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = PageContext{View: ViewDevice}
	m.version++
}

// Displayed returns Derive(Context, devices), recomputed only when the
// navigation version or the metadata revision changed
func (m *Machine) Displayed(devices []models.Device, metadataRev uint64) Displayed {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.memoValid && m.memoVersion == m.version && m.memoRev == metadataRev {
		return m.memo
	}
	m.memo = Derive(m.ctx, devices)
	m.memoVersion = m.version
	m.memoRev = metadataRev
	m.memoValid = true
	return m.memo
}
