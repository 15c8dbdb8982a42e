// Package attredit keeps a locally edited copy of a device's or sensor's
// attribute list and saves it back to the backend.
package attredit

import (
	"context"
	"slices"
	"sync"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/endpoint"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/models"
)

// Field редактируемое поле строки атрибута
type Field string

const (
	FieldKey   Field = "key"
	FieldValue Field = "value"
)

// Saver выполняет частичное обновление сущности
type Saver interface {
	PutDevice(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string, edit models.EditDevice) (string, error)
	PutSensor(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID, sensorID string, edit models.EditSensor) (string, error)
}

// Refresher is restarted after a successful save (metadata fetcher)
type Refresher interface {
	Restart() uint64
}

// Target identifies the edited entity. SensorID is empty for a device.
type Target struct {
	DeviceID string `json:"deviceId"`
	SensorID string `json:"sensorId,omitempty"`
}

// State is what the attribute page renders
type State struct {
	Target     Target             `json:"target"`
	Attributes []models.Attribute `json:"attributes"`
	Dirty      bool               `json:"dirty"`
	Saving     bool               `json:"saving"`
}

// Editor is safe for concurrent use
type Editor struct {
	mu       sync.Mutex
	target   Target
	name     string
	kind     string
	baseline []models.Attribute
	working  []models.Attribute
	saving   bool
}

func newEditor(target Target, name, kind string, attrs []models.Attribute) *Editor {
	return &Editor{
		target:   target,
		name:     name,
		kind:     kind,
		baseline: slices.Clone(attrs),
		working:  slices.Clone(attrs),
	}
}

// ForDevice starts editing the attributes of device
func ForDevice(device models.Device) *Editor {
	return newEditor(Target{DeviceID: device.ID}, device.Name, device.Kind, device.Attributes)
}

// ForSensor starts editing the attributes of sensor of device deviceID
func ForSensor(deviceID string, sensor models.Sensor) *Editor {
	return newEditor(Target{DeviceID: deviceID, SensorID: sensor.ID}, sensor.Name, string(sensor.Kind), sensor.Attributes)
}

func (e *Editor) Target() Target {
	return e.target
}

// Add appends an empty row
func (e *Editor) Add() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.working = append(e.working, models.Attribute{})
}

// Update sets field of row index. An index out of range is ignored.
func (e *Editor) Update(index int, field Field, value string) error {
	if field != FieldKey && field != FieldValue {
		return apperr.Validation("unknown attribute field %q", field)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.working) {
		return nil
	}
	if field == FieldKey {
		e.working[index].Key = value
	} else {
		e.working[index].Value = value
	}
	return nil
}

// Remove deletes row index. An index out of range is ignored.
func (e *Editor) Remove(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.working) {
		return
	}
	e.working = slices.Delete(e.working, index, index+1)
}

// IsDirty reports whether the working copy differs from the baseline
func (e *Editor) IsDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirtyLocked()
}

func (e *Editor) dirtyLocked() bool {
	// nil и пустой список эквивалентны
	return !slices.Equal(e.baseline, e.working)
}

// Attributes returns a copy of the working list
func (e *Editor) Attributes() []models.Attribute {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.working)
}

// State returns a consistent view of the editor
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	attrs := slices.Clone(e.working)
	if attrs == nil {
		attrs = []models.Attribute{}
	}
	return State{
		Target:     e.target,
		Attributes: attrs,
		Dirty:      e.dirtyLocked(),
		Saving:     e.saving,
	}
}

// Rebase replaces the baseline with the authoritative attributes after a
// metadata refresh. The working copy is kept, so unsaved edits survive.
func (e *Editor) Rebase(name, kind string, attrs []models.Attribute) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = name
	e.kind = kind
	e.baseline = slices.Clone(attrs)
}

// Save sends name, type and the whole working list. On success refresh is
// restarted and the server response text is returned. On failure the working
// copy is left untouched.
func (e *Editor) Save(ctx context.Context, saver Saver, ep endpoint.Endpoint, projectKey string, refresh Refresher) (string, error) {
	if ep == nil {
		return "", apperr.NotFound("no endpoint")
	}

	e.mu.Lock()
	attrs := slices.Clone(e.working)
	if attrs == nil {
		attrs = []models.Attribute{}
	}
	name, kind, target := e.name, e.kind, e.target
	e.saving = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.saving = false
		e.mu.Unlock()
	}()

	var (
		text string
		err  error
	)
	if target.SensorID == "" {
		text, err = saver.PutDevice(ctx, ep, projectKey, target.DeviceID, models.EditDevice{
			Name:       name,
			Kind:       kind,
			Attributes: attrs,
		})
	} else {
		text, err = saver.PutSensor(ctx, ep, projectKey, target.DeviceID, target.SensorID, models.EditSensor{
			Name:       name,
			Kind:       models.SensorType(kind),
			Attributes: attrs,
		})
	}
	if err != nil {
		logger.Warn("Attribute save failed", "device", target.DeviceID, "sensor", target.SensorID, "error", err)
		return "", err
	}

	logger.Info("Attributes saved", "device", target.DeviceID, "sensor", target.SensorID, "count", len(attrs))
	if refresh != nil {
		refresh.Restart()
	}
	return text, nil
}
