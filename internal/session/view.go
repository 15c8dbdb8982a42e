package session

import (
	"github.com/pv/sensor-panel/internal/attredit"
	"github.com/pv/sensor-panel/internal/models"
	"github.com/pv/sensor-panel/internal/navigation"
	"github.com/pv/sensor-panel/internal/resource"
	"github.com/pv/sensor-panel/internal/sensordata"
)

// Panel is the kind of content shown in place of the page body
type Panel string

const (
	PanelNoProject  Panel = "no_project"
	PanelLoading    Panel = "loading"
	PanelLoadError  Panel = "load_error" // fetch failed or no endpoint
	PanelError      Panel = "error"      // selected device/sensor not found, back stays available
	PanelDevices    Panel = "devices"
	PanelSensors    Panel = "sensors"
	PanelDeviceAttr Panel = "device_attr"
	PanelSensorAttr Panel = "sensor_attr"
)

// View is the projection of the session rendered by the browser
type View struct {
	Session      string                  `json:"session"`
	Project      string                  `json:"project,omitempty"`
	EndpointKind string                  `json:"endpointKind,omitempty"`
	EndpointURL  string                  `json:"endpointUrl,omitempty"`
	Context      navigation.PageContext  `json:"context"`
	Panel        Panel                   `json:"panel"`
	Error        string                  `json:"error,omitempty"`
	Refreshing   bool                    `json:"refreshing,omitempty"` // device list reloads, stale list shown
	Devices      []models.Device         `json:"devices,omitempty"`
	Device       *models.Device          `json:"device,omitempty"`
	Sensor       *models.Sensor          `json:"sensor,omitempty"`
	SensorStatus string                  `json:"sensorStatus,omitempty"`
	SensorError  string                  `json:"sensorError,omitempty"`
	Sensors      []sensordata.SensorView `json:"sensors,omitempty"`
	Editor       *attredit.State         `json:"editor,omitempty"`
}

// View builds the current projection
func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		Session: s.id,
		Project: s.project,
	}
	ep, resolveErr, editor := s.ep, s.resolveErr, s.editor
	s.mu.Unlock()

	disp, st := s.displayed()
	v.Context = disp.Context

	if ep != nil {
		v.EndpointKind = ep.Kind()
		v.EndpointURL = ep.BaseURL()
	}

	switch {
	case v.Project == "":
		v.Panel = PanelNoProject
		return v
	case resolveErr != nil:
		v.Panel = PanelLoadError
		v.Error = resolveErr.Error()
		return v
	case st.Status == resource.Failed:
		v.Panel = PanelLoadError
		v.Error = st.Err.Error()
		return v
	case !st.HasValue:
		v.Panel = PanelLoading
		return v
	}
	v.Refreshing = st.Status == resource.Loading

	if disp.Err != nil {
		v.Panel = PanelError
		v.Error = disp.Err.Error()
		return v
	}
	v.Device = disp.Device
	v.Sensor = disp.Sensor

	switch disp.Context.View {
	case navigation.ViewDevice:
		v.Panel = PanelDevices
		v.Devices = st.Value
	case navigation.ViewSensor:
		v.Panel = PanelSensors
		s.fillSensors(&v, *disp.Device)
	case navigation.ViewDeviceAttr, navigation.ViewSensorAttr:
		v.Panel = PanelDeviceAttr
		if disp.Context.View == navigation.ViewSensorAttr {
			v.Panel = PanelSensorAttr
		}
		if editor != nil {
			es := editor.State()
			v.Editor = &es
		}
	}
	return v
}

func (s *Session) fillSensors(v *View, device models.Device) {
	in, ok := s.data.Inputs()
	if !ok || in.DeviceID != device.ID {
		v.SensorStatus = resource.Loading.String()
		return
	}

	st := s.data.State()
	v.SensorStatus = st.Status.String()
	if st.Status == resource.Failed {
		v.SensorError = st.Err.Error()
		return
	}
	if !st.HasValue {
		return
	}
	v.Sensors = s.data.Rows(device)
}
