// Package session coordinates the page of one browser: the active project,
// the navigation state machine and the fetches that feed its views.
//
// User operations are serialized by opMu. Fetch completions arrive on their
// own goroutines and only reconcile derived state (sensor data inputs, the
// attribute editor baseline); they never change the navigation state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/attredit"
	"github.com/pv/sensor-panel/internal/directory"
	"github.com/pv/sensor-panel/internal/endpoint"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/metadata"
	"github.com/pv/sensor-panel/internal/models"
	"github.com/pv/sensor-panel/internal/navigation"
	"github.com/pv/sensor-panel/internal/resource"
	"github.com/pv/sensor-panel/internal/sensordata"
)

// Backend is everything a session requests from telemetry servers
type Backend interface {
	metadata.Source
	sensordata.Source
	attredit.Saver
	GetActive(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string) (*models.ActiveInfo, error)
	GetActiveSetting(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string) (*models.ActiveDevice, error)
	GetActiveNotify(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string) ([]models.ActiveNotify, error)
}

// Action навигационное действие пользователя
type Action string

const (
	ActionViewSensors    Action = "view_sensors"
	ActionViewDeviceAttr Action = "view_device_attr"
	ActionViewSensorAttr Action = "view_sensor_attr"
	ActionBackToDevice   Action = "back_to_device"
	ActionBackToSensors  Action = "back_to_sensors"
	ActionBack           Action = "back"
)

// Session is safe for concurrent use
type Session struct {
	id      string
	dir     *directory.Directory
	backend Backend

	nav  *navigation.Machine
	meta *metadata.Fetcher
	data *sensordata.Fetcher

	opMu  sync.Mutex // сериализует действия пользователя
	recMu sync.Mutex // сериализует reconcile

	mu         sync.Mutex
	project    string
	projectKey string
	ep         endpoint.Endpoint
	resolveErr error
	editor     *attredit.Editor
	lastSeen   time.Time

	listenersMu sync.Mutex
	listeners   map[uint64]func()
	nextID      uint64
}

// New creates a session without an active project. sink may be nil.
func New(id string, dir *directory.Directory, backend Backend, sink sensordata.Sink) *Session {
	s := &Session{
		id:        id,
		dir:       dir,
		backend:   backend,
		nav:       navigation.NewMachine(),
		meta:      metadata.NewFetcher(backend),
		data:      sensordata.NewFetcher(backend, sink),
		lastSeen:  time.Now(),
		listeners: make(map[uint64]func()),
	}
	s.meta.OnChange(func(metadata.State) {
		s.reconcile()
		s.notify()
	})
	s.data.OnChange(func() {
		s.ensureSnapshots()
		s.notify()
	})
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Touch marks the session as used
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the time of the last Touch
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Subscribe registers fn to be called after every state change.
// The returned function removes the subscription.
func (s *Session) Subscribe(fn func()) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Session) notify() {
	s.listenersMu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// target returns the resolved endpoint and project key
func (s *Session) target() (endpoint.Endpoint, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ep, s.projectKey
}

// SelectProject switches the active project. The navigation state is reset
// and the device list is fetched from scratch. A project whose endpoint is
// missing is still selected; its page shows "no endpoint".
func (s *Session) SelectProject(name string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	// Resolve сообщает и об отсутствующем endpoint; это не мешает выбору проекта
	p, ep, err := s.dir.Resolve(name)
	if _, ok := s.dir.Project(name); !ok {
		return err
	}

	s.mu.Lock()
	s.project = name
	s.projectKey = p.ProjectKey
	s.ep = ep
	s.resolveErr = err
	s.editor = nil
	s.mu.Unlock()

	s.nav.Reset()
	s.data.Clear()
	s.meta.Load(ep, p.ProjectKey)

	logger.Info("Project selected", "session", s.id, "project", name, "endpoint", endpoint.Identity(ep))
	s.reconcile()
	s.notify()
	return nil
}

// Reload resolves the active project again and restarts the device list.
// When the resolved endpoint or key changed, the fetch starts from scratch.
func (s *Session) Reload() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	name := s.project
	s.mu.Unlock()
	if name == "" {
		return apperr.NotFound("no project selected")
	}

	p, ep, err := s.dir.Resolve(name)
	if _, ok := s.dir.Project(name); !ok {
		return err
	}

	s.mu.Lock()
	changed := endpoint.Identity(ep) != endpoint.Identity(s.ep) || p.ProjectKey != s.projectKey
	s.projectKey = p.ProjectKey
	s.ep = ep
	s.resolveErr = err
	s.mu.Unlock()

	if changed || ep == nil {
		s.meta.Load(ep, p.ProjectKey)
	} else {
		s.meta.Restart()
	}
	s.notify()
	return nil
}

// Navigate applies a navigation action. Actions that are not valid in the
// current state leave it unchanged.
func (s *Session) Navigate(action Action, id string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	switch action {
	case ActionViewSensors:
		s.nav.ViewSensors(id)
	case ActionViewDeviceAttr:
		s.nav.ViewDeviceAttr(id)
	case ActionViewSensorAttr:
		s.nav.ViewSensorAttr(id)
	case ActionBackToDevice:
		s.nav.BackToDevice()
	case ActionBackToSensors:
		s.nav.BackToSensors()
	case ActionBack:
		s.nav.Back()
	default:
		return apperr.Validation("unknown navigation action %q", action)
	}

	s.reconcile()
	s.notify()
	return nil
}

// RefreshData re-fetches sensor values when the sensor page is shown
func (s *Session) RefreshData() bool {
	pc, _ := s.nav.Context()
	if pc.View != navigation.ViewSensor {
		return false
	}
	if _, ok := s.data.Inputs(); !ok {
		return false
	}
	s.data.Restart()
	return true
}

// displayed resolves the navigation state against the current device list
func (s *Session) displayed() (navigation.Displayed, metadata.State) {
	st := s.meta.State()
	return s.nav.Displayed(st.Value, st.Revision), st
}

// reconcile brings sensor data inputs and the attribute editor in line with
// the navigation state and the device list
func (s *Session) reconcile() {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	disp, _ := s.displayed()
	ep, key := s.target()
	view := disp.Context.View

	if view == navigation.ViewSensor && disp.Device != nil && ep != nil {
		s.data.Load(ep, key, disp.Device.ID)
	} else if _, ok := s.data.Inputs(); ok {
		s.data.Clear()
	}

	var want *attredit.Target
	switch {
	case view == navigation.ViewDeviceAttr && disp.Device != nil:
		want = &attredit.Target{DeviceID: disp.Device.ID}
	case view == navigation.ViewSensorAttr && disp.Sensor != nil:
		want = &attredit.Target{DeviceID: disp.Device.ID, SensorID: disp.Sensor.ID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case want == nil:
		if view != navigation.ViewDeviceAttr && view != navigation.ViewSensorAttr {
			s.editor = nil
		}
	case s.editor == nil || s.editor.Target() != *want:
		if want.SensorID == "" {
			s.editor = attredit.ForDevice(*disp.Device)
		} else {
			s.editor = attredit.ForSensor(disp.Device.ID, *disp.Sensor)
		}
	case want.SensorID == "":
		s.editor.Rebase(disp.Device.Name, disp.Device.Kind, disp.Device.Attributes)
	default:
		s.editor.Rebase(disp.Sensor.Name, string(disp.Sensor.Kind), disp.Sensor.Attributes)
	}
}

// ensureSnapshots starts image requests once raw data of the shown device arrived
func (s *Session) ensureSnapshots() {
	if s.data.State().Status != resource.Ready {
		return
	}
	in, ok := s.data.Inputs()
	if !ok {
		return
	}
	device, ok := models.FindDevice(s.meta.State().Value, in.DeviceID)
	if !ok {
		return
	}
	s.data.EnsureSnapshots(device)
}

func (s *Session) currentEditor() (*attredit.Editor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editor == nil {
		return nil, apperr.NotFound("no attributes are being edited")
	}
	return s.editor, nil
}

// AddAttribute appends an empty row to the edited list
func (s *Session) AddAttribute() error {
	e, err := s.currentEditor()
	if err != nil {
		return err
	}
	e.Add()
	s.notify()
	return nil
}

// UpdateAttribute sets one field of an edited row
func (s *Session) UpdateAttribute(index int, field attredit.Field, value string) error {
	e, err := s.currentEditor()
	if err != nil {
		return err
	}
	if err := e.Update(index, field, value); err != nil {
		return err
	}
	s.notify()
	return nil
}

// RemoveAttribute deletes an edited row
func (s *Session) RemoveAttribute(index int) error {
	e, err := s.currentEditor()
	if err != nil {
		return err
	}
	e.Remove(index)
	s.notify()
	return nil
}

// SaveAttributes sends the edited list and restarts the device list on
// success. Edits are kept when the save fails.
func (s *Session) SaveAttributes(ctx context.Context) (string, error) {
	e, err := s.currentEditor()
	if err != nil {
		return "", err
	}
	ep, key := s.target()

	text, err := e.Save(ctx, s.backend, ep, key, s.meta)
	s.notify()
	return text, err
}

// ActiveReport is the activity monitoring state of a device
type ActiveReport struct {
	Info    *models.ActiveInfo    `json:"info"`
	Setting *models.ActiveDevice  `json:"setting"`
	Notify  []models.ActiveNotify `json:"notify"`
}

// Active loads the activity state of the selected device
func (s *Session) Active(ctx context.Context) (*ActiveReport, error) {
	pc, _ := s.nav.Context()
	if pc.SelectedDevice == "" {
		return nil, apperr.NotFound("no device selected")
	}
	ep, key := s.target()
	if ep == nil {
		return nil, apperr.NotFound("no endpoint")
	}

	info, err := s.backend.GetActive(ctx, ep, key, pc.SelectedDevice)
	if err != nil {
		return nil, err
	}
	setting, err := s.backend.GetActiveSetting(ctx, ep, key, pc.SelectedDevice)
	if err != nil {
		return nil, err
	}
	notify, err := s.backend.GetActiveNotify(ctx, ep, key, pc.SelectedDevice)
	if err != nil {
		return nil, err
	}
	if notify == nil {
		notify = []models.ActiveNotify{}
	}
	return &ActiveReport{Info: info, Setting: setting, Notify: notify}, nil
}

// Wait blocks until fetches in flight have returned
func (s *Session) Wait() {
	s.meta.Wait()
	s.data.Wait()
}

// Close cancels all fetches of the session
func (s *Session) Close() {
	s.meta.Close()
	s.data.Close()
}
