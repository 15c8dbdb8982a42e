package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/attredit"
	"github.com/pv/sensor-panel/internal/backend"
	"github.com/pv/sensor-panel/internal/directory"
	"github.com/pv/sensor-panel/internal/models"
	"github.com/pv/sensor-panel/internal/navigation"
	"github.com/pv/sensor-panel/internal/storage"
)

// fakeBackend эмулирует сервер телеметрии с изменяемым списком устройств
type fakeBackend struct {
	mu      sync.Mutex
	devices []models.Device
	raw     map[string][]models.RawData
	puts    int
}

func (b *fakeBackend) setDevices(devices []models.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = devices
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metadata", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(backend.ProjectKeyHeader) != "key" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(b.devices)
	})
	mux.HandleFunc("GET /device/{id}/rawdata", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(b.raw[r.PathValue("id")])
	})
	mux.HandleFunc("GET /device/{id}/sensor/{sid}/snapshot/{snap}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-" + r.PathValue("snap")))
	})
	mux.HandleFunc("PUT /device/{id}", func(w http.ResponseWriter, r *http.Request) {
		var edit models.EditDevice
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &edit)

		b.mu.Lock()
		defer b.mu.Unlock()
		b.puts++
		for i := range b.devices {
			if b.devices[i].ID == r.PathValue("id") {
				b.devices[i].Attributes = edit.Attributes
			}
		}
		w.Write([]byte("device updated"))
	})
	mux.HandleFunc("GET /device/{id}/active", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"deviceId":"d1","status":"online","createTime":"2024-01-01"}`))
	})
	mux.HandleFunc("GET /device/{id}/active/setting", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"deviceId":"d1","enable":true,"period":"1h"}`))
	})
	mux.HandleFunc("GET /device/{id}/active/notify", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	})
	return mux
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		devices: []models.Device{
			{
				ID: "d1", Name: "Pump", Kind: "pump",
				Attributes: []models.Attribute{{Key: "floor", Value: "1"}},
				Sensors: []models.Sensor{
					{ID: "s1", Name: "Temp", Kind: models.SensorGauge},
					{ID: "s2", Name: "Cam", Kind: models.SensorSnapshot},
				},
			},
			{ID: "d2", Name: "Fan", Kind: "fan"},
		},
		raw: map[string][]models.RawData{
			"d1": {
				{ID: "s1", DeviceID: "d1", Value: []string{"42"}},
				{ID: "s2", DeviceID: "d1", Value: []string{"snapshot://IMG1"}},
			},
		},
	}
}

type fixture struct {
	backend *fakeBackend
	srv     *httptest.Server
	dir     *directory.Directory
	session *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fb := newFakeBackend()
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)

	dir, err := directory.Load(storage.NewMemoryStorage())
	if err != nil {
		t.Fatalf("directory.Load failed: %v", err)
	}
	if err := dir.AddEndpoint("e1", "General", srv.URL); err != nil {
		t.Fatalf("AddEndpoint failed: %v", err)
	}
	if err := dir.AddProject("p1", "key", "e1"); err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}

	s := New("test", dir, backend.NewClient(0), nil)
	t.Cleanup(s.Close)
	return &fixture{backend: fb, srv: srv, dir: dir, session: s}
}

func (f *fixture) selectProject(t *testing.T, name string) {
	t.Helper()
	if err := f.session.SelectProject(name); err != nil {
		t.Fatalf("SelectProject failed: %v", err)
	}
	f.session.Wait()
}

func (f *fixture) navigate(t *testing.T, action Action, id string) {
	t.Helper()
	if err := f.session.Navigate(action, id); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	f.session.Wait()
}

func TestSessionNoProject(t *testing.T) {
	f := newFixture(t)

	if v := f.session.View(); v.Panel != PanelNoProject {
		t.Errorf("expected no_project panel, got %s", v.Panel)
	}

	err := f.session.SelectProject("missing")
	if !apperr.Is(err, apperr.NotFoundLocally) {
		t.Errorf("expected NotFoundLocally, got %v", err)
	}
	if v := f.session.View(); v.Panel != PanelNoProject {
		t.Errorf("failed selection must not change the page, got %s", v.Panel)
	}
}

func TestSessionDeviceList(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t, "p1")

	v := f.session.View()
	if v.Panel != PanelDevices {
		t.Fatalf("expected devices panel, got %s (%s)", v.Panel, v.Error)
	}
	if len(v.Devices) != 2 || v.EndpointKind != "General" || v.Project != "p1" {
		t.Errorf("unexpected view: %+v", v)
	}
}

func TestSessionDanglingEndpoint(t *testing.T) {
	f := newFixture(t)
	f.dir.AddProject("orphan", "key", "nope")

	f.selectProject(t, "orphan")
	v := f.session.View()
	if v.Panel != PanelLoadError || !strings.Contains(v.Error, "no endpoint") {
		t.Errorf("expected no endpoint error, got %s: %s", v.Panel, v.Error)
	}
}

func TestSessionMetadataLoadError(t *testing.T) {
	f := newFixture(t)
	f.dir.AddProject("badkey", "wrong", "e1")

	f.selectProject(t, "badkey")
	v := f.session.View()
	if v.Panel != PanelLoadError || v.Error == "" {
		t.Errorf("expected load error, got %s", v.Panel)
	}
}

func TestSessionSensorPage(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t, "p1")
	f.navigate(t, ActionViewSensors, "d1")

	v := f.session.View()
	if v.Panel != PanelSensors || v.Device == nil || v.Device.ID != "d1" {
		t.Fatalf("unexpected view: %s %+v", v.Panel, v.Device)
	}
	if v.SensorStatus != "ready" || len(v.Sensors) != 2 {
		t.Fatalf("expected 2 ready sensors, got %s %d", v.SensorStatus, len(v.Sensors))
	}
	if v.Sensors[0].Display != "42" {
		t.Errorf("unexpected gauge value: %q", v.Sensors[0].Display)
	}
	if v.Sensors[1].Image == "" {
		t.Errorf("expected snapshot image, got %+v", v.Sensors[1])
	}
}

func TestSessionRemovedDeviceShowsError(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t, "p1")
	f.navigate(t, ActionViewSensors, "d1")

	f.backend.setDevices([]models.Device{{ID: "d2", Name: "Fan", Kind: "fan"}})
	if err := f.session.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	f.session.Wait()

	v := f.session.View()
	if v.Panel != PanelError {
		t.Fatalf("expected error panel, got %s", v.Panel)
	}
	if v.Context.View != navigation.ViewSensor || v.Context.SelectedDevice != "d1" {
		t.Errorf("navigation state must be kept, got %+v", v.Context)
	}

	f.navigate(t, ActionBack, "")
	if v := f.session.View(); v.Panel != PanelDevices || len(v.Devices) != 1 {
		t.Errorf("back must return to the device list, got %s", v.Panel)
	}
}

func TestSessionProjectSwitchResets(t *testing.T) {
	f := newFixture(t)
	f.dir.AddProject("p2", "key", "e1")
	f.selectProject(t, "p1")
	f.navigate(t, ActionViewSensors, "d1")

	f.selectProject(t, "p2")
	v := f.session.View()
	if v.Context != (navigation.PageContext{View: navigation.ViewDevice}) {
		t.Errorf("expected reset context, got %+v", v.Context)
	}
	if _, ok := f.session.data.Inputs(); ok {
		t.Error("sensor data must be cleared on project switch")
	}
}

func TestSessionUnknownAction(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Navigate("jump", ""); !apperr.Is(err, apperr.ValidationError) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestSessionEditAndSaveDeviceAttributes(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t, "p1")
	f.navigate(t, ActionViewDeviceAttr, "d1")

	v := f.session.View()
	if v.Panel != PanelDeviceAttr || v.Editor == nil {
		t.Fatalf("expected attribute editor, got %s", v.Panel)
	}
	if v.Editor.Dirty || len(v.Editor.Attributes) != 1 {
		t.Fatalf("unexpected editor state: %+v", v.Editor)
	}

	f.session.AddAttribute()
	f.session.UpdateAttribute(1, attredit.FieldKey, "room")
	f.session.UpdateAttribute(1, attredit.FieldValue, "12")
	if !f.session.View().Editor.Dirty {
		t.Fatal("editor must be dirty after edits")
	}

	text, err := f.session.SaveAttributes(context.Background())
	if err != nil {
		t.Fatalf("SaveAttributes failed: %v", err)
	}
	if text != "device updated" {
		t.Errorf("unexpected response: %q", text)
	}
	f.session.Wait()

	v = f.session.View()
	if v.Editor == nil || v.Editor.Dirty {
		t.Errorf("editor must be clean after metadata refresh: %+v", v.Editor)
	}
	if len(v.Device.Attributes) != 2 || v.Device.Attributes[1].Key != "room" {
		t.Errorf("device attributes not refreshed: %+v", v.Device.Attributes)
	}
}

func TestSessionEditorDiscardedOnBack(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t, "p1")
	f.navigate(t, ActionViewDeviceAttr, "d1")
	f.session.AddAttribute()

	f.navigate(t, ActionBackToDevice, "")
	if err := f.session.AddAttribute(); !apperr.Is(err, apperr.NotFoundLocally) {
		t.Errorf("editor must be discarded, got %v", err)
	}

	f.navigate(t, ActionViewDeviceAttr, "d1")
	if v := f.session.View(); v.Editor == nil || v.Editor.Dirty {
		t.Errorf("re-entering must start from the baseline: %+v", v.Editor)
	}
}

func TestSessionSensorAttr(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t, "p1")
	f.navigate(t, ActionViewSensors, "d1")
	f.navigate(t, ActionViewSensorAttr, "s1")

	v := f.session.View()
	if v.Panel != PanelSensorAttr || v.Sensor == nil || v.Sensor.ID != "s1" {
		t.Fatalf("unexpected view: %s", v.Panel)
	}
	if v.Editor == nil || v.Editor.Target != (attredit.Target{DeviceID: "d1", SensorID: "s1"}) {
		t.Errorf("unexpected editor: %+v", v.Editor)
	}

	f.navigate(t, ActionBackToSensors, "")
	v = f.session.View()
	if v.Panel != PanelSensors || v.Context.SelectedSensor != "" {
		t.Errorf("expected sensor list, got %s %+v", v.Panel, v.Context)
	}
}

func TestSessionActive(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t, "p1")

	if _, err := f.session.Active(context.Background()); !apperr.Is(err, apperr.NotFoundLocally) {
		t.Errorf("expected NotFoundLocally without selection, got %v", err)
	}

	f.navigate(t, ActionViewSensors, "d1")
	report, err := f.session.Active(context.Background())
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if report.Info.Status != models.ActiveOnline || !report.Setting.Enable || report.Notify == nil {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestSessionSubscribe(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	calls := 0
	unsubscribe := f.session.Subscribe(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	f.selectProject(t, "p1")
	mu.Lock()
	got := calls
	mu.Unlock()
	if got == 0 {
		t.Error("expected notifications")
	}

	unsubscribe()
	f.navigate(t, ActionViewSensors, "d1")
	mu.Lock()
	defer mu.Unlock()
	if calls != got {
		t.Error("no notifications expected after unsubscribe")
	}
}

func TestSessionRefreshData(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t, "p1")

	if f.session.RefreshData() {
		t.Error("refresh must be skipped outside the sensor page")
	}

	f.navigate(t, ActionViewSensors, "d1")
	gen := f.session.data.State().Generation
	if !f.session.RefreshData() {
		t.Fatal("refresh expected on the sensor page")
	}
	f.session.Wait()
	if f.session.data.State().Generation == gen {
		t.Error("expected a new raw data generation")
	}
}
