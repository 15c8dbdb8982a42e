package sensordata

import (
	"context"
	"sync"

	"github.com/pv/sensor-panel/internal/endpoint"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/models"
	"github.com/pv/sensor-panel/internal/resource"
)

// Sink receives every successfully fetched raw data batch (archive)
type Sink interface {
	Record(projectKey string, rows []models.RawData)
}

// Inputs identify the raw data request of one device
type Inputs struct {
	Endpoint   endpoint.Endpoint
	ProjectKey string
	DeviceID   string
}

type snapshotInputs struct {
	Inputs
	SensorID   string
	SnapshotID string
}

// SensorView is one row of the sensor page
type SensorView struct {
	models.SensorWithData
	Display         string `json:"display"`                   // joined value tokens
	Image           string `json:"image,omitempty"`           // data URI of a loaded snapshot
	SnapshotPending bool   `json:"snapshotPending,omitempty"` // image request in flight
	SnapshotError   string `json:"snapshotError,omitempty"`   // image failed, Display is shown instead
}

// Fetcher keeps raw data of the selected device and one image cell per
// snapshot sensor. Each cell is superseded independently.
type Fetcher struct {
	src  Source
	sink Sink
	raw  *resource.Resource[Inputs, []models.RawData]

	mu       sync.Mutex
	cells    map[string]*resource.Resource[snapshotInputs, string] // sensorID -> cell
	retired  []*resource.Resource[snapshotInputs, string]          // cleared cells, waited on until Wait/Close
	onChange func()
}

// NewFetcher creates a fetcher; sink may be nil
func NewFetcher(src Source, sink Sink) *Fetcher {
	f := &Fetcher{
		src:   src,
		sink:  sink,
		cells: make(map[string]*resource.Resource[snapshotInputs, string]),
	}
	f.raw = resource.New("rawdata", func(ctx context.Context, in Inputs) ([]models.RawData, error) {
		raws, err := src.GetRawData(ctx, in.Endpoint, in.ProjectKey, in.DeviceID)
		if err != nil {
			logger.Warn("Raw data fetch failed", "device", in.DeviceID, "error", err)
			return nil, err
		}
		if f.sink != nil && len(raws) > 0 {
			f.sink.Record(in.ProjectKey, raws)
		}
		return raws, nil
	})
	return f
}

// OnChange sets a callback for any raw data or image transition
func (f *Fetcher) OnChange(cb func()) {
	f.mu.Lock()
	f.onChange = cb
	cells := make([]*resource.Resource[snapshotInputs, string], 0, len(f.cells))
	for _, c := range f.cells {
		cells = append(cells, c)
	}
	f.mu.Unlock()

	f.raw.OnChange(func(resource.State[[]models.RawData]) { f.notify() })
	for _, c := range cells {
		c.OnChange(func(resource.State[string]) { f.notify() })
	}
}

func (f *Fetcher) notify() {
	f.mu.Lock()
	cb := f.onChange
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Load requests raw data of deviceID; no-op when the inputs are unchanged
func (f *Fetcher) Load(ep endpoint.Endpoint, projectKey, deviceID string) uint64 {
	return f.raw.Load(Inputs{Endpoint: ep, ProjectKey: projectKey, DeviceID: deviceID})
}

// Restart re-fetches raw data for the current device
func (f *Fetcher) Restart() uint64 {
	return f.raw.Restart()
}

// Clear drops raw data and supersedes every image request
func (f *Fetcher) Clear() {
	f.raw.Clear()

	f.mu.Lock()
	cells := f.cells
	f.cells = make(map[string]*resource.Resource[snapshotInputs, string])
	for _, c := range cells {
		f.retired = append(f.retired, c)
	}
	f.mu.Unlock()

	for _, c := range cells {
		c.Clear()
		c.Cancel()
		go f.retire(c)
	}
}

// retire forgets a cleared cell once its cancelled fetch has returned
func (f *Fetcher) retire(c *resource.Resource[snapshotInputs, string]) {
	c.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.retired {
		if r == c {
			f.retired = append(f.retired[:i], f.retired[i+1:]...)
			return
		}
	}
}

// State of the raw data request
func (f *Fetcher) State() resource.State[[]models.RawData] {
	return f.raw.State()
}

// Inputs returns the device currently served
func (f *Fetcher) Inputs() (Inputs, bool) {
	return f.raw.Inputs()
}

func (f *Fetcher) cell(sensorID string) *resource.Resource[snapshotInputs, string] {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.cells[sensorID]
	if ok {
		return c
	}
	c = resource.New("snapshot", func(ctx context.Context, in snapshotInputs) (string, error) {
		uri, err := FetchSnapshot(ctx, f.src, in.Endpoint, in.ProjectKey, in.DeviceID, in.SensorID, in.SnapshotID)
		if err != nil {
			logger.Debug("Snapshot unavailable", "device", in.DeviceID, "sensor", in.SensorID, "snapshot", in.SnapshotID, "error", err)
		}
		return uri, err
	})
	if f.onChange != nil {
		c.OnChange(func(resource.State[string]) { f.notify() })
	}
	f.cells[sensorID] = c
	return c
}

func (f *Fetcher) existingCell(sensorID string) (*resource.Resource[snapshotInputs, string], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cells[sensorID]
	return c, ok
}

// snapshotTargets lists the image requests for the current raw data of device
func (f *Fetcher) snapshotTargets(device models.Device, rows []models.SensorWithData) []snapshotInputs {
	in, ok := f.raw.Inputs()
	if !ok || in.DeviceID != device.ID {
		return nil
	}

	var targets []snapshotInputs
	for _, row := range rows {
		if row.Sensor.Kind != models.SensorSnapshot || row.Data == nil {
			continue
		}
		id, ok := SnapshotID(DisplayValue(row.Data))
		if !ok {
			continue
		}
		targets = append(targets, snapshotInputs{Inputs: in, SensorID: row.Sensor.ID, SnapshotID: id})
	}
	return targets
}

// EnsureSnapshots starts an image request for every snapshot sensor of
// device whose value carries a snapshot id. Cells with unchanged ids are
// not restarted.
func (f *Fetcher) EnsureSnapshots(device models.Device) {
	st := f.raw.State()
	if !st.HasValue {
		return
	}
	for _, target := range f.snapshotTargets(device, Join(device, st.Value)) {
		f.cell(target.SensorID).Load(target)
	}
}

// Rows projects the current state onto device.Sensors
func (f *Fetcher) Rows(device models.Device) []SensorView {
	st := f.raw.State()
	joined := Join(device, st.Value)

	targets := make(map[string]snapshotInputs)
	if st.HasValue {
		for _, target := range f.snapshotTargets(device, joined) {
			targets[target.SensorID] = target
		}
	}

	rows := make([]SensorView, 0, len(joined))
	for _, j := range joined {
		row := SensorView{SensorWithData: j, Display: DisplayValue(j.Data)}

		if target, ok := targets[j.Sensor.ID]; ok {
			row.SnapshotPending = true
			if c, ok := f.existingCell(j.Sensor.ID); ok {
				if in, ok := c.Inputs(); ok && in == target {
					cst := c.State()
					switch cst.Status {
					case resource.Ready:
						row.Image = cst.Value
						row.SnapshotPending = false
					case resource.Failed:
						row.SnapshotError = cst.Err.Error()
						row.SnapshotPending = false
					}
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Wait blocks until raw data and image requests in flight have returned,
// including those of cells dropped by Clear
func (f *Fetcher) Wait() {
	f.raw.Wait()
	for _, c := range f.takeRetired() {
		c.Wait()
	}
	for _, c := range f.snapshotCells() {
		c.Wait()
	}
}

// Close cancels all requests of the fetcher
func (f *Fetcher) Close() {
	f.raw.Close()
	for _, c := range f.takeRetired() {
		c.Close()
	}
	for _, c := range f.snapshotCells() {
		c.Close()
	}
}

func (f *Fetcher) takeRetired() []*resource.Resource[snapshotInputs, string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	retired := f.retired
	f.retired = nil
	return retired
}

func (f *Fetcher) snapshotCells() []*resource.Resource[snapshotInputs, string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	cells := make([]*resource.Resource[snapshotInputs, string], 0, len(f.cells))
	for _, c := range f.cells {
		cells = append(cells, c)
	}
	return cells
}
