// Package metadata loads the device list of the active project.
package metadata

import (
	"context"

	"github.com/pv/sensor-panel/internal/endpoint"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/models"
	"github.com/pv/sensor-panel/internal/resource"
)

// Source выполняет запрос метаданных к бэкенду
type Source interface {
	GetMetadata(ctx context.Context, ep endpoint.Endpoint, projectKey string) ([]models.Device, error)
}

// Inputs identify one metadata request. Endpoint variants are comparable
// values, so two inputs are equal when kind, base URL and key all match.
type Inputs struct {
	Endpoint   endpoint.Endpoint
	ProjectKey string
}

// State of the device list
type State = resource.State[[]models.Device]

// Fetch performs a single metadata request. Errors are never retried.
func Fetch(ctx context.Context, src Source, ep endpoint.Endpoint, projectKey string) ([]models.Device, error) {
	devices, err := src.GetMetadata(ctx, ep, projectKey)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []models.Device{}
	}
	return devices, nil
}

// Fetcher keeps the device list for the most recently requested inputs
type Fetcher struct {
	res *resource.Resource[Inputs, []models.Device]
}

func NewFetcher(src Source) *Fetcher {
	return &Fetcher{
		res: resource.New("metadata", func(ctx context.Context, in Inputs) ([]models.Device, error) {
			devices, err := Fetch(ctx, src, in.Endpoint, in.ProjectKey)
			if err != nil {
				logger.Warn("Metadata fetch failed", "endpoint", in.Endpoint.BaseURL(), "error", err)
				return nil, err
			}
			logger.Debug("Metadata loaded", "endpoint", in.Endpoint.BaseURL(), "devices", len(devices))
			return devices, nil
		}),
	}
}

// Load starts a fetch when the endpoint or project key differs from the
// current ones. nil ep clears the list.
func (f *Fetcher) Load(ep endpoint.Endpoint, projectKey string) uint64 {
	if ep == nil {
		f.res.Clear()
		return f.res.State().Generation
	}
	return f.res.Load(Inputs{Endpoint: ep, ProjectKey: projectKey})
}

// Restart re-fetches with the current inputs, replacing the whole list
func (f *Fetcher) Restart() uint64 {
	return f.res.Restart()
}

func (f *Fetcher) Clear() {
	f.res.Clear()
}

func (f *Fetcher) State() State {
	return f.res.State()
}

// Inputs returns the endpoint and key currently served
func (f *Fetcher) Inputs() (Inputs, bool) {
	return f.res.Inputs()
}

func (f *Fetcher) OnChange(cb func(State)) {
	f.res.OnChange(cb)
}

func (f *Fetcher) Wait() {
	f.res.Wait()
}

func (f *Fetcher) Close() {
	f.res.Close()
}
