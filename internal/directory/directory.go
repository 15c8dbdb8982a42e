// Package directory keeps the named endpoints and projects of the panel.
//
// It is an in-memory mirror of the persisted blobs: every mutation is
// written through to storage under the fixed keys "endpoints" and "projects".
package directory

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/endpoint"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/storage"
)

// Project pairs a backend access key with an endpoint reference.
// EndpointKey is not validated on insert; a dangling key is detected by Resolve.
type Project struct {
	ProjectKey  string `json:"project_key"`
	EndpointKey string `json:"endpoint_key"`
}

// EndpointInfo is a listing entry
type EndpointInfo struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
	Kind    string `json:"kind"`
}

// ProjectInfo is a listing entry
type ProjectInfo struct {
	Name        string `json:"name"`
	ProjectKey  string `json:"projectKey"`
	EndpointKey string `json:"endpointKey"`
}

// Directory is safe for concurrent use
type Directory struct {
	mu        sync.RWMutex
	endpoints map[string]endpoint.Endpoint
	projects  map[string]Project
	store     storage.Storage
}

// Load reads both blobs from store. Missing blobs start empty.
func Load(store storage.Storage) (*Directory, error) {
	d := &Directory{
		endpoints: make(map[string]endpoint.Endpoint),
		projects:  make(map[string]Project),
		store:     store,
	}

	var stored map[string]endpoint.Stored
	if err := d.loadBlob(storage.KeyEndpoints, &stored); err != nil {
		return nil, err
	}
	for name, s := range stored {
		d.endpoints[name] = s.Endpoint
	}

	if err := d.loadBlob(storage.KeyProjects, &d.projects); err != nil {
		return nil, err
	}
	if d.projects == nil {
		d.projects = make(map[string]Project)
	}

	return d, nil
}

func (d *Directory) loadBlob(key string, target any) error {
	data, ok, err := d.store.Load(key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// AddEndpoint registers a new endpoint. Empty or existing names are rejected
// and leave the directory unchanged.
func (d *Directory) AddEndpoint(name, kind, baseURL string) error {
	ep, err := endpoint.New(kind, baseURL)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.endpoints[name]; name == "" || exists {
		return apperr.Validation("add endpoint %q: name is already exist or empty", name)
	}

	d.endpoints[name] = ep
	logger.Info("Endpoint added", "name", name, "kind", kind, "url", baseURL)
	return d.saveEndpoints()
}

// RemoveEndpoint is a no-op if name is absent. Projects referring to it are
// kept and resolve to "no endpoint" afterwards.
func (d *Directory) RemoveEndpoint(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.endpoints[name]; !exists {
		return nil
	}
	delete(d.endpoints, name)
	logger.Info("Endpoint removed", "name", name)
	return d.saveEndpoints()
}

// Endpoint returns the endpoint stored under name
func (d *Directory) Endpoint(name string) (endpoint.Endpoint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ep, ok := d.endpoints[name]
	return ep, ok
}

// Endpoints returns all endpoints sorted by name
func (d *Directory) Endpoints() []EndpointInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]EndpointInfo, 0, len(d.endpoints))
	for name, ep := range d.endpoints {
		result = append(result, EndpointInfo{
			Name:    name,
			BaseURL: ep.BaseURL(),
			Kind:    ep.Kind(),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// AddProject registers a new project. Empty or existing names are rejected.
func (d *Directory) AddProject(name, projectKey, endpointKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.projects[name]; name == "" || exists {
		return apperr.Validation("add project %q: name is already exist or empty", name)
	}

	d.projects[name] = Project{ProjectKey: projectKey, EndpointKey: endpointKey}
	logger.Info("Project added", "name", name, "endpoint", endpointKey)
	return d.saveProjects()
}

// RemoveProject is a no-op if name is absent
func (d *Directory) RemoveProject(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.projects[name]; !exists {
		return nil
	}
	delete(d.projects, name)
	logger.Info("Project removed", "name", name)
	return d.saveProjects()
}

// Project returns the project stored under name
func (d *Directory) Project(name string) (Project, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.projects[name]
	return p, ok
}

// Projects returns all projects sorted by name
func (d *Directory) Projects() []ProjectInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]ProjectInfo, 0, len(d.projects))
	for name, p := range d.projects {
		result = append(result, ProjectInfo{
			Name:        name,
			ProjectKey:  p.ProjectKey,
			EndpointKey: p.EndpointKey,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Resolve looks up a project and the endpoint it refers to
func (d *Directory) Resolve(projectName string) (Project, endpoint.Endpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.projects[projectName]
	if !ok {
		return Project{}, nil, apperr.NotFound("no project %q", projectName)
	}
	ep, ok := d.endpoints[p.EndpointKey]
	if !ok {
		return p, nil, apperr.NotFound("no endpoint %q for project %q", p.EndpointKey, projectName)
	}
	return p, ep, nil
}

// saveEndpoints must be called with mu held
func (d *Directory) saveEndpoints() error {
	stored := make(map[string]endpoint.Stored, len(d.endpoints))
	for name, ep := range d.endpoints {
		stored[name] = endpoint.Stored{Endpoint: ep}
	}
	return d.saveBlob(storage.KeyEndpoints, stored)
}

// saveProjects must be called with mu held
func (d *Directory) saveProjects() error {
	return d.saveBlob(storage.KeyProjects, d.projects)
}

func (d *Directory) saveBlob(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := d.store.Save(key, data); err != nil {
		logger.Error("Failed to persist directory", "key", key, "error", err)
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}
