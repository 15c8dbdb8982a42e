// Package endpoint builds backend URLs for the supported deployment variants.
//
// Every variant shares one set of path templates keyed by the base URL; the
// only difference between General and Edge is the snapshot path. Callers work
// with the Endpoint interface and never branch on the variant.
package endpoint

import (
	"encoding/json"
	"fmt"

	"github.com/pv/sensor-panel/internal/apperr"
)

const (
	KindGeneral = "General"
	KindEdge    = "Edge"
)

// Kinds lists the supported variants in display order
var Kinds = []string{KindGeneral, KindEdge}

// Endpoint is a configured backend. All methods are pure string building.
type Endpoint interface {
	Metadata() string
	Device(deviceID string) string
	Sensor(deviceID, sensorID string) string
	RawData(deviceID string) string
	Snapshot(deviceID, sensorID, snapshotID string) string
	Active(deviceID string) string
	ActiveSetting(deviceID string) string
	ActiveNotify(deviceID string) string
	BaseURL() string
	Kind() string
}

// base implements the templates common to every variant.
// The base URL is used verbatim: no trailing slash normalization.
type base struct {
	URL string `json:"base_url"`
}

func (b base) Metadata() string {
	return b.URL + "/metadata"
}

func (b base) Device(deviceID string) string {
	return fmt.Sprintf("%s/device/%s", b.URL, deviceID)
}

func (b base) Sensor(deviceID, sensorID string) string {
	return fmt.Sprintf("%s/device/%s/sensor/%s", b.URL, deviceID, sensorID)
}

func (b base) RawData(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/rawdata", b.URL, deviceID)
}

func (b base) Active(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/active", b.URL, deviceID)
}

func (b base) ActiveSetting(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/active/setting", b.URL, deviceID)
}

func (b base) ActiveNotify(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/active/notify", b.URL, deviceID)
}

func (b base) BaseURL() string {
	return b.URL
}

// General is a regular cloud deployment
type General struct {
	base
}

// NewGeneral creates a General endpoint
func NewGeneral(baseURL string) General {
	return General{base{URL: baseURL}}
}

func (General) Kind() string {
	return KindGeneral
}

func (g General) Snapshot(deviceID, sensorID, snapshotID string) string {
	return fmt.Sprintf("%s/device/%s/sensor/%s/snapshot/%s", g.URL, deviceID, sensorID, snapshotID)
}

// Edge is an on-site deployment; snapshots live under an extra /snapshot prefix
type Edge struct {
	base
}

// NewEdge creates an Edge endpoint
func NewEdge(baseURL string) Edge {
	return Edge{base{URL: baseURL}}
}

func (Edge) Kind() string {
	return KindEdge
}

func (e Edge) Snapshot(deviceID, sensorID, snapshotID string) string {
	return fmt.Sprintf("%s/snapshot/device/%s/sensor/%s/snapshot/%s", e.URL, deviceID, sensorID, snapshotID)
}

// New creates an endpoint by its kind label
func New(kind, baseURL string) (Endpoint, error) {
	switch kind {
	case KindGeneral:
		return NewGeneral(baseURL), nil
	case KindEdge:
		return NewEdge(baseURL), nil
	default:
		return nil, apperr.Validation("unknown endpoint kind %q", kind)
	}
}

// Identity returns a key that changes whenever the resolved URLs would change
func Identity(ep Endpoint) string {
	if ep == nil {
		return ""
	}
	return ep.Kind() + " " + ep.BaseURL()
}

// Stored is the persisted form of an endpoint: an externally tagged object
// such as {"General":{"base_url":"https://x/api"}}.
type Stored struct {
	Endpoint
}

func (s Stored) MarshalJSON() ([]byte, error) {
	if s.Endpoint == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]base{
		s.Kind(): {URL: s.BaseURL()},
	})
}

func (s *Stored) UnmarshalJSON(data []byte) error {
	var tagged map[string]base
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("decode endpoint: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("decode endpoint: expected exactly one variant, got %d", len(tagged))
	}
	for kind, b := range tagged {
		ep, err := New(kind, b.URL)
		if err != nil {
			return err
		}
		s.Endpoint = ep
	}
	return nil
}
