// Package sensordata loads the latest values of a device's sensors and, for
// snapshot sensors, the referenced images.
package sensordata

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/pv/sensor-panel/internal/endpoint"
	"github.com/pv/sensor-panel/internal/models"
)

// SnapshotIDOffset is the byte offset of the snapshot id inside the joined
// value of a snapshot sensor. The encoding is undocumented by the backend;
// values not longer than the offset are shown as plain text.
const SnapshotIDOffset = 11

// ImageDataPrefix is prepended to base64 image bytes
const ImageDataPrefix = "data:image/jpeg;base64,"

// ErrNotSnapshot is returned for an empty snapshot response
var ErrNotSnapshot = errors.New("not a snapshot")

// Source выполняет запросы данных датчиков к бэкенду
type Source interface {
	GetRawData(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string) ([]models.RawData, error)
	GetSnapshot(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID, sensorID, snapshotID string) ([]byte, error)
}

// Join pairs every sensor of device with its raw value, keeping the order of
// device.Sensors. Sensors without a value get Data == nil; raw values for
// unknown sensors are dropped. If the backend repeats an id, the first entry wins.
func Join(device models.Device, raws []models.RawData) []models.SensorWithData {
	byID := make(map[string]*models.RawData, len(raws))
	for i := range raws {
		if _, exists := byID[raws[i].ID]; !exists {
			byID[raws[i].ID] = &raws[i]
		}
	}

	result := make([]models.SensorWithData, 0, len(device.Sensors))
	for _, s := range device.Sensors {
		entry := models.SensorWithData{Sensor: s}
		if raw, ok := byID[s.ID]; ok {
			data := *raw
			entry.Data = &data
		}
		result = append(result, entry)
	}
	return result
}

// Fetch performs one raw data request for device and joins the result
func Fetch(ctx context.Context, src Source, ep endpoint.Endpoint, projectKey string, device models.Device) ([]models.SensorWithData, error) {
	raws, err := src.GetRawData(ctx, ep, projectKey, device.ID)
	if err != nil {
		return nil, err
	}
	return Join(device, raws), nil
}

// DisplayValue joins the value tokens with single spaces
func DisplayValue(data *models.RawData) string {
	if data == nil {
		return ""
	}
	return strings.Join(data.Value, " ")
}

// SnapshotID extracts the snapshot id from a display value
func SnapshotID(value string) (string, bool) {
	if len(value) <= SnapshotIDOffset {
		return "", false
	}
	return value[SnapshotIDOffset:], true
}

// DataURI encodes image bytes for direct display
func DataURI(image []byte) string {
	return ImageDataPrefix + base64.StdEncoding.EncodeToString(image)
}

// FetchSnapshot loads one image and returns it as a data URI
func FetchSnapshot(ctx context.Context, src Source, ep endpoint.Endpoint, projectKey, deviceID, sensorID, snapshotID string) (string, error) {
	image, err := src.GetSnapshot(ctx, ep, projectKey, deviceID, sensorID, snapshotID)
	if err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", ErrNotSnapshot
	}
	return DataURI(image), nil
}
