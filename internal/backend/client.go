package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/endpoint"
	"github.com/pv/sensor-panel/internal/models"
)

// ProjectKeyHeader carries the project key on every backend request
const ProjectKeyHeader = "CK"

// maxErrorBody limits how much of an error response is quoted in messages
const maxErrorBody = 256

// Client talks to telemetry backends. URLs come from the endpoint, so one
// client serves every configured endpoint.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a client. timeout <= 0 means no client-side timeout:
// a hung request stays pending until the caller's context is done.
func NewClient(timeout time.Duration) *Client {
	hc := &http.Client{}
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return &Client{httpClient: hc}
}

// NewClientWithHTTP wraps an existing http.Client
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

func (c *Client) do(ctx context.Context, method, url, projectKey string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request for %s: %w", url, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperr.Network(fmt.Sprintf("build request %s", url), err)
	}
	req.Header.Set(ProjectKeyHeader, projectKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Network(fmt.Sprintf("request %s %s failed", method, url), err)
	}

	data, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, apperr.Network(fmt.Sprintf("read response from %s failed", url), readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(data))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody] + "..."
		}
		return nil, apperr.HTTPStatus(resp.StatusCode, text)
	}

	return data, nil
}

func getJSON[T any](ctx context.Context, c *Client, url, projectKey string) (T, error) {
	var result T
	data, err := c.do(ctx, http.MethodGet, url, projectKey, nil)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, apperr.Decode(fmt.Sprintf("unexpected response from %s", url), err)
	}
	return result, nil
}

// GetMetadata возвращает список устройств проекта (устройства содержат датчики)
// GET {base}/metadata
func (c *Client) GetMetadata(ctx context.Context, ep endpoint.Endpoint, projectKey string) ([]models.Device, error) {
	return getJSON[[]models.Device](ctx, c, ep.Metadata(), projectKey)
}

// GetRawData возвращает последние значения всех датчиков устройства
// GET {base}/device/{deviceId}/rawdata
func (c *Client) GetRawData(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string) ([]models.RawData, error) {
	return getJSON[[]models.RawData](ctx, c, ep.RawData(deviceID), projectKey)
}

// GetSnapshot возвращает байты изображения снимка
func (c *Client) GetSnapshot(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID, sensorID, snapshotID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, ep.Snapshot(deviceID, sensorID, snapshotID), projectKey, nil)
}

// PutDevice отправляет частичное обновление устройства и возвращает текст ответа
// PUT {base}/device/{deviceId}
func (c *Client) PutDevice(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string, edit models.EditDevice) (string, error) {
	data, err := c.do(ctx, http.MethodPut, ep.Device(deviceID), projectKey, edit)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PutSensor отправляет частичное обновление датчика и возвращает текст ответа
// PUT {base}/device/{deviceId}/sensor/{sensorId}
func (c *Client) PutSensor(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID, sensorID string, edit models.EditSensor) (string, error) {
	data, err := c.do(ctx, http.MethodPut, ep.Sensor(deviceID, sensorID), projectKey, edit)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetActive GET {base}/device/{deviceId}/active
func (c *Client) GetActive(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string) (*models.ActiveInfo, error) {
	info, err := getJSON[models.ActiveInfo](ctx, c, ep.Active(deviceID), projectKey)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetActiveSetting GET {base}/device/{deviceId}/active/setting
func (c *Client) GetActiveSetting(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string) (*models.ActiveDevice, error) {
	setting, err := getJSON[models.ActiveDevice](ctx, c, ep.ActiveSetting(deviceID), projectKey)
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// GetActiveNotify GET {base}/device/{deviceId}/active/notify
func (c *Client) GetActiveNotify(ctx context.Context, ep endpoint.Endpoint, projectKey, deviceID string) ([]models.ActiveNotify, error) {
	return getJSON[[]models.ActiveNotify](ctx, c, ep.ActiveNotify(deviceID), projectKey)
}
