package models

import (
	"encoding/json"
	"strings"
)

// ActiveStatus состояние активности устройства
type ActiveStatus string

const (
	ActiveUnset    ActiveStatus = "unset"
	ActiveStart    ActiveStatus = "start"
	ActiveOnline   ActiveStatus = "online"
	ActiveOffline  ActiveStatus = "offline"
	ActiveStop     ActiveStatus = "stop"
	ActiveAbnormal ActiveStatus = "abnormal"
)

// String returns the display form ("Online", "Unset", ...)
func (s ActiveStatus) String() string {
	if s == "" {
		s = ActiveUnset
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// UnmarshalJSON treats an empty status as unset
func (s *ActiveStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		raw = string(ActiveUnset)
	}
	*s = ActiveStatus(strings.ToLower(raw))
	return nil
}

// ActiveInfo текущий статус активности устройства (GET /device/{id}/active)
type ActiveInfo struct {
	DeviceID     string       `json:"deviceId"`
	Status       ActiveStatus `json:"status"`
	Record       *int         `json:"record,omitempty"`
	LastDataTime string       `json:"lastDataTime,omitempty"`
	CreateTime   string       `json:"createTime"`
}

// ActiveDevice настройка мониторинга активности (GET /device/{id}/active/setting)
type ActiveDevice struct {
	DeviceID   string  `json:"deviceId"`
	Enable     bool    `json:"enable"`
	Period     string  `json:"period"`
	MinUploads *int    `json:"minUploads,omitempty"`
	MaxUploads *int    `json:"maxUploads,omitempty"`
	CreateTime *uint64 `json:"createTime,omitempty"`
}

// ActiveNotifySetting адресат и текст уведомления
type ActiveNotifySetting struct {
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
}

// ActiveNotify правило уведомления (GET /device/{id}/active/notify)
type ActiveNotify struct {
	ID         int                 `json:"id"`
	DeviceID   string              `json:"deviceId"`
	Enable     bool                `json:"enable"`
	Name       string              `json:"name"`
	Kind       string              `json:"type"`
	Setting    ActiveNotifySetting `json:"setting"`
	CreateTime string              `json:"createTime"`
}
