package archive

import (
	"context"
	"fmt"
	"strings"
)

// Store is a Writer that can also read history back
type Store interface {
	Writer
	Latest(ctx context.Context, deviceID, sensorID string, limit int) ([]Row, error)
}

// Open выбирает хранилище по схеме URL:
//
//	clickhouse://host:9000/db?table=t  - ClickHouse
//	sqlite:///var/lib/panel/archive.db - локальный файл
func Open(urlStr string) (Store, error) {
	switch {
	case strings.HasPrefix(urlStr, "clickhouse://"):
		w, err := NewClickHouseWriter(urlStr)
		if err != nil {
			return nil, err
		}
		return w, nil
	case strings.HasPrefix(urlStr, "sqlite://"):
		path := strings.TrimPrefix(urlStr, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite archive: empty path")
		}
		w, err := NewSQLiteWriter(path)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported archive URL %q", urlStr)
	}
}
