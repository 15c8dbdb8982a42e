package archive

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultTable    = "rawdata"
	defaultDatabase = "panel"
)

// ClickHouseWriter пишет строки архива в таблицу ClickHouse
type ClickHouseWriter struct {
	conn     driver.Conn
	database string
	table    string
}

// ParseURL разбирает URL архива и возвращает DSN для драйвера, базу и таблицу.
// URL формат: clickhouse://host:port/database?table=xxx
func ParseURL(urlStr string) (dsn, database, table string, err error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid URL: %w", err)
	}

	query := u.Query()
	table = query.Get("table")
	if table == "" {
		table = defaultTable
	}

	database = strings.TrimPrefix(u.Path, "/")
	if database == "" {
		database = defaultDatabase
	}

	// Убираем наш параметр из URL для clickhouse
	query.Del("table")
	u.RawQuery = query.Encode()

	return u.String(), database, table, nil
}

// NewClickHouseWriter подключается к ClickHouse и создаёт таблицу при необходимости
func NewClickHouseWriter(urlStr string) (*ClickHouseWriter, error) {
	dsn, database, table, err := ParseURL(urlStr)
	if err != nil {
		return nil, err
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	w := &ClickHouseWriter{conn: conn, database: database, table: table}
	if err := w.createTable(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return w, nil
}

func (w *ClickHouseWriter) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			received_at DateTime64(3),
			project_key String,
			device_id String,
			sensor_id String,
			value Array(String),
			reported_at String
		) ENGINE = MergeTree
		ORDER BY (device_id, sensor_id, received_at)
	`, w.database, w.table)

	if err := w.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Write вставляет строки одним батчем
func (w *ClickHouseWriter) Write(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s", w.database, w.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(r.ReceivedAt, r.ProjectKey, r.DeviceID, r.SensorID, r.Value, r.ReportedAt); err != nil {
			batch.Abort()
			return fmt.Errorf("append row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Latest возвращает последние строки архива датчика
func (w *ClickHouseWriter) Latest(ctx context.Context, deviceID, sensorID string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT received_at, project_key, device_id, sensor_id, value, reported_at
		FROM %s.%s
		WHERE device_id = ? AND sensor_id = ?
		ORDER BY received_at DESC
		LIMIT %d
	`, w.database, w.table, limit)

	rows, err := w.conn.Query(ctx, query, deviceID, sensorID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ReceivedAt, &r.ProjectKey, &r.DeviceID, &r.SensorID, &r.Value, &r.ReportedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

// Close закрывает соединение
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
