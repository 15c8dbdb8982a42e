package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteWriter пишет архив в локальный файл SQLite.
// Используется, когда ClickHouse нет, а историю значений хочется сохранить.
type SQLiteWriter struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteWriter открывает (или создаёт) базу по пути path
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	// WAL и busy_timeout: запись из recorder'а не блокирует чтение Latest
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rawdata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			received_at INTEGER NOT NULL, -- unix nanoseconds UTC
			project_key TEXT NOT NULL,
			device_id TEXT NOT NULL,
			sensor_id TEXT NOT NULL,
			value TEXT NOT NULL,
			reported_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rawdata_lookup
			ON rawdata(device_id, sensor_id, received_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteWriter{db: db}, nil
}

// Write сохраняет батч одной транзакцией
func (w *SQLiteWriter) Write(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rawdata (received_at, project_key, device_id, sensor_id, value, reported_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		value, err := json.Marshal(r.Value)
		if err != nil {
			return fmt.Errorf("marshal value: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ReceivedAt.UnixNano(), r.ProjectKey, r.DeviceID, r.SensorID, string(value), r.ReportedAt); err != nil {
			return fmt.Errorf("exec insert: %w", err)
		}
	}

	return tx.Commit()
}

// Latest возвращает последние limit записей датчика, новые первыми
func (w *SQLiteWriter) Latest(ctx context.Context, deviceID, sensorID string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := w.db.QueryContext(ctx, `
		SELECT received_at, project_key, device_id, sensor_id, value, reported_at
		FROM rawdata
		WHERE device_id = ? AND sensor_id = ?
		ORDER BY received_at DESC, id DESC
		LIMIT ?
	`, deviceID, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var (
			r          Row
			receivedAt int64
			value      string
		)
		if err := rows.Scan(&receivedAt, &r.ProjectKey, &r.DeviceID, &r.SensorID, &value, &r.ReportedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.ReceivedAt = time.Unix(0, receivedAt).UTC()
		if err := json.Unmarshal([]byte(value), &r.Value); err != nil {
			return nil, fmt.Errorf("unmarshal value: %w", err)
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
