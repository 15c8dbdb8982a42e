// Package archive records every fetched raw data batch into ClickHouse
// or a local SQLite file.
//
// Recording is asynchronous: Record only enqueues rows, a background loop
// writes them in batches. A full queue drops rows instead of blocking the
// fetch pipeline.
package archive

import (
	"context"
	"sync"
	"time"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/models"
)

// Row одна запись архива
type Row struct {
	ReceivedAt time.Time `json:"receivedAt"`
	ProjectKey string    `json:"projectKey"`
	DeviceID   string    `json:"deviceId"`
	SensorID   string    `json:"sensorId"`
	Value      []string  `json:"value"`
	ReportedAt string    `json:"reportedAt,omitempty"` // время из rawdata, как прислал бэкенд
}

// Writer сохраняет батч строк
type Writer interface {
	Write(ctx context.Context, rows []Row) error
	Close() error
}

// Recorder буферизует строки и сбрасывает их в Writer
type Recorder struct {
	writer    Writer
	queue     chan Row
	batchSize int
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	dropped int
	written int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecorder создаёт recorder; Start запускает фоновую запись
func NewRecorder(writer Writer, bufferSize, batchSize int, interval time.Duration) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 5000
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Recorder{
		writer:    writer,
		queue:     make(chan Row, bufferSize),
		batchSize: batchSize,
		interval:  interval,
		now:       time.Now,
	}
}

// Record ставит значения в очередь. Не блокируется.
func (r *Recorder) Record(projectKey string, rows []models.RawData) {
	received := r.now()
	for _, raw := range rows {
		row := Row{
			ReceivedAt: received,
			ProjectKey: projectKey,
			DeviceID:   raw.DeviceID,
			SensorID:   raw.ID,
			Value:      raw.Value,
			ReportedAt: raw.Time,
		}
		select {
		case r.queue <- row:
		default:
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
		}
	}
}

// Start запускает цикл записи
func (r *Recorder) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.loop()
}

// Stop останавливает цикл, записывает остаток очереди и закрывает Writer
func (r *Recorder) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return r.writer.Close()
}

// History читает последние записи датчика, если хранилище это умеет
func (r *Recorder) History(ctx context.Context, deviceID, sensorID string, limit int) ([]Row, error) {
	store, ok := r.writer.(Store)
	if !ok {
		return nil, apperr.NotFound("archive writer cannot read history")
	}
	rows, err := store.Latest(ctx, deviceID, sensorID, limit)
	if err != nil {
		return nil, apperr.Network("archive query failed", err)
	}
	return rows, nil
}

// Stats возвращает число записанных и отброшенных строк
func (r *Recorder) Stats() (written, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.dropped
}

func (r *Recorder) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	batch := make([]Row, 0, r.batchSize)
	logger.Debug("archive recorder started", "batch", r.batchSize, "interval", r.interval)

	for {
		select {
		case <-r.ctx.Done():
			// Дописываем то, что уже в очереди
			for {
				select {
				case row := <-r.queue:
					batch = append(batch, row)
					if len(batch) >= r.batchSize {
						batch = r.flush(batch)
					}
				default:
					r.flush(batch)
					logger.Debug("archive recorder stopped")
					return
				}
			}
		case row := <-r.queue:
			batch = append(batch, row)
			if len(batch) >= r.batchSize {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		}
	}
}

func (r *Recorder) flush(batch []Row) []Row {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.writer.Write(ctx, batch); err != nil {
		logger.Error("failed to write archive batch", "rows", len(batch), "error", err)
	} else {
		r.mu.Lock()
		r.written += len(batch)
		r.mu.Unlock()
	}
	return batch[:0]
}
