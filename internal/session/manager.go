package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/directory"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/sensordata"
)

// Manager управляет сессиями браузеров
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // sessionID -> Session

	dir     *directory.Directory
	backend Backend
	sink    sensordata.Sink

	refreshInterval time.Duration // 0 = автообновление отключено
	ttl             time.Duration // 0 = сессии не истекают

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager создаёт менеджер сессий; sink может быть nil
func NewManager(dir *directory.Directory, backend Backend, sink sensordata.Sink, refreshInterval, ttl time.Duration) *Manager {
	return &Manager{
		sessions:        make(map[string]*Session),
		dir:             dir,
		backend:         backend,
		sink:            sink,
		refreshInterval: refreshInterval,
		ttl:             ttl,
	}
}

// Create создаёт новую сессию без активного проекта
func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.dir, m.backend, m.sink)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	total := len(m.sessions)
	m.mu.Unlock()

	logger.Debug("Session created", "session", s.ID(), "total", total)
	return s
}

// Get возвращает сессию по ID и отмечает её использование
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, apperr.NotFound("session %q not found", id)
	}
	s.Touch()
	return s, nil
}

// Remove закрывает и удаляет сессию; no-op если сессии нет
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
		logger.Debug("Session removed", "session", id)
	}
}

// Count возвращает количество сессий
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}

// Start запускает автообновление значений и очистку устаревших сессий
func (m *Manager) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if m.refreshInterval > 0 {
		m.wg.Add(1)
		go m.refreshLoop()
	}
	if m.ttl > 0 {
		m.wg.Add(1)
		go m.expireLoop()
	}
}

// Stop останавливает фоновые циклы и закрывает все сессии
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) refreshLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.RefreshAll()
		}
	}
}

// RefreshAll перезапрашивает значения датчиков во всех сессиях со страницей датчиков
func (m *Manager) RefreshAll() int {
	refreshed := 0
	for _, s := range m.snapshot() {
		if s.RefreshData() {
			refreshed++
		}
	}
	return refreshed
}

func (m *Manager) expireLoop() {
	defer m.wg.Done()

	interval := m.ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.Expire(now)
		}
	}
}

// Expire удаляет сессии, не использовавшиеся дольше ttl
func (m *Manager) Expire(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	expired := 0
	for _, s := range m.snapshot() {
		if now.Sub(s.LastSeen()) > m.ttl {
			m.Remove(s.ID())
			expired++
		}
	}
	if expired > 0 {
		logger.Info("Expired idle sessions", "count", expired)
	}
	return expired
}
