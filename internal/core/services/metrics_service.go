package services

import (
	"sync"
	"time"

	"orbnet/internal/core/domain"
)

// MetricsService is the in-memory MetricsRecorder. The monitoring
// collector reads its snapshots; a Prometheus registry wraps it in the
// relay binary.
type MetricsService struct {
	mu sync.RWMutex

	roomEventsIn  map[domain.RoomID]int64
	roomEventsOut map[domain.RoomID]int64
	participants  map[domain.RoomID]int

	signalsStored  map[domain.SessionID]int
	signalsFetched map[domain.SessionID]int64
	viewers        map[domain.SessionID]int
	linkQuality    map[domain.SessionID]domain.LinkQuality

	liveSessions int
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		roomEventsIn:   make(map[domain.RoomID]int64),
		roomEventsOut:  make(map[domain.RoomID]int64),
		participants:   make(map[domain.RoomID]int),
		signalsStored:  make(map[domain.SessionID]int),
		signalsFetched: make(map[domain.SessionID]int64),
		viewers:        make(map[domain.SessionID]int),
		linkQuality:    make(map[domain.SessionID]domain.LinkQuality),
	}
}

func (m *MetricsService) RecordEvent(room domain.RoomID, typ domain.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomEventsIn[room]++
}

func (m *MetricsService) RecordBroadcast(room domain.RoomID, receivers int) {
	if receivers <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomEventsOut[room] += int64(receivers)
}

func (m *MetricsService) RecordSignal(session domain.SessionID, kind domain.SignalKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalsStored[session]++
}

func (m *MetricsService) RecordFetch(session domain.SessionID, count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalsFetched[session] += int64(count)
}

func (m *MetricsService) RecordLinkQuality(q domain.LinkQuality) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkQuality[q.Session] = q
}

func (m *MetricsService) SetRoomParticipants(room domain.RoomID, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if count <= 0 {
		delete(m.participants, room)
		return
	}
	m.participants[room] = count
}

func (m *MetricsService) SetSessionViewers(session domain.SessionID, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if count <= 0 {
		delete(m.viewers, session)
		return
	}
	m.viewers[session] = count
}

func (m *MetricsService) SetLiveSessions(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liveSessions = count
}

// GetRoomMetrics returns a snapshot for one room; unknown rooms report
// zeroes rather than an error.
func (m *MetricsService) GetRoomMetrics(room domain.RoomID) *domain.RoomMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &domain.RoomMetrics{
		Room:         room,
		Participants: m.participants[room],
		EventsIn:     m.roomEventsIn[room],
		EventsOut:    m.roomEventsOut[room],
		Timestamp:    time.Now(),
	}
}

// GetSessionMetrics returns a snapshot for one session; unknown
// sessions report zeroes.
func (m *MetricsService) GetSessionMetrics(session domain.SessionID) *domain.SessionMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &domain.SessionMetrics{
		Session:        session,
		SignalsStored:  m.signalsStored[session],
		SignalsFetched: m.signalsFetched[session],
		Viewers:        m.viewers[session],
		Timestamp:      time.Now(),
	}
}

// GetLinkQuality returns the latest receiver-report summary for a
// session.
func (m *MetricsService) GetLinkQuality(session domain.SessionID) (domain.LinkQuality, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.linkQuality[session]
	return q, ok
}

// LiveSessions reports the current live-session gauge.
func (m *MetricsService) LiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.liveSessions
}

// Rooms lists the rooms with a non-zero participant gauge.
func (m *MetricsService) Rooms() []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]domain.RoomID, 0, len(m.participants))
	for room := range m.participants {
		rooms = append(rooms, room)
	}
	return rooms
}
