package studio

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"nanogen-server/modules/submission"
)

const (
	expiredThreshold  = 24 * time.Hour
	inactiveThreshold = 2 * time.Hour
)

// SessionFactory - 세션 생성 (onChange는 웹소켓 브로드캐스트에 연결됨)
type SessionFactory func(id string, onChange func(submission.Snapshot)) *submission.Session

// entry - 세션 + 연결된 웹소켓 클라이언트
type entry struct {
	session      *submission.Session
	clients      map[string]*Client
	mutex        sync.RWMutex
	createdAt    time.Time
	lastActivity time.Time
}

// Metrics - 서버 메트릭
type Metrics struct {
	TotalSessions    int       `json:"totalSessions"`
	ActiveSessions   int       `json:"activeSessions"`
	TotalConnections int       `json:"totalConnections"`
	TotalSubmissions int       `json:"totalSubmissions"`
	StartTime        time.Time `json:"startTime"`
	mutex            sync.RWMutex
}

// Manager - 세션 매니저
type Manager struct {
	entries map[string]*entry
	mutex   sync.RWMutex
	metrics *Metrics
	factory SessionFactory
	now     func() time.Time
}

// NewManager - Manager 생성
func NewManager(factory SessionFactory) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		metrics: &Metrics{StartTime: time.Now()},
		factory: factory,
		now:     time.Now,
	}
}

// Create - 새 세션 생성
func (m *Manager) Create() *submission.Session {
	return m.GetOrCreate(uuid.NewString())
}

// Get - 세션 조회 (활동 시간 갱신)
func (m *Manager) Get(sessionID string) (*submission.Session, bool) {
	m.mutex.RLock()
	e, exists := m.entries[sessionID]
	m.mutex.RUnlock()
	if !exists {
		return nil, false
	}
	e.touch(m.now())
	return e.session, true
}

// GetOrCreate - 세션 가져오기 또는 생성
func (m *Manager) GetOrCreate(sessionID string) *submission.Session {
	return m.getOrCreateEntry(sessionID).session
}

func (m *Manager) getOrCreateEntry(sessionID string) *entry {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, exists := m.entries[sessionID]
	if !exists {
		now := m.now()
		e = &entry{
			clients:      make(map[string]*Client),
			createdAt:    now,
			lastActivity: now,
		}
		e.session = m.factory(sessionID, func(s submission.Snapshot) {
			if s.Status == submission.StatusLoading {
				m.metrics.mutex.Lock()
				m.metrics.TotalSubmissions++
				m.metrics.mutex.Unlock()
			}
			e.broadcast(sessionID, s)
		})
		m.entries[sessionID] = e

		m.metrics.mutex.Lock()
		m.metrics.TotalSessions++
		m.metrics.ActiveSessions++
		m.metrics.mutex.Unlock()

		log.Printf("✅ Created new session: %s (Active: %d)", sessionID, len(m.entries))
	}

	e.touch(m.now())
	return e
}

func (e *entry) touch(now time.Time) {
	e.mutex.Lock()
	e.lastActivity = now
	e.mutex.Unlock()
}

// addClient - 클라이언트를 세션에 추가
func (m *Manager) addClient(sessionID string, client *Client) *entry {
	e := m.getOrCreateEntry(sessionID)

	e.mutex.Lock()
	e.clients[client.id] = client
	e.lastActivity = m.now()
	clientCount := len(e.clients)
	e.mutex.Unlock()

	m.metrics.mutex.Lock()
	m.metrics.TotalConnections++
	m.metrics.mutex.Unlock()

	log.Printf("👤 Client %s joined session %s (Clients: %d)", client.id, sessionID, clientCount)
	return e
}

// removeClient - 클라이언트를 세션에서 제거
func (e *entry) removeClient(sessionID, clientID string, now time.Time) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if client, exists := e.clients[clientID]; exists {
		close(client.send)
		delete(e.clients, clientID)
		e.lastActivity = now
		log.Printf("👋 Client %s left session %s (Remaining: %d)", clientID, sessionID, len(e.clients))
	}
}

// broadcast - 세션의 모든 클라이언트에게 상태 전송. 버퍼가 찬 클라이언트는 끊음
func (e *entry) broadcast(sessionID string, s submission.Snapshot) {
	messageBytes, err := json.Marshal(OutboundMessage{
		Type:      MessageState,
		SessionID: sessionID,
		State:     &s,
	})
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	for clientID, client := range e.clients {
		select {
		case client.send <- messageBytes:
		default:
			close(client.send)
			delete(e.clients, clientID)
			log.Printf("⚠️  Dropped slow client %s from session %s", clientID, sessionID)
		}
	}
}

// sendTo - 등록된 클라이언트 하나에게 전송 (버퍼가 차면 버림)
func (e *entry) sendTo(clientID string, data []byte) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	client, exists := e.clients[clientID]
	if !exists {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// Cleanup - 만료(24시간) 또는 비활성(2시간, 클라이언트 없음) 세션 정리
func (m *Manager) Cleanup() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	cleaned := 0
	for sessionID, e := range m.entries {
		e.mutex.RLock()
		isExpired := now.Sub(e.createdAt) > expiredThreshold
		isInactive := now.Sub(e.lastActivity) > inactiveThreshold && len(e.clients) == 0
		e.mutex.RUnlock()

		if !isExpired && !isInactive {
			continue
		}
		if e.session.Snapshot().Status == submission.StatusLoading {
			// 진행 중인 요청이 끝난 뒤 다음 정리 주기에서 제거
			log.Printf("⏳ Skipping cleanup of session %s: submission in flight", sessionID)
			continue
		}

		e.mutex.Lock()
		for clientID, client := range e.clients {
			close(client.send)
			delete(e.clients, clientID)
			log.Printf("🔌 Disconnecting client %s from expired session %s", clientID, sessionID)
		}
		e.mutex.Unlock()

		delete(m.entries, sessionID)
		cleaned++

		m.metrics.mutex.Lock()
		m.metrics.ActiveSessions--
		m.metrics.mutex.Unlock()

		reason := "expired"
		if !isExpired {
			reason = "inactive"
		}
		log.Printf("⏰ Cleaned up %s session: %s", reason, sessionID)
	}

	if cleaned > 0 {
		log.Printf("🧼 Cleaned up %d expired/inactive sessions (Active: %d)", cleaned, len(m.entries))
	}
	return cleaned
}

// StartCleanupRoutine - 주기적 정리 시작
func (m *Manager) StartCleanupRoutine(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			m.Cleanup()
		}
	}()

	log.Printf("🔄 Started session cleanup routine (every %s)", interval)
}

// WaitAll - 모든 세션의 진행 중 요청 종료 대기
func (m *Manager) WaitAll() {
	m.mutex.RLock()
	sessions := make([]*submission.Session, 0, len(m.entries))
	for _, e := range m.entries {
		sessions = append(sessions, e.session)
	}
	m.mutex.RUnlock()

	for _, s := range sessions {
		s.Wait()
	}
}

// SessionInfo - 세션 요약
type SessionInfo struct {
	SessionID    string            `json:"sessionId"`
	Status       submission.Status `json:"status"`
	ClientCount  int               `json:"clientCount"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
	Age          string            `json:"age"`
	Inactive     string            `json:"inactive"`
}

// MetricsSnapshot - /metrics 응답
type MetricsSnapshot struct {
	Uptime           string        `json:"uptime"`
	StartTime        time.Time     `json:"startTime"`
	TotalSessions    int           `json:"totalSessions"`
	ActiveSessions   int           `json:"activeSessions"`
	TotalConnections int           `json:"totalConnections"`
	TotalSubmissions int           `json:"totalSubmissions"`
	CurrentClients   int           `json:"currentClients"`
	Sessions         []SessionInfo `json:"sessions"`
}

// Snapshot - 메트릭 + 세션 목록
func (m *Manager) Snapshot() MetricsSnapshot {
	m.metrics.mutex.RLock()
	out := MetricsSnapshot{
		StartTime:        m.metrics.StartTime,
		TotalSessions:    m.metrics.TotalSessions,
		ActiveSessions:   m.metrics.ActiveSessions,
		TotalConnections: m.metrics.TotalConnections,
		TotalSubmissions: m.metrics.TotalSubmissions,
	}
	m.metrics.mutex.RUnlock()

	now := m.now()
	out.Uptime = now.Sub(out.StartTime).String()

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out.Sessions = make([]SessionInfo, 0, len(m.entries))
	for sessionID, e := range m.entries {
		e.mutex.RLock()
		info := SessionInfo{
			SessionID:    sessionID,
			ClientCount:  len(e.clients),
			CreatedAt:    e.createdAt,
			LastActivity: e.lastActivity,
			Age:          now.Sub(e.createdAt).String(),
			Inactive:     now.Sub(e.lastActivity).String(),
		}
		e.mutex.RUnlock()
		info.Status = e.session.Snapshot().Status
		out.CurrentClients += info.ClientCount
		out.Sessions = append(out.Sessions, info)
	}
	return out
}
