package websocket

import (
	"sync/atomic"
	"time"
)

// HubMetrics хранит счетчики хаба. Все поля обновляются атомарно.
type HubMetrics struct {
	totalConnections  atomic.Int64
	activeConnections atomic.Int64
	messagesSent      atomic.Int64
	messagesReceived  atomic.Int64
	slowClientsKicked atomic.Int64
	clusterReceived   atomic.Int64
	clusterPublished  atomic.Int64
	clusterErrors     atomic.Int64
	startTime         time.Time
}

// NewHubMetrics создает новый экземпляр метрик Hub
func NewHubMetrics() *HubMetrics {
	return &HubMetrics{startTime: time.Now()}
}

func (m *HubMetrics) connectionOpened() {
	m.totalConnections.Add(1)
	m.activeConnections.Add(1)
}

func (m *HubMetrics) connectionClosed() {
	m.activeConnections.Add(-1)
}

// Snapshot возвращает текущие значения счетчиков
func (m *HubMetrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"total_connections":   m.totalConnections.Load(),
		"active_connections":  m.activeConnections.Load(),
		"messages_sent":       m.messagesSent.Load(),
		"messages_received":   m.messagesReceived.Load(),
		"slow_clients_kicked": m.slowClientsKicked.Load(),
		"cluster_received":    m.clusterReceived.Load(),
		"cluster_published":   m.clusterPublished.Load(),
		"cluster_errors":      m.clusterErrors.Load(),
		"uptime_seconds":      int64(time.Since(m.startTime).Seconds()),
	}
}
