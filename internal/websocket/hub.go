package websocket

import (
	"log"
	"sync"
)

// Hub хранит подключенных клиентов и их подписки на топики (competition-<id>).
// Отправка в канал клиента выполняется под RLock, закрытие канала под Lock,
// поэтому запись в закрытый канал невозможна.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	metrics *HubMetrics
}

// NewHub создает пустой хаб
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		topics:  make(map[string]map[*Client]struct{}),
		metrics: NewHubMetrics(),
	}
}

// Register добавляет клиента в хаб
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		return
	}
	h.clients[client] = struct{}{}
	h.metrics.connectionOpened()
	log.Printf("[Hub] Client registered: UserID=%s, ConnID=%s (total %d)", client.UserID, client.ConnectionID, len(h.clients))
}

// Unregister удаляет клиента из хаба и всех топиков и закрывает его канал отправки
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(client)
}

func (h *Hub) unregisterLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for topic := range client.topics {
		h.removeFromTopicLocked(client, topic)
	}
	client.CloseSend()
	h.metrics.connectionClosed()
	log.Printf("[Hub] Client unregistered: UserID=%s, ConnID=%s (total %d)", client.UserID, client.ConnectionID, len(h.clients))
}

func (h *Hub) removeFromTopicLocked(client *Client, topic string) {
	delete(client.topics, topic)
	subscribers, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subscribers, client)
	if len(subscribers) == 0 {
		delete(h.topics, topic)
	}
}

// Subscribe подписывает зарегистрированного клиента на топик.
// Возвращает false, если клиент уже отключен.
func (h *Hub) Subscribe(client *Client, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return false
	}
	subscribers, ok := h.topics[topic]
	if !ok {
		subscribers = make(map[*Client]struct{})
		h.topics[topic] = subscribers
	}
	subscribers[client] = struct{}{}
	client.topics[topic] = struct{}{}
	return true
}

// Unsubscribe отписывает клиента от топика
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromTopicLocked(client, topic)
}

// BroadcastToTopic отправляет сообщение всем локальным подписчикам топика.
// Клиент с переполненным буфером отключается. Возвращает число доставленных сообщений.
func (h *Hub) BroadcastToTopic(topic string, message []byte) int {
	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for client := range h.topics[topic] {
		select {
		case client.send <- message:
			delivered++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	h.metrics.messagesSent.Add(int64(delivered))
	if len(slow) > 0 {
		h.dropSlowClients(topic, slow)
	}
	return delivered
}

// SendToClient отправляет сообщение одному клиенту без блокировки
func (h *Hub) SendToClient(client *Client, message []byte) bool {
	h.mu.RLock()
	_, registered := h.clients[client]
	sent := false
	if registered {
		select {
		case client.send <- message:
			sent = true
		default:
		}
	}
	h.mu.RUnlock()

	if sent {
		h.metrics.messagesSent.Add(1)
		return true
	}
	if registered {
		h.dropSlowClients("", []*Client{client})
	}
	return false
}

func (h *Hub) dropSlowClients(topic string, clients []*Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range clients {
		log.Printf("[Hub] Send buffer of client %s (ConnID=%s) is full, disconnecting (topic %q)",
			client.UserID, client.ConnectionID, topic)
		h.metrics.slowClientsKicked.Add(1)
		h.unregisterLocked(client)
	}
}

// ClientCount возвращает число подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TopicSize возвращает число подписчиков топика
func (h *Hub) TopicSize(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// GetMetrics возвращает метрики хаба
func (h *Hub) GetMetrics() map[string]interface{} {
	metrics := h.metrics.Snapshot()
	h.mu.RLock()
	metrics["topics"] = len(h.topics)
	h.mu.RUnlock()
	return metrics
}

// Close отключает всех клиентов
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.unregisterLocked(client)
	}
	log.Printf("[Hub] Closed")
}
