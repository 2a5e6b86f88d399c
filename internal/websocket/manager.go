package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

const (
	// DefaultClusterChannel - канал Redis для рассылки между экземплярами
	DefaultClusterChannel = "polegion:competition:broadcast"

	// EventCompetitionUpdate - событие со снимком состояния соревнования
	EventCompetitionUpdate = "competition_update"

	handlerTimeout = 5 * time.Second
)

// SnapshotProvider проверяет доступ пользователя к соревнованию и возвращает его снимок
type SnapshotProvider interface {
	SubscriptionSnapshot(ctx context.Context, competitionID uint, userID uuid.UUID) (*entity.CompetitionState, error)
}

// EventHandler обрабатывает data входящего сообщения определенного типа
type EventHandler func(ctx context.Context, data json.RawMessage, client *Client) error

// ManagerOptions содержит настройки Manager
type ManagerOptions struct {
	InstanceID     string
	ClusterChannel string
}

// Manager рассылает события подписчикам топиков и обрабатывает входящие сообщения
type Manager struct {
	hub        *Hub
	pubsub     PubSubProvider
	snapshots  SnapshotProvider
	instanceID string
	channel    string
	handlers   map[string]EventHandler
}

// NewManager создает менеджер и регистрирует обработчики подписки на соревнования
func NewManager(hub *Hub, pubsub PubSubProvider, snapshots SnapshotProvider, opts ManagerOptions) *Manager {
	if pubsub == nil {
		pubsub = NoOpPubSub{}
	}
	if opts.InstanceID == "" {
		opts.InstanceID = "instance_" + uuid.New().String()
	}
	if opts.ClusterChannel == "" {
		opts.ClusterChannel = DefaultClusterChannel
	}

	m := &Manager{
		hub:        hub,
		pubsub:     pubsub,
		snapshots:  snapshots,
		instanceID: opts.InstanceID,
		channel:    opts.ClusterChannel,
		handlers:   make(map[string]EventHandler),
	}
	m.RegisterHandler(EventCompetitionSubscribe, m.handleSubscribe)
	m.RegisterHandler(EventCompetitionUnsubscribe, m.handleUnsubscribe)
	return m
}

// Hub возвращает хаб менеджера
func (m *Manager) Hub() *Hub {
	return m.hub
}

// InstanceID возвращает ID экземпляра в кластере
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// RegisterHandler регистрирует обработчик для определенного типа сообщений
func (m *Manager) RegisterHandler(eventType string, handler EventHandler) {
	m.handlers[eventType] = handler
	log.Printf("[WebSocketManager] Registered handler for message type: %s", eventType)
}

// Broadcast отправляет {type:"broadcast", event, payload} локальным подписчикам топика
// и публикует кадр в кластерный канал для остальных экземпляров.
func (m *Manager) Broadcast(ctx context.Context, topic, event string, payload interface{}) error {
	frame, err := json.Marshal(Frame{Type: MessageTypeBroadcast, Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s frame for %s: %w", event, topic, err)
	}

	m.hub.BroadcastToTopic(topic, frame)

	envelope, err := m.clusterEnvelope(topic, frame)
	if err != nil {
		return err
	}
	if err := m.pubsub.Publish(ctx, m.channel, envelope); err != nil {
		m.hub.metrics.clusterErrors.Add(1)
		return fmt.Errorf("publish %s for %s: %w", event, topic, err)
	}
	m.hub.metrics.clusterPublished.Add(1)
	return nil
}

func (m *Manager) clusterEnvelope(topic string, frame []byte) ([]byte, error) {
	payload, err := json.Marshal(ClusterBroadcast{Topic: topic, Frame: frame})
	if err != nil {
		return nil, fmt.Errorf("marshal cluster broadcast: %w", err)
	}
	return json.Marshal(ClusterMessage{
		Type:       clusterMessageBroadcast,
		InstanceID: m.instanceID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	})
}

// RunClusterSubscriber доставляет локальным клиентам рассылки других экземпляров.
// Блокируется до отмены ctx или закрытия канала провайдера.
func (m *Manager) RunClusterSubscriber(ctx context.Context) error {
	messages, err := m.pubsub.Subscribe(ctx, m.channel)
	if err != nil {
		return fmt.Errorf("subscribe to cluster channel %s: %w", m.channel, err)
	}
	log.Printf("[WebSocketManager] Instance %s listening on cluster channel %s", m.instanceID, m.channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			m.handleClusterMessage(raw)
		}
	}
}

func (m *Manager) handleClusterMessage(raw []byte) {
	var msg ClusterMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[WebSocketManager] Invalid cluster message: %v", err)
		m.hub.metrics.clusterErrors.Add(1)
		return
	}
	if msg.InstanceID == m.instanceID || msg.Type != clusterMessageBroadcast {
		return
	}

	var broadcast ClusterBroadcast
	if err := json.Unmarshal(msg.Payload, &broadcast); err != nil {
		log.Printf("[WebSocketManager] Invalid cluster broadcast from %s: %v", msg.InstanceID, err)
		m.hub.metrics.clusterErrors.Add(1)
		return
	}
	m.hub.metrics.clusterReceived.Add(1)
	m.hub.BroadcastToTopic(broadcast.Topic, broadcast.Frame)
}

// HandleMessage обрабатывает входящее сообщение от клиента.
// Ошибки протокола отправляются клиенту и не закрывают соединение.
func (m *Manager) HandleMessage(message []byte, client *Client) error {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		m.SendErrorToClient(client, "invalid_message_format", "Invalid JSON format")
		return nil
	}

	handler, ok := m.handlers[event.Type]
	if !ok {
		m.SendErrorToClient(client, "unknown_message_type", fmt.Sprintf("Unknown message type: %s", event.Type))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	return handler(ctx, event.Data, client)
}

// SendErrorToClient отправляет клиенту кадр server:error
func (m *Manager) SendErrorToClient(client *Client, code, message string) {
	m.sendFrame(client, Frame{Type: MessageTypeError, Payload: ErrorPayload{Code: code, Message: message}})
}

func (m *Manager) sendFrame(client *Client, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[WebSocketManager] Failed to marshal frame for client %s: %v", client.UserID, err)
		return
	}
	if !m.hub.SendToClient(client, data) {
		log.Printf("[WebSocketManager] Could not deliver %s frame to client %s", frame.Type, client.UserID)
	}
}

func (m *Manager) handleSubscribe(ctx context.Context, data json.RawMessage, client *Client) error {
	var req CompetitionSubscription
	if err := json.Unmarshal(data, &req); err != nil || req.CompetitionID == 0 {
		m.SendErrorToClient(client, "invalid_request", "competition_id is required")
		return nil
	}

	state, err := m.snapshots.SubscriptionSnapshot(ctx, req.CompetitionID, client.UserID)
	if err != nil {
		code, message := subscriptionErrorCode(err)
		m.SendErrorToClient(client, code, message)
		return nil
	}

	if !m.hub.Subscribe(client, entity.CompetitionTopic(req.CompetitionID)) {
		return nil
	}
	m.sendFrame(client, Frame{Type: MessageTypeBroadcast, Event: EventCompetitionUpdate, Payload: state})
	return nil
}

func (m *Manager) handleUnsubscribe(ctx context.Context, data json.RawMessage, client *Client) error {
	var req CompetitionSubscription
	if err := json.Unmarshal(data, &req); err != nil || req.CompetitionID == 0 {
		m.SendErrorToClient(client, "invalid_request", "competition_id is required")
		return nil
	}
	m.hub.Unsubscribe(client, entity.CompetitionTopic(req.CompetitionID))
	m.sendFrame(client, Frame{Type: MessageTypeBroadcast, Event: EventCompetitionUnsubscribed, Payload: req})
	return nil
}

func subscriptionErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found", "competition not found"
	case errors.Is(err, apperrors.ErrForbidden):
		return "forbidden", "not a member of this room"
	default:
		log.Printf("[WebSocketManager] Subscription lookup failed: %v", err)
		return "internal_error", "failed to load competition"
	}
}
