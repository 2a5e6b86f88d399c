package websocket

import "encoding/json"

// Типы исходящих кадров
const (
	// MessageTypeBroadcast - событие, разосланное подписчикам топика
	MessageTypeBroadcast = "broadcast"

	// MessageTypeError - ошибка обработки сообщения клиента
	MessageTypeError = "server:error"
)

// Типы входящих сообщений
const (
	// EventCompetitionSubscribe подписывает клиента на обновления соревнования
	EventCompetitionSubscribe = "competition:subscribe"

	// EventCompetitionUnsubscribe отписывает клиента от обновлений соревнования
	EventCompetitionUnsubscribe = "competition:unsubscribe"

	// EventCompetitionUnsubscribed подтверждает отписку
	EventCompetitionUnsubscribed = "competition:unsubscribed"
)

// Event - входящее сообщение клиента
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Frame - исходящий кадр, который получает клиент
type Frame struct {
	Type    string      `json:"type"`
	Event   string      `json:"event,omitempty"`
	Payload interface{} `json:"payload"`
}

// ErrorPayload - payload кадра server:error
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CompetitionSubscription - data сообщений competition:subscribe / competition:unsubscribe
type CompetitionSubscription struct {
	CompetitionID uint `json:"competition_id"`
}
