package entity

import (
	"time"

	"github.com/google/uuid"
)

// Room - постоянная группа преподавателя: участники, задачи, соревнования
type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:100;not null" json:"title"`
	CreatorID uuid.UUID `gorm:"type:uuid;not null;index" json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (Room) TableName() string {
	return "rooms"
}

// IsOwnedBy проверяет, что пользователь - создатель комнаты
func (r *Room) IsOwnedBy(userID uuid.UUID) bool {
	return r.CreatorID == userID
}

// RoomParticipant - членство пользователя в комнате (не сама запись пользователя)
type RoomParticipant struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	RoomID   uint      `gorm:"not null;uniqueIndex:idx_room_user" json:"room_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_user" json:"user_id"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// TableName определяет имя таблицы для GORM
func (RoomParticipant) TableName() string {
	return "room_participants"
}

// UserProfile - профиль пользователя из внешнего провайдера аутентификации
type UserProfile struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FullName   string    `gorm:"column:full_name" json:"fullName"`
	Email      string    `json:"email"`
	ProfilePic *string   `gorm:"column:profile_pic" json:"profile_pic"`
}

// TableName определяет имя таблицы для GORM
func (UserProfile) TableName() string {
	return "user_profiles"
}
