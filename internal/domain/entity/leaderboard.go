package entity

import "time"

// Пространства имен ключей кеша лидербордов
const (
	RoomLeaderboardNamespace        = "room_leaderboard"
	CompetitionLeaderboardNamespace = "competition_leaderboard"
)

// RoomLeaderboardEntry - накопленный XP участника в комнате
type RoomLeaderboardEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	RoomID        uint            `gorm:"not null;uniqueIndex:idx_room_lb_participant" json:"room_id"`
	ParticipantID uint            `gorm:"not null;uniqueIndex:idx_room_lb_participant" json:"participant_id"`
	AccumulatedXP int             `gorm:"column:accumulated_xp;not null;default:0" json:"accumulated_xp"`
	Participant   RoomParticipant `gorm:"foreignKey:ParticipantID" json:"-"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (RoomLeaderboardEntry) TableName() string {
	return "room_leaderboards"
}

// CompetitionLeaderboardEntry - накопленный XP участника в одном соревновании
type CompetitionLeaderboardEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CompetitionID uint            `gorm:"not null;uniqueIndex:idx_compe_lb_participant" json:"competition_id"`
	ParticipantID uint            `gorm:"not null;uniqueIndex:idx_compe_lb_participant" json:"participant_id"`
	AccumulatedXP int             `gorm:"column:accumulated_xp;not null;default:0" json:"accumulated_xp"`
	Competition   Competition     `gorm:"foreignKey:CompetitionID" json:"-"`
	Participant   RoomParticipant `gorm:"foreignKey:ParticipantID" json:"-"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (CompetitionLeaderboardEntry) TableName() string {
	return "competition_leaderboards"
}

// LeaderboardParticipant - данные участника, подмешанные к строке лидерборда
type LeaderboardParticipant struct {
	ParticipantID uint    `json:"participant_id"`
	UserID        string  `json:"user_id,omitempty"`
	FullName      string  `json:"fullName"`
	Email         string  `json:"email"`
	ProfilePic    *string `json:"profile_pic"`
}

// UnknownParticipant - заглушка для лидерборда соревнований, когда профиль не удалось получить
func UnknownParticipant(participantID uint) *LeaderboardParticipant {
	return &LeaderboardParticipant{
		ParticipantID: participantID,
		FullName:      "Unknown User",
		Email:         "unknown@email.com",
		ProfilePic:    nil,
	}
}

// BoardEntry - строка лидерборда. Participant == nil, если профиль не удалось получить.
type BoardEntry struct {
	AccumulatedXP int                     `json:"accumulated_xp"`
	Participant   *LeaderboardParticipant `json:"participant,omitempty"`
}

// CompetitionBoard - лидерборд одного соревнования внутри комнаты
type CompetitionBoard struct {
	ID    uint         `json:"id"`
	Title string       `json:"title"`
	Data  []BoardEntry `json:"data"`
}
