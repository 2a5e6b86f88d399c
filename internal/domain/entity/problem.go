package entity

import "time"

// Problem - задача комнаты. Содержимое задач здесь не редактируется.
type Problem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoomID     uint      `gorm:"not null;index" json:"room_id"`
	Title      string    `gorm:"size:200;not null" json:"title"`
	Difficulty string    `gorm:"size:20" json:"difficulty,omitempty"`
	MaxXP      int       `gorm:"not null;default:0" json:"max_xp"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (Problem) TableName() string {
	return "problems"
}

// CompetitionProblem - привязка задачи к соревнованию со своим порядком и таймером
type CompetitionProblem struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CompetitionID uint      `gorm:"not null;index:idx_compe_problem_order,priority:1" json:"competition_id"`
	ProblemID     uint      `gorm:"not null" json:"problem_id"`
	Order         int       `gorm:"column:sort_order;not null;default:0;index:idx_compe_problem_order,priority:2" json:"order"`
	Timer         *int      `json:"timer"`
	Problem       Problem   `gorm:"foreignKey:ProblemID" json:"problem"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (CompetitionProblem) TableName() string {
	return "competition_problems"
}
