package models

import "time"

// Student represents a registered learner. Submissions keep their own
// snapshot of these fields.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:120;not null" json:"name"`
	RegNo     string    `gorm:"size:120;uniqueIndex;not null" json:"reg_no"`
	Email     string    `gorm:"size:120;uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
