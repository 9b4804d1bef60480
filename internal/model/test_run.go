package model

import (
	"time"

	"gorm.io/gorm"
)

// TestRun is the database record for a persisted suite execution. The full
// TestRunFile is stored serialized in DataJSON; the scalar columns exist for
// listing without unmarshalling.
type TestRun struct {
	ID        string         `gorm:"primarykey;type:varchar(64)" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Models     string    `gorm:"type:varchar(500)" json:"models"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	DataJSON   string    `gorm:"type:longtext" json:"-"`
}
