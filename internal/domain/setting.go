package domain

import "time"

// Setting is a durable key/value pair. It backs the on-device session
// persistence (the current user id lives under a single key).
type Setting struct {
	Key       string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Value     string    `gorm:"type:TEXT NOT NULL"`
	UpdatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (Setting) TableName() string { return "settings" }
