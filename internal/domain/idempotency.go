// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed
// generation request, keyed by (owner_key, action_type, key). It enables safe
// retries for POST operations by returning the originally produced reply
// without re-executing the cascade or charging the caller a second time.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	OwnerKey   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_owner_action_key,priority:1"`
	ActionType string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_owner_action_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_owner_action_key,priority:3"`
	ReplyID    string    `gorm:"type:TEXT NOT NULL"`
	EventID    string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
