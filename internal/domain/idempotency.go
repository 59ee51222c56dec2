package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Idempotency is a stored rule-mutation response, replayed when the same
// mailbox retries the same route with the same Idempotency-Key before
// ExpiresAt. Only successful responses are stored.
type Idempotency struct {
	ID        string         `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserEmail string         `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_mailbox_route_key,priority:1"`
	Route     string         `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_mailbox_route_key,priority:2"`
	Key       string         `gorm:"column:idem_key;type:TEXT NOT NULL;uniqueIndex:ux_idem_mailbox_route_key,priority:3"`
	Status    int            `gorm:"type:INTEGER NOT NULL"`
	Body      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time      `gorm:"not null;index:ix_idem_expires_at"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
