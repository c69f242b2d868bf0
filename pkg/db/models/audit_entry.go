package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wafulah/dukapesa-backend/pkg/enums"
)

// AuditEntry is one append-only audit record. UserID is nil for system
// actions such as webhook-driven transitions.
type AuditEntry struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Action     enums.AuditAction `gorm:"column:action;not null;index"`
	UserID     *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	EntityType string            `gorm:"column:entity_type;not null"`
	EntityID   string            `gorm:"column:entity_id;not null;index"`
	Detail     json.RawMessage   `gorm:"column:detail;type:jsonb;serializer:json"`
	IP         string            `gorm:"column:ip"`
	UserAgent  string            `gorm:"column:user_agent"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}
