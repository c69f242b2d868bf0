package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/wafulah/dukapesa-backend/pkg/db/models"
	"github.com/wafulah/dukapesa-backend/pkg/enums"
)

// EntityTypeOrder and EntityTypeProduct name the entity families audit
// entries attach to.
const (
	EntityTypeOrder   = "order"
	EntityTypeProduct = "product"
)

// NewEntry builds an audit entry, marshaling detail into the JSON payload
// and stamping the caller IP and user agent when the context carries them.
// A nil detail produces an entry with no payload. Marshal failures are
// swallowed into a payload describing the failure so audit writes never
// block the operation they record.
func NewEntry(ctx context.Context, action enums.AuditAction, userID *uuid.UUID, entityType, entityID string, detail any) *models.AuditEntry {
	meta := requestMetaFrom(ctx)
	entry := &models.AuditEntry{
		Action:     action,
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if detail == nil {
		return entry
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	entry.Detail = raw
	return entry
}
