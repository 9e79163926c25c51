package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InferenceCallLog audits every call dispatched to the inference provider.
type InferenceCallLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID   string         `gorm:"column:tenant_id;index" json:"tenant_id"`
	DocumentID uuid.UUID      `gorm:"type:uuid;column:document_id;index" json:"document_id"`
	Tier       string         `gorm:"column:tier;index" json:"tier"`
	Model      string         `gorm:"column:model" json:"model"`
	Priority   string         `gorm:"column:priority" json:"priority"`
	TokensUsed int            `gorm:"column:tokens_used" json:"tokens_used"`
	Cost       float64        `gorm:"column:cost" json:"cost"`
	LatencyMS  int64          `gorm:"column:latency_ms" json:"latency_ms"`
	Status     string         `gorm:"column:status;index" json:"status"` // ok|provider_error|rate_limited|circuit_open
	ErrorText  string         `gorm:"column:error_text" json:"error_text,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
