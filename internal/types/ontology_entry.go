package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NormKey lowercases a name and collapses whitespace, the shared key shape
// for catalog lookup and alias comparison.
func NormKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

type OntologyStatus string

const (
	OntologyPending    OntologyStatus = "pending"
	OntologyValidated  OntologyStatus = "validated"
	OntologyManual     OntologyStatus = "manual"
	OntologyDeprecated OntologyStatus = "deprecated"
)

// OntologyEntry is a curated or auto-learned catalog record used for
// authoritative name resolution. Deprecation links to a replacement entry
// and never deletes (audit preservation).
type OntologyEntry struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID      string         `gorm:"column:tenant_id;not null;index:idx_ontology_name,unique,priority:1" json:"tenant_id"`
	CanonicalName string         `gorm:"column:canonical_name;not null;index:idx_ontology_name,unique,priority:2" json:"canonical_name"`
	NormKey       string         `gorm:"column:norm_key;not null;index" json:"norm_key"`
	Aliases       datatypes.JSON `gorm:"column:aliases" json:"aliases,omitempty"`
	EntityType    string         `gorm:"column:entity_type;index" json:"entity_type,omitempty"`
	Status        OntologyStatus `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Confidence    float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`

	DeprecationReason string     `gorm:"column:deprecation_reason" json:"deprecation_reason,omitempty"`
	ReplacedByID      *uuid.UUID `gorm:"type:uuid;column:replaced_by_id;index" json:"replaced_by_id,omitempty"`
	DeprecatedAt      *time.Time `gorm:"column:deprecated_at" json:"deprecated_at,omitempty"`
	DeprecatedBy      string     `gorm:"column:deprecated_by" json:"deprecated_by,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
