package repos

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

type OntologyEntryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.OntologyEntry) (*types.OntologyEntry, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.OntologyEntry, error)
	// FindByNormKey matches an entry whose normalized name or alias equals
	// key. Entries whose status is not in statuses are excluded.
	FindByNormKey(ctx context.Context, tx *gorm.DB, tenantID, key string, statuses []types.OntologyStatus) (*types.OntologyEntry, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, tenantID string, status types.OntologyStatus, limit int) ([]*types.OntologyEntry, error)
	MarkDeprecated(ctx context.Context, tx *gorm.DB, id uuid.UUID, replacedBy uuid.UUID, reason, actor string) error
	Update(ctx context.Context, tx *gorm.DB, entry *types.OntologyEntry) error
}

type ontologyEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOntologyEntryRepo(db *gorm.DB, baseLog *logger.Logger) OntologyEntryRepo {
	return &ontologyEntryRepo{db: db, log: baseLog.With("repo", "OntologyEntryRepo")}
}

func (r *ontologyEntryRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *ontologyEntryRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.OntologyEntry) (*types.OntologyEntry, error) {
	if err := r.conn(tx).WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *ontologyEntryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.OntologyEntry, error) {
	var entry types.OntologyEntry
	err := r.conn(tx).WithContext(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *ontologyEntryRepo) FindByNormKey(ctx context.Context, tx *gorm.DB, tenantID, key string, statuses []types.OntologyStatus) (*types.OntologyEntry, error) {
	key = strings.TrimSpace(strings.ToLower(key))
	if key == "" {
		return nil, pkgerrors.ErrNotFound
	}
	q := r.conn(tx).WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("norm_key = ?", key)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var entry types.OntologyEntry
	if err := q.First(&entry).Error; err == nil {
		return &entry, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Alias scan; alias lists are small, candidate volume per lookup is one.
	var withAliases []*types.OntologyEntry
	aq := r.conn(tx).WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("aliases IS NOT NULL")
	if len(statuses) > 0 {
		aq = aq.Where("status IN ?", statuses)
	}
	if err := aq.Find(&withAliases).Error; err != nil {
		return nil, err
	}
	for _, e := range withAliases {
		for _, a := range decodeAliases(e.Aliases) {
			if strings.TrimSpace(strings.ToLower(a)) == key {
				return e, nil
			}
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (r *ontologyEntryRepo) ListByStatus(ctx context.Context, tx *gorm.DB, tenantID string, status types.OntologyStatus, limit int) ([]*types.OntologyEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []*types.OntologyEntry
	err := r.conn(tx).WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ontologyEntryRepo) MarkDeprecated(ctx context.Context, tx *gorm.DB, id uuid.UUID, replacedBy uuid.UUID, reason, actor string) error {
	now := time.Now().UTC()
	return r.conn(tx).WithContext(ctx).
		Model(&types.OntologyEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             types.OntologyDeprecated,
			"replaced_by_id":     replacedBy,
			"deprecation_reason": reason,
			"deprecated_by":      actor,
			"deprecated_at":      now,
			"updated_at":         now,
		}).Error
}

func (r *ontologyEntryRepo) Update(ctx context.Context, tx *gorm.DB, entry *types.OntologyEntry) error {
	return r.conn(tx).WithContext(ctx).Save(entry).Error
}

func decodeAliases(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
