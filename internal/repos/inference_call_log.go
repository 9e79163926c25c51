package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

type InferenceCallLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, logs []*types.InferenceCallLog) ([]*types.InferenceCallLog, error)
	ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.InferenceCallLog, error)
}

type inferenceCallLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInferenceCallLogRepo(db *gorm.DB, baseLog *logger.Logger) InferenceCallLogRepo {
	return &inferenceCallLogRepo{db: db, log: baseLog.With("repo", "InferenceCallLogRepo")}
}

func (r *inferenceCallLogRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *inferenceCallLogRepo) Create(ctx context.Context, tx *gorm.DB, logs []*types.InferenceCallLog) ([]*types.InferenceCallLog, error) {
	if len(logs) == 0 {
		return []*types.InferenceCallLog{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *inferenceCallLogRepo) ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.InferenceCallLog, error) {
	var logs []*types.InferenceCallLog
	err := r.conn(tx).WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
