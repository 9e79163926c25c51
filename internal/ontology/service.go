package ontology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/conceptgraph-backend/internal/graph"
	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/repos"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// DeprecateRequest is the curation surface's deprecation submission.
type DeprecateRequest struct {
	OldID            uuid.UUID `json:"old_id" binding:"required"`
	NewCanonicalName string    `json:"new_canonical_name" binding:"required"`
	Reason           string    `json:"reason"`
	Actor            string    `json:"actor" binding:"required"`
	CascadeMigrate   bool      `json:"cascade_migrate"`
}

// DeprecateResult reports the replacement entry and how many published
// entities were migrated.
type DeprecateResult struct {
	OldEntry   *types.OntologyEntry `json:"old_entry"`
	NewEntry   *types.OntologyEntry `json:"new_entry"`
	Migrated   int                  `json:"migrated"`
	MigrateErr []string             `json:"migrate_errors,omitempty"`
}

// RollbackRequest reverses a prior deprecation.
type RollbackRequest struct {
	EntryID uuid.UUID `json:"entry_id" binding:"required"`
	Reason  string    `json:"reason"`
	Actor   string    `json:"actor" binding:"required"`
}

// RollbackResult reports the restored entry and how many migrated entities
// were renamed back.
type RollbackResult struct {
	Entry      *types.OntologyEntry `json:"entry"`
	Restored   int                  `json:"restored"`
	RestoreErr []string             `json:"restore_errors,omitempty"`
}

// Service owns the ontology catalog lifecycle: curation listings,
// auto-learning of heuristic promotions, and deprecation with optional
// cascade migration of the published graph.
type Service struct {
	log   *logger.Logger
	repo  repos.OntologyEntryRepo
	db    *gorm.DB
	store graph.Store

	validateThreshold float64
}

func NewService(baseLog *logger.Logger, repo repos.OntologyEntryRepo, db *gorm.DB, store graph.Store) *Service {
	return &Service{
		log:               baseLog.With("service", "OntologyService"),
		repo:              repo,
		db:                db,
		store:             store,
		validateThreshold: envutil.Float("ONTOLOGY_VALIDATE_THRESHOLD", 0.90),
	}
}

func (s *Service) ListPending(ctx context.Context, tenantID string, limit int) ([]*types.OntologyEntry, error) {
	return s.repo.ListByStatus(ctx, nil, tenantID, types.OntologyPending, limit)
}

func (s *Service) ListDeprecated(ctx context.Context, tenantID string, limit int) ([]*types.OntologyEntry, error) {
	return s.repo.ListByStatus(ctx, nil, tenantID, types.OntologyDeprecated, limit)
}

// Learn catalogs a heuristic-resolved name. High-confidence candidates are
// validated immediately; the rest land in the pending sandbox until a
// curator promotes them. Re-learning an existing name is a no-op returning
// the existing entry.
func (s *Service) Learn(ctx context.Context, cand types.Candidate, canonicalName string) (*types.OntologyEntry, error) {
	key := types.NormKey(canonicalName)
	existing, err := s.repo.FindByNormKey(ctx, nil, cand.TenantID, key, []types.OntologyStatus{
		types.OntologyPending, types.OntologyValidated, types.OntologyManual,
	})
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}

	status := types.OntologyPending
	if cand.Confidence >= s.validateThreshold {
		status = types.OntologyValidated
	}

	aliases := datatypes.JSON(nil)
	if types.NormKey(cand.RawText) != key {
		raw, merr := json.Marshal([]string{cand.RawText})
		if merr == nil {
			aliases = datatypes.JSON(raw)
		}
	}

	entry := &types.OntologyEntry{
		ID:            uuid.New(),
		TenantID:      cand.TenantID,
		CanonicalName: canonicalName,
		NormKey:       key,
		Aliases:       aliases,
		EntityType:    cand.EntityType,
		Status:        status,
		Confidence:    cand.Confidence,
	}
	created, err := s.repo.Create(ctx, nil, entry)
	if err != nil {
		return nil, err
	}
	s.log.Info("auto-learned ontology entry",
		"tenant", cand.TenantID,
		"name", canonicalName,
		"status", status,
	)
	return created, nil
}

// Validate promotes a pending entry to validated. Curation surface.
func (s *Service) Validate(ctx context.Context, id uuid.UUID) (*types.OntologyEntry, error) {
	entry, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if entry.Status == types.OntologyDeprecated {
		return nil, fmt.Errorf("%w: deprecated entries cannot be validated", pkgerrors.ErrInvalidArgument)
	}
	entry.Status = types.OntologyValidated
	if err := s.repo.Update(ctx, nil, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Deprecate marks the old entry deprecated, creates (or reuses) the
// replacement entry, and optionally cascade-migrates every published entity
// that resolved through the old entry. Nothing is ever deleted.
func (s *Service) Deprecate(ctx context.Context, tenantID string, req DeprecateRequest) (*DeprecateResult, error) {
	if req.NewCanonicalName == "" || req.Actor == "" {
		return nil, fmt.Errorf("%w: new canonical name and actor are required", pkgerrors.ErrInvalidArgument)
	}
	oldEntry, err := s.repo.GetByID(ctx, nil, req.OldID)
	if err != nil {
		return nil, err
	}
	if oldEntry.TenantID != tenantID {
		return nil, pkgerrors.ErrNotFound
	}
	if oldEntry.Status == types.OntologyDeprecated {
		return nil, fmt.Errorf("%w: entry already deprecated", pkgerrors.ErrInvalidArgument)
	}

	newEntry, err := s.replacementEntry(ctx, tenantID, oldEntry, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkDeprecated(ctx, nil, oldEntry.ID, newEntry.ID, req.Reason, req.Actor); err != nil {
		return nil, err
	}
	oldEntry.Status = types.OntologyDeprecated
	oldEntry.ReplacedByID = &newEntry.ID
	oldEntry.DeprecationReason = req.Reason
	oldEntry.DeprecatedBy = req.Actor

	res := &DeprecateResult{OldEntry: oldEntry, NewEntry: newEntry}
	if req.CascadeMigrate {
		s.cascadeMigrate(ctx, oldEntry, newEntry, req, res)
	}
	s.log.Info("ontology entry deprecated",
		"tenant", tenantID,
		"old", oldEntry.CanonicalName,
		"new", newEntry.CanonicalName,
		"migrated", res.Migrated,
	)
	return res, nil
}

// Rollback restores a deprecated entry to validated, clears its deprecation
// metadata, and renames back every entity the deprecation's cascade migrated.
// The original cascade's migration records stay on the entities; the reversal
// appends its own record, so the full history remains readable.
func (s *Service) Rollback(ctx context.Context, tenantID string, req RollbackRequest) (*RollbackResult, error) {
	if req.Actor == "" {
		return nil, fmt.Errorf("%w: actor is required", pkgerrors.ErrInvalidArgument)
	}
	entry, err := s.repo.GetByID(ctx, nil, req.EntryID)
	if err != nil {
		return nil, err
	}
	if entry.TenantID != tenantID {
		return nil, pkgerrors.ErrNotFound
	}
	if entry.Status != types.OntologyDeprecated {
		return nil, fmt.Errorf("%w: entry is not deprecated", pkgerrors.ErrInvalidArgument)
	}

	replacedBy := entry.ReplacedByID
	entry.Status = types.OntologyValidated
	entry.ReplacedByID = nil
	entry.DeprecationReason = ""
	entry.DeprecatedBy = ""
	entry.DeprecatedAt = nil
	if err := s.repo.Update(ctx, nil, entry); err != nil {
		return nil, err
	}

	res := &RollbackResult{Entry: entry}
	if replacedBy != nil {
		s.rollbackMigrations(ctx, entry, *replacedBy, req, res)
	}
	s.log.Info("ontology deprecation rolled back",
		"tenant", tenantID,
		"entry", entry.CanonicalName,
		"restored", res.Restored,
	)
	return res, nil
}

// rollbackMigrations renames back entities whose most recent migration came
// from this entry's deprecation. Entities that resolved to the replacement on
// their own, or that migrated again since, are left alone.
func (s *Service) rollbackMigrations(ctx context.Context, entry *types.OntologyEntry, newEntryID uuid.UUID, req RollbackRequest, res *RollbackResult) {
	entities, err := s.store.ListByOntologyRef(ctx, newEntryID)
	if err != nil {
		res.RestoreErr = append(res.RestoreErr, fmt.Sprintf("list by ontology ref: %v", err))
		return
	}
	for _, e := range entities {
		if len(e.Migrations) == 0 {
			continue
		}
		last := e.Migrations[len(e.Migrations)-1]
		if last.OldEntryID != entry.ID || last.NewEntryID != newEntryID {
			continue
		}
		migration := types.MigrationRecord{
			FromName:   e.CanonicalName,
			ToName:     last.FromName,
			OldEntryID: newEntryID,
			NewEntryID: entry.ID,
			Reason:     req.Reason,
			Actor:      req.Actor,
			MigratedAt: time.Now().UTC(),
		}
		if err := s.store.Rename(ctx, e.ID, last.FromName, entry.ID, migration); err != nil {
			res.RestoreErr = append(res.RestoreErr, fmt.Sprintf("entity %s: %v", e.ID, err))
			continue
		}
		res.Restored++
	}
}

func (s *Service) replacementEntry(ctx context.Context, tenantID string, oldEntry *types.OntologyEntry, req DeprecateRequest) (*types.OntologyEntry, error) {
	key := types.NormKey(req.NewCanonicalName)
	existing, err := s.repo.FindByNormKey(ctx, nil, tenantID, key, []types.OntologyStatus{
		types.OntologyValidated, types.OntologyManual, types.OntologyPending,
	})
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}
	entry := &types.OntologyEntry{
		ID:            uuid.New(),
		TenantID:      tenantID,
		CanonicalName: req.NewCanonicalName,
		NormKey:       key,
		EntityType:    oldEntry.EntityType,
		Status:        types.OntologyManual,
		Confidence:    1.0,
	}
	return s.repo.Create(ctx, nil, entry)
}

// cascadeMigrate renames every published entity referencing the old entry.
// Each rename is best-effort: a failed entity is recorded and skipped.
func (s *Service) cascadeMigrate(ctx context.Context, oldEntry, newEntry *types.OntologyEntry, req DeprecateRequest, res *DeprecateResult) {
	entities, err := s.store.ListByOntologyRef(ctx, oldEntry.ID)
	if err != nil {
		res.MigrateErr = append(res.MigrateErr, fmt.Sprintf("list by ontology ref: %v", err))
		return
	}
	for _, e := range entities {
		migration := types.MigrationRecord{
			FromName:   e.CanonicalName,
			ToName:     newEntry.CanonicalName,
			OldEntryID: oldEntry.ID,
			NewEntryID: newEntry.ID,
			Reason:     req.Reason,
			Actor:      req.Actor,
			MigratedAt: time.Now().UTC(),
		}
		if err := s.store.Rename(ctx, e.ID, newEntry.CanonicalName, newEntry.ID, migration); err != nil {
			res.MigrateErr = append(res.MigrateErr, fmt.Sprintf("entity %s: %v", e.ID, err))
			continue
		}
		res.Migrated++
	}
}
