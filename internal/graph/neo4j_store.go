package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

type neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, baseLog *logger.Logger) (Store, error) {
	if client == nil {
		return nil, fmt.Errorf("neo4j client required")
	}
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &neo4jStore{
		client: client,
		log:    baseLog.With("service", "Neo4jGraphStore"),
	}, nil
}

func (s *neo4jStore) FindByName(ctx context.Context, tenantID, canonicalName string) (*types.CanonicalEntity, error) {
	records, err := s.client.ExecRead(ctx, `
		MATCH (e:CanonicalEntity {tenant_id: $tenant_id, name_key: $name_key})
		RETURN e
	`, map[string]any{
		"tenant_id": tenantID,
		"name_key":  nameKey(canonicalName),
	})
	if err != nil {
		return nil, fmt.Errorf("graph find by name: %w", err)
	}
	if len(records) == 0 {
		return nil, pkgerrors.ErrNotFound
	}
	return entityFromRecord(records[0])
}

func (s *neo4jStore) Create(ctx context.Context, entity *types.CanonicalEntity) (*types.CanonicalEntity, error) {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	now := time.Now().UTC()
	entity.CreatedAt = now
	entity.UpdatedAt = now

	traceJSON := ""
	if entity.Trace != nil {
		raw, err := json.Marshal(entity.Trace)
		if err != nil {
			return nil, fmt.Errorf("graph marshal trace: %w", err)
		}
		traceJSON = string(raw)
	}
	metaJSON := "{}"
	if len(entity.Metadata) > 0 {
		raw, err := json.Marshal(entity.Metadata)
		if err != nil {
			return nil, fmt.Errorf("graph marshal metadata: %w", err)
		}
		metaJSON = string(raw)
	}
	ontologyRef := ""
	if entity.OntologyRefID != nil {
		ontologyRef = entity.OntologyRefID.String()
	}

	_, err := s.client.ExecWrite(ctx, `
		MERGE (e:CanonicalEntity {tenant_id: $tenant_id, name_key: $name_key})
		ON CREATE SET
			e.id = $id,
			e.canonical_name = $canonical_name,
			e.surface_forms = $surface_forms,
			e.entity_type = $entity_type,
			e.quality_score = $quality_score,
			e.ontology_ref_id = $ontology_ref_id,
			e.metadata = $metadata,
			e.trace = $trace,
			e.migrations = [],
			e.created_at = $now,
			e.updated_at = $now
	`, map[string]any{
		"tenant_id":       entity.TenantID,
		"name_key":        nameKey(entity.CanonicalName),
		"id":              entity.ID.String(),
		"canonical_name":  entity.CanonicalName,
		"surface_forms":   entity.SurfaceForms,
		"entity_type":     entity.EntityType,
		"quality_score":   entity.QualityScore,
		"ontology_ref_id": ontologyRef,
		"metadata":        metaJSON,
		"trace":           traceJSON,
		"now":             now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("graph create entity: %w", err)
	}
	return entity, nil
}

func (s *neo4jStore) LinkExisting(ctx context.Context, id uuid.UUID, surfaceForm string, qualityScore float64) error {
	_, err := s.client.ExecWrite(ctx, `
		MATCH (e:CanonicalEntity {id: $id})
		SET e.surface_forms = CASE
				WHEN $surface_form IN coalesce(e.surface_forms, []) THEN e.surface_forms
				ELSE coalesce(e.surface_forms, []) + $surface_form
			END,
			e.quality_score = CASE
				WHEN $quality_score > e.quality_score THEN $quality_score
				ELSE e.quality_score
			END,
			e.updated_at = $now
	`, map[string]any{
		"id":            id.String(),
		"surface_form":  surfaceForm,
		"quality_score": qualityScore,
		"now":           time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("graph link existing: %w", err)
	}
	return nil
}

func (s *neo4jStore) CreateRelation(ctx context.Context, rel types.Relation) error {
	_, err := s.client.ExecWrite(ctx, `
		MATCH (a:CanonicalEntity {id: $from_id})
		MATCH (b:CanonicalEntity {id: $to_id})
		MERGE (a)-[r:RELATES {type: $type}]->(b)
		ON CREATE SET r.weight = $weight, r.tenant_id = $tenant_id
		ON MATCH SET r.weight = CASE WHEN $weight > r.weight THEN $weight ELSE r.weight END
	`, map[string]any{
		"from_id":   rel.FromID.String(),
		"to_id":     rel.ToID.String(),
		"type":      rel.Type,
		"weight":    rel.Weight,
		"tenant_id": rel.TenantID,
	})
	if err != nil {
		return fmt.Errorf("graph create relation: %w", err)
	}
	return nil
}

func (s *neo4jStore) ListNames(ctx context.Context, tenantID string, limit int) ([]NameRecord, error) {
	if limit <= 0 {
		limit = 5000
	}
	records, err := s.client.ExecRead(ctx, `
		MATCH (e:CanonicalEntity {tenant_id: $tenant_id})
		RETURN e.id AS id, e.canonical_name AS name
		LIMIT $limit
	`, map[string]any{
		"tenant_id": tenantID,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("graph list names: %w", err)
	}
	out := make([]NameRecord, 0, len(records))
	for _, rec := range records {
		idRaw, _ := rec.Get("id")
		nameRaw, _ := rec.Get("name")
		idStr, _ := idRaw.(string)
		name, _ := nameRaw.(string)
		id, err := uuid.Parse(idStr)
		if err != nil || name == "" {
			continue
		}
		out = append(out, NameRecord{ID: id, Name: name})
	}
	return out, nil
}

func (s *neo4jStore) ListByOntologyRef(ctx context.Context, entryID uuid.UUID) ([]*types.CanonicalEntity, error) {
	records, err := s.client.ExecRead(ctx, `
		MATCH (e:CanonicalEntity {ontology_ref_id: $entry_id})
		RETURN e
	`, map[string]any{"entry_id": entryID.String()})
	if err != nil {
		return nil, fmt.Errorf("graph list by ontology ref: %w", err)
	}
	out := make([]*types.CanonicalEntity, 0, len(records))
	for _, rec := range records {
		e, err := entityFromRecord(rec)
		if err != nil {
			s.log.Warn("skipping malformed graph entity", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *neo4jStore) Rename(ctx context.Context, id uuid.UUID, newName string, newEntryID uuid.UUID, migration types.MigrationRecord) error {
	migJSON, err := json.Marshal(migration)
	if err != nil {
		return fmt.Errorf("graph marshal migration: %w", err)
	}
	_, err = s.client.ExecWrite(ctx, `
		MATCH (e:CanonicalEntity {id: $id})
		SET e.canonical_name = $new_name,
			e.name_key = $name_key,
			e.ontology_ref_id = $new_entry_id,
			e.migrations = coalesce(e.migrations, []) + $migration,
			e.updated_at = $now
	`, map[string]any{
		"id":           id.String(),
		"new_name":     newName,
		"name_key":     nameKey(newName),
		"new_entry_id": newEntryID.String(),
		"migration":    string(migJSON),
		"now":          time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("graph rename entity: %w", err)
	}
	return nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func entityFromRecord(rec *neo4j.Record) (*types.CanonicalEntity, error) {
	raw, ok := rec.Get("e")
	if !ok {
		return nil, fmt.Errorf("record missing entity column")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("record column is not a node")
	}
	props := node.Props

	e := &types.CanonicalEntity{
		TenantID:      strProp(props, "tenant_id"),
		CanonicalName: strProp(props, "canonical_name"),
		EntityType:    strProp(props, "entity_type"),
	}
	if id, err := uuid.Parse(strProp(props, "id")); err == nil {
		e.ID = id
	}
	if qs, ok := props["quality_score"].(float64); ok {
		e.QualityScore = qs
	}
	if ref := strProp(props, "ontology_ref_id"); ref != "" {
		if rid, err := uuid.Parse(ref); err == nil {
			e.OntologyRefID = &rid
		}
	}
	if forms, ok := props["surface_forms"].([]any); ok {
		for _, f := range forms {
			if s, ok := f.(string); ok {
				e.SurfaceForms = append(e.SurfaceForms, s)
			}
		}
	}
	if traceJSON := strProp(props, "trace"); traceJSON != "" {
		var trace types.DecisionTrace
		if err := json.Unmarshal([]byte(traceJSON), &trace); err == nil {
			e.Trace = &trace
		}
	}
	if migs, ok := props["migrations"].([]any); ok {
		for _, m := range migs {
			s, ok := m.(string)
			if !ok {
				continue
			}
			var rec types.MigrationRecord
			if err := json.Unmarshal([]byte(s), &rec); err == nil {
				e.Migrations = append(e.Migrations, rec)
			}
		}
	}
	if ts := strProp(props, "created_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.CreatedAt = t
		}
	}
	if ts := strProp(props, "updated_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.UpdatedAt = t
		}
	}
	return e, nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
