package ontology

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/conceptgraph-backend/internal/graph"
	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/repos"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

type memRepo struct {
	entries []*types.OntologyEntry
}

func (m *memRepo) Create(_ context.Context, _ *gorm.DB, entry *types.OntologyEntry) (*types.OntologyEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.OntologyEntry, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (m *memRepo) FindByNormKey(_ context.Context, _ *gorm.DB, tenantID, key string, statuses []types.OntologyStatus) (*types.OntologyEntry, error) {
	allowed := map[types.OntologyStatus]bool{}
	for _, s := range statuses {
		allowed[s] = true
	}
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.NormKey == key && allowed[e.Status] {
			return e, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (m *memRepo) ListByStatus(_ context.Context, _ *gorm.DB, tenantID string, status types.OntologyStatus, limit int) ([]*types.OntologyEntry, error) {
	var out []*types.OntologyEntry
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.Status == status {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) MarkDeprecated(_ context.Context, _ *gorm.DB, id uuid.UUID, replacedBy uuid.UUID, reason, actor string) error {
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = types.OntologyDeprecated
			e.ReplacedByID = &replacedBy
			e.DeprecationReason = reason
			e.DeprecatedBy = actor
			return nil
		}
	}
	return pkgerrors.ErrNotFound
}

func (m *memRepo) Update(_ context.Context, _ *gorm.DB, entry *types.OntologyEntry) error {
	for i, e := range m.entries {
		if e.ID == entry.ID {
			m.entries[i] = entry
			return nil
		}
	}
	return pkgerrors.ErrNotFound
}

var _ repos.OntologyEntryRepo = (*memRepo)(nil)

func testService(t *testing.T) (*Service, *memRepo, *graph.MemoryStore) {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	repo := &memRepo{}
	store := graph.NewMemoryStore()
	return NewService(log, repo, nil, store), repo, store
}

func TestLearnSplitsOnValidationThreshold(t *testing.T) {
	svc, _, _ := testService(t)

	low, err := svc.Learn(context.Background(), types.Candidate{
		RawText: "quantum mesh", Norm: "quantum mesh", TenantID: "acme", Confidence: 0.6,
	}, "Quantum Mesh")
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if low.Status != types.OntologyPending {
		t.Fatalf("status=%s, want pending below threshold", low.Status)
	}

	high, err := svc.Learn(context.Background(), types.Candidate{
		RawText: "acme vault", Norm: "acme vault", TenantID: "acme", Confidence: 0.95,
	}, "Acme Vault")
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if high.Status != types.OntologyValidated {
		t.Fatalf("status=%s, want validated at 0.95", high.Status)
	}
}

func TestLearnIsIdempotentPerName(t *testing.T) {
	svc, repo, _ := testService(t)
	cand := types.Candidate{RawText: "quantum mesh", Norm: "quantum mesh", TenantID: "acme", Confidence: 0.6}

	first, err := svc.Learn(context.Background(), cand, "Quantum Mesh")
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	second, err := svc.Learn(context.Background(), cand, "Quantum Mesh")
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("re-learning created a duplicate entry")
	}
	if len(repo.entries) != 1 {
		t.Fatalf("entries=%d, want 1", len(repo.entries))
	}
}

func TestDeprecateCascadeMigration(t *testing.T) {
	svc, repo, store := testService(t)
	ctx := context.Background()

	oldEntry, _ := repo.Create(ctx, nil, &types.OntologyEntry{
		TenantID:      "acme",
		CanonicalName: "Acme Legacy Suite",
		NormKey:       types.NormKey("Acme Legacy Suite"),
		Status:        types.OntologyValidated,
	})

	// Two published entities resolved through the old entry, one through
	// nothing at all.
	for _, name := range []string{"Acme Legacy Suite", "Acme Legacy Suite EU"} {
		_, err := store.Create(ctx, &types.CanonicalEntity{
			TenantID:      "acme",
			CanonicalName: name,
			OntologyRefID: &oldEntry.ID,
		})
		if err != nil {
			t.Fatalf("seed entity: %v", err)
		}
	}
	if _, err := store.Create(ctx, &types.CanonicalEntity{TenantID: "acme", CanonicalName: "Unrelated"}); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	res, err := svc.Deprecate(ctx, "acme", DeprecateRequest{
		OldID:            oldEntry.ID,
		NewCanonicalName: "Acme Cloud Suite",
		Reason:           "product renamed",
		Actor:            "curator@acme",
		CascadeMigrate:   true,
	})
	if err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	if res.Migrated != 2 {
		t.Fatalf("migrated=%d, want 2", res.Migrated)
	}
	if res.NewEntry.Status != types.OntologyManual {
		t.Fatalf("new entry status=%s, want manual", res.NewEntry.Status)
	}

	// The old entry stays retrievable with deprecation metadata.
	got, err := svc.repo.GetByID(ctx, nil, oldEntry.ID)
	if err != nil {
		t.Fatalf("old entry lost: %v", err)
	}
	if got.Status != types.OntologyDeprecated || got.ReplacedByID == nil || *got.ReplacedByID != res.NewEntry.ID {
		t.Fatalf("old entry=%+v, want deprecated with pointer to replacement", got)
	}

	// Every migrated entity carries the new name and a migration record.
	migrated, err := store.ListByOntologyRef(ctx, res.NewEntry.ID)
	if err != nil {
		t.Fatalf("list migrated: %v", err)
	}
	if len(migrated) != 2 {
		t.Fatalf("migrated entities=%d, want 2", len(migrated))
	}
	for _, e := range migrated {
		if e.CanonicalName != "Acme Cloud Suite" {
			t.Fatalf("entity name=%s, want Acme Cloud Suite", e.CanonicalName)
		}
		if len(e.Migrations) != 1 {
			t.Fatalf("migrations=%+v, want one history record", e.Migrations)
		}
		m := e.Migrations[0]
		if m.OldEntryID != oldEntry.ID || m.NewEntryID != res.NewEntry.ID || m.Actor != "curator@acme" {
			t.Fatalf("migration=%+v, want full provenance", m)
		}
	}

	// Deprecating twice is rejected.
	if _, err := svc.Deprecate(ctx, "acme", DeprecateRequest{
		OldID:            oldEntry.ID,
		NewCanonicalName: "Acme Cloud Suite",
		Actor:            "curator@acme",
	}); err == nil {
		t.Fatalf("second deprecation must fail")
	}
}

func TestRollbackRestoresEntryAndMigratedEntities(t *testing.T) {
	svc, repo, store := testService(t)
	ctx := context.Background()

	oldEntry, _ := repo.Create(ctx, nil, &types.OntologyEntry{
		TenantID:      "acme",
		CanonicalName: "Acme Legacy Suite",
		NormKey:       types.NormKey("Acme Legacy Suite"),
		Status:        types.OntologyValidated,
	})
	seeded, err := store.Create(ctx, &types.CanonicalEntity{
		TenantID:      "acme",
		CanonicalName: "Acme Legacy Suite",
		OntologyRefID: &oldEntry.ID,
	})
	if err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	res, err := svc.Deprecate(ctx, "acme", DeprecateRequest{
		OldID:            oldEntry.ID,
		NewCanonicalName: "Acme Cloud Suite",
		Reason:           "product renamed",
		Actor:            "curator@acme",
		CascadeMigrate:   true,
	})
	if err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	if res.Migrated != 1 {
		t.Fatalf("migrated=%d, want 1", res.Migrated)
	}

	// An entity that resolved to the replacement on its own must survive
	// the rollback untouched.
	native, err := store.Create(ctx, &types.CanonicalEntity{
		TenantID:      "acme",
		CanonicalName: "Acme Cloud Suite Add-On",
		OntologyRefID: &res.NewEntry.ID,
	})
	if err != nil {
		t.Fatalf("seed native entity: %v", err)
	}

	rb, err := svc.Rollback(ctx, "acme", RollbackRequest{
		EntryID: oldEntry.ID,
		Reason:  "rename reverted",
		Actor:   "curator@acme",
	})
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if rb.Restored != 1 {
		t.Fatalf("restored=%d, want 1", rb.Restored)
	}
	if rb.Entry.Status != types.OntologyValidated {
		t.Fatalf("entry status=%s, want validated", rb.Entry.Status)
	}
	if rb.Entry.ReplacedByID != nil || rb.Entry.DeprecationReason != "" || rb.Entry.DeprecatedAt != nil {
		t.Fatalf("entry=%+v, want deprecation metadata cleared", rb.Entry)
	}

	// The migrated entity carries both the migration and its reversal.
	restored, err := store.ListByOntologyRef(ctx, oldEntry.ID)
	if err != nil {
		t.Fatalf("list restored: %v", err)
	}
	if len(restored) != 1 || restored[0].ID != seeded.ID {
		t.Fatalf("restored=%+v, want the originally migrated entity", restored)
	}
	if restored[0].CanonicalName != "Acme Legacy Suite" {
		t.Fatalf("name=%s, want original name back", restored[0].CanonicalName)
	}
	if len(restored[0].Migrations) != 2 {
		t.Fatalf("migrations=%+v, want migration plus reversal", restored[0].Migrations)
	}

	remaining, err := store.ListByOntologyRef(ctx, res.NewEntry.ID)
	if err != nil {
		t.Fatalf("list remaining: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != native.ID {
		t.Fatalf("remaining=%+v, want only the native entity", remaining)
	}

	// Rolling back a non-deprecated entry is rejected.
	if _, err := svc.Rollback(ctx, "acme", RollbackRequest{EntryID: oldEntry.ID, Actor: "curator@acme"}); err == nil {
		t.Fatalf("second rollback must fail")
	}
}

func TestDeprecateWithoutCascadeLeavesEntities(t *testing.T) {
	svc, repo, store := testService(t)
	ctx := context.Background()

	oldEntry, _ := repo.Create(ctx, nil, &types.OntologyEntry{
		TenantID:      "acme",
		CanonicalName: "Acme Legacy Suite",
		NormKey:       types.NormKey("Acme Legacy Suite"),
		Status:        types.OntologyValidated,
	})
	if _, err := store.Create(ctx, &types.CanonicalEntity{
		TenantID:      "acme",
		CanonicalName: "Acme Legacy Suite",
		OntologyRefID: &oldEntry.ID,
	}); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	res, err := svc.Deprecate(ctx, "acme", DeprecateRequest{
		OldID:            oldEntry.ID,
		NewCanonicalName: "Acme Cloud Suite",
		Actor:            "curator@acme",
	})
	if err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	if res.Migrated != 0 {
		t.Fatalf("migrated=%d, want 0 without cascade", res.Migrated)
	}
	e, err := store.FindByName(ctx, "acme", "Acme Legacy Suite")
	if err != nil {
		t.Fatalf("entity must keep its old name: %v", err)
	}
	if len(e.Migrations) != 0 {
		t.Fatalf("migrations=%+v, want none", e.Migrations)
	}
}
