package repos_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/repos"
	"github.com/yungbote/conceptgraph-backend/internal/repos/testutil"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

func TestFindByNormKeyMatchesAliases(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewOntologyEntryRepo(db, testutil.Logger(t))

	entry := &types.OntologyEntry{
		ID:            uuid.New(),
		TenantID:      "acme",
		CanonicalName: "S/4HANA",
		NormKey:       types.NormKey("S/4HANA"),
		Aliases:       datatypes.JSON([]byte(`["S4HANA","S4H"]`)),
		Status:        types.OntologyValidated,
		Confidence:    0.95,
	}
	if _, err := repo.Create(context.Background(), tx, entry); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindByNormKey(context.Background(), tx, "acme", "s4h", []types.OntologyStatus{types.OntologyValidated})
	if err != nil {
		t.Fatalf("FindByNormKey: %v", err)
	}
	if got.CanonicalName != "S/4HANA" {
		t.Fatalf("canonical=%q, want S/4HANA via alias", got.CanonicalName)
	}
}

func TestFindByNormKeyFiltersStatusAndTenant(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewOntologyEntryRepo(db, testutil.Logger(t))

	entry := &types.OntologyEntry{
		ID:            uuid.New(),
		TenantID:      "acme",
		CanonicalName: "Acme Cloud",
		NormKey:       types.NormKey("Acme Cloud"),
		Status:        types.OntologyPending,
		Confidence:    0.6,
	}
	if _, err := repo.Create(context.Background(), tx, entry); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.FindByNormKey(context.Background(), tx, "acme", "acme cloud", []types.OntologyStatus{types.OntologyValidated}); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound for status-filtered pending entry", err)
	}
	if _, err := repo.FindByNormKey(context.Background(), tx, "globex", "acme cloud", nil); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound across tenants", err)
	}
	if _, err := repo.FindByNormKey(context.Background(), tx, "acme", "acme cloud", []types.OntologyStatus{types.OntologyPending}); err != nil {
		t.Fatalf("err=%v, want pending entry visible when pending is requested", err)
	}
}

func TestMarkDeprecatedPreservesEntry(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewOntologyEntryRepo(db, testutil.Logger(t))

	old := &types.OntologyEntry{
		ID:            uuid.New(),
		TenantID:      "acme",
		CanonicalName: "Acme Legacy Suite",
		NormKey:       types.NormKey("Acme Legacy Suite"),
		Status:        types.OntologyValidated,
		Confidence:    0.9,
	}
	if _, err := repo.Create(context.Background(), tx, old); err != nil {
		t.Fatalf("create: %v", err)
	}
	replacement := uuid.New()

	if err := repo.MarkDeprecated(context.Background(), tx, old.ID, replacement, "superseded", "curator"); err != nil {
		t.Fatalf("MarkDeprecated: %v", err)
	}

	got, err := repo.GetByID(context.Background(), tx, old.ID)
	if err != nil {
		t.Fatalf("GetByID after deprecation: %v", err)
	}
	if got.Status != types.OntologyDeprecated {
		t.Fatalf("status=%s, want deprecated", got.Status)
	}
	if got.ReplacedByID == nil || *got.ReplacedByID != replacement {
		t.Fatalf("replaced_by=%v, want %s", got.ReplacedByID, replacement)
	}
	if got.DeprecatedAt == nil || got.DeprecatedBy != "curator" {
		t.Fatalf("deprecation audit fields missing: %+v", got)
	}
}
