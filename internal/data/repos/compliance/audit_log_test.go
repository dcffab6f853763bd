package compliance_test

import (
	"context"
	"testing"
	"time"

	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/data/repos/testutil"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
)

func TestAuditLogListByActionPrefix(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := compliance.NewAuditLogRepo(tx, testutil.Logger(t))

	org := testutil.SeedOrganization(t, dbc, "acme")
	other := testutil.SeedOrganization(t, dbc, "rival")

	// created_at is set app-side, so spacing the inserts keeps the DESC
	// ordering deterministic.
	actions := []string{
		domain.AuditFlagAutoClosed,
		domain.AuditBypassSettingsUpdated,
		domain.AuditFlagReverted,
	}
	for _, action := range actions {
		if err := repo.Create(dbc, &domain.AuditLogEntry{
			OrganizationID: org.ID,
			Action:         action,
			Actor:          "reviewer",
		}); err != nil {
			t.Fatalf("seed audit entry %q: %v", action, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := repo.Create(dbc, &domain.AuditLogEntry{
		OrganizationID: other.ID,
		Action:         domain.AuditFlagAutoClosed,
		Actor:          "reviewer",
	}); err != nil {
		t.Fatalf("seed other-org entry: %v", err)
	}

	got, err := repo.ListByActionPrefix(dbc, org.ID, domain.AuditFlagActionPrefix, 10)
	if err != nil {
		t.Fatalf("ListByActionPrefix: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("prefix query returned %d entries, want 2", len(got))
	}
	if got[0].Action != domain.AuditFlagReverted || got[1].Action != domain.AuditFlagAutoClosed {
		t.Fatalf("entries out of order: %s, %s", got[0].Action, got[1].Action)
	}
	for _, e := range got {
		if e.OrganizationID != org.ID {
			t.Fatalf("entry leaked from another organization: %+v", e)
		}
	}

	limited, err := repo.ListByActionPrefix(dbc, org.ID, domain.AuditFlagActionPrefix, 1)
	if err != nil {
		t.Fatalf("ListByActionPrefix limit 1: %v", err)
	}
	if len(limited) != 1 || limited[0].Action != domain.AuditFlagReverted {
		t.Fatalf("limit 1 = %+v, want only the newest flag entry", limited)
	}

	empty, err := repo.ListByActionPrefix(dbc, org.ID, "", 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty prefix = %d entries err=%v, want none", len(empty), err)
	}
}
