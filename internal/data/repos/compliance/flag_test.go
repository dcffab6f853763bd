package compliance_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/data/repos/testutil"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
)

func TestFlagAutoResolutionGuards(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := compliance.NewFlagRepo(tx, testutil.Logger(t))

	org := testutil.SeedOrganization(t, dbc, "acme")
	adv := testutil.SeedAdvertiser(t, dbc, org.ID, "bank")
	rule := testutil.SeedRule(t, dbc, org.ID, "fee disclosure", domain.RuleScopeProduct)
	item := testutil.SeedContentItem(t, dbc, org.ID, adv.ID, "YouTube")
	flag := testutil.SeedFlag(t, dbc, org.ID, item.ID, rule.ID, domain.RulingCompliant, 0.9)

	moved, err := repo.ApplyAutoResolution(dbc, flag.ID, domain.FlagStatusClosed, domain.ResolutionAIAutoClose)
	if err != nil || !moved {
		t.Fatalf("ApplyAutoResolution on pending flag: moved=%v err=%v", moved, err)
	}

	// Already closed, the guard must refuse a second transition.
	moved, err = repo.ApplyAutoResolution(dbc, flag.ID, domain.FlagStatusRemediating, domain.ResolutionAIAutoRemediate)
	if err != nil {
		t.Fatalf("ApplyAutoResolution: %v", err)
	}
	if moved {
		t.Fatal("non-pending flag transitioned again")
	}

	reset, err := repo.ResetToPending(dbc, []uuid.UUID{flag.ID})
	if err != nil || len(reset) != 1 {
		t.Fatalf("ResetToPending: ids=%v err=%v", reset, err)
	}
	got, err := repo.GetByIDs(dbc, []uuid.UUID{flag.ID})
	if err != nil || len(got) != 1 {
		t.Fatalf("GetByIDs: %v", err)
	}
	if got[0].Status != domain.FlagStatusPending || got[0].ResolutionMethod != nil {
		t.Fatalf("reset flag not pending: %+v", got[0])
	}

	// A flag without an AI resolution method is out of ResetToPending's scope.
	reset, err = repo.ResetToPending(dbc, []uuid.UUID{flag.ID})
	if err != nil {
		t.Fatalf("ResetToPending: %v", err)
	}
	if len(reset) != 0 {
		t.Fatalf("reset touched a flag without an AI resolution: %v", reset)
	}
}
