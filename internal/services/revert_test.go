package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/data/repos/ops"
	"github.com/vantler/adcomply-backend/internal/data/repos/rules"
	"github.com/vantler/adcomply-backend/internal/data/repos/testutil"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
)

type engineFixture struct {
	tx     *gorm.DB
	bypass BypassEngine
	revert RevertEngine
	flags  compliance.FlagRepo
}

func newEngineFixture(t *testing.T) engineFixture {
	t.Helper()
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)
	flagRepo := compliance.NewFlagRepo(tx, log)
	auditRepo := compliance.NewAuditLogRepo(tx, log)
	return engineFixture{
		tx: tx,
		bypass: NewBypassEngine(tx, log,
			compliance.NewBypassSettingsRepo(tx, log),
			flagRepo,
			auditRepo,
			rules.NewRuleRepo(tx, log),
			ops.NewJobRunRepo(tx, log),
		),
		revert: NewRevertEngine(tx, log, flagRepo, auditRepo),
		flags:  flagRepo,
	}
}

func flagStatus(t *testing.T, fx engineFixture, id uuid.UUID) *domain.Flag {
	t.Helper()
	got, err := fx.flags.GetByIDs(dbctx.Context{Ctx: context.Background()}, []uuid.UUID{id})
	if err != nil || len(got) != 1 {
		t.Fatalf("load flag %s: %v (%d rows)", id, err, len(got))
	}
	return got[0]
}

func TestRetroApplyAndRevertCycle(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: fx.tx}

	org := testutil.SeedOrganization(t, dbc, "acme")
	adv := testutil.SeedAdvertiser(t, dbc, org.ID, "bank")
	rule := testutil.SeedRule(t, dbc, org.ID, "fee disclosure", domain.RuleScopeProduct)
	item := testutil.SeedContentItem(t, dbc, org.ID, adv.ID, "YouTube")

	high := testutil.SeedFlag(t, dbc, org.ID, item.ID, rule.ID, domain.RulingCompliant, 0.92)
	low := testutil.SeedFlag(t, dbc, org.ID, item.ID, rule.ID, domain.RulingCompliant, 0.50)

	threshold := 80.0
	_, entry, err := fx.bypass.UpdateSettings(ctx, org.ID, UpdateSettingsInput{
		ThresholdPercent:   &threshold,
		AutoCloseCompliant: true,
		Actor:              "reviewer",
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	applied, err := fx.bypass.RetroApply(ctx, org.ID, entry.ID)
	if err != nil {
		t.Fatalf("RetroApply: %v", err)
	}
	if applied != 1 {
		t.Fatalf("retro sweep applied %d transitions, want 1", applied)
	}
	if got := flagStatus(t, fx, high.ID); got.Status != domain.FlagStatusClosed || !got.AutoResolved() {
		t.Fatalf("high-confidence flag not auto-closed: %+v", got)
	}
	if got := flagStatus(t, fx, low.ID); got.Status != domain.FlagStatusPending {
		t.Fatalf("low-confidence flag left pending state: %+v", got)
	}

	reverted, err := fx.revert.RevertLastSettingsChange(ctx, org.ID, "reviewer")
	if err != nil {
		t.Fatalf("RevertLastSettingsChange: %v", err)
	}
	if reverted != 1 {
		t.Fatalf("reverted %d flags, want 1", reverted)
	}
	got := flagStatus(t, fx, high.ID)
	if got.Status != domain.FlagStatusPending || got.ResolutionMethod != nil {
		t.Fatalf("revert did not restore pending state: %+v", got)
	}

	// A second revert finds nothing auto-resolved and is a zero-count no-op.
	again, err := fx.revert.RevertLastSettingsChange(ctx, org.ID, "reviewer")
	if err != nil {
		t.Fatalf("second revert: %v", err)
	}
	if again != 0 {
		t.Fatalf("second revert touched %d flags, want 0", again)
	}
}

func TestRevertOnlyCoversLatestSettingsChange(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: fx.tx}

	org := testutil.SeedOrganization(t, dbc, "acme")
	adv := testutil.SeedAdvertiser(t, dbc, org.ID, "bank")
	rule := testutil.SeedRule(t, dbc, org.ID, "fee disclosure", domain.RuleScopeProduct)
	item := testutil.SeedContentItem(t, dbc, org.ID, adv.ID, "YouTube")

	early := testutil.SeedFlag(t, dbc, org.ID, item.ID, rule.ID, domain.RulingCompliant, 0.85)

	threshold := 80.0
	_, firstEntry, err := fx.bypass.UpdateSettings(ctx, org.ID, UpdateSettingsInput{
		ThresholdPercent:   &threshold,
		AutoCloseCompliant: true,
		Actor:              "reviewer",
	})
	if err != nil {
		t.Fatalf("first UpdateSettings: %v", err)
	}
	if _, err := fx.bypass.RetroApply(ctx, org.ID, firstEntry.ID); err != nil {
		t.Fatalf("first RetroApply: %v", err)
	}

	// A flag created after the first sweep, resolved only by the second one.
	late := testutil.SeedFlag(t, dbc, org.ID, item.ID, rule.ID, domain.RulingCompliant, 0.85)
	time.Sleep(5 * time.Millisecond)

	_, secondEntry, err := fx.bypass.UpdateSettings(ctx, org.ID, UpdateSettingsInput{
		ThresholdPercent:   &threshold,
		AutoCloseCompliant: true,
		Actor:              "reviewer",
	})
	if err != nil {
		t.Fatalf("second UpdateSettings: %v", err)
	}
	if _, err := fx.bypass.RetroApply(ctx, org.ID, secondEntry.ID); err != nil {
		t.Fatalf("second RetroApply: %v", err)
	}

	reverted, err := fx.revert.RevertLastSettingsChange(ctx, org.ID, "reviewer")
	if err != nil {
		t.Fatalf("RevertLastSettingsChange: %v", err)
	}
	if reverted != 1 {
		t.Fatalf("reverted %d flags, want only the second change's 1", reverted)
	}
	if got := flagStatus(t, fx, early.ID); got.Status != domain.FlagStatusClosed {
		t.Fatalf("first change's resolution was reverted: %+v", got)
	}
	if got := flagStatus(t, fx, late.ID); got.Status != domain.FlagStatusPending {
		t.Fatalf("second change's resolution survived revert: %+v", got)
	}
}

func TestRevertWithNoSettingsHistory(t *testing.T) {
	fx := newEngineFixture(t)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: fx.tx}
	org := testutil.SeedOrganization(t, dbc, "acme")

	n, err := fx.revert.RevertLastSettingsChange(context.Background(), org.ID, "reviewer")
	if err != nil {
		t.Fatalf("RevertLastSettingsChange: %v", err)
	}
	if n != 0 {
		t.Fatalf("revert with no history touched %d flags", n)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: fx.tx}
	org := testutil.SeedOrganization(t, dbc, "acme")

	bad := 150.0
	if _, _, err := fx.bypass.UpdateSettings(ctx, org.ID, UpdateSettingsInput{
		ThresholdPercent: &bad, Actor: "reviewer",
	}); err == nil {
		t.Fatal("threshold above 100 accepted")
	}

	// Disabling clears the action booleans no matter what was submitted.
	row, _, err := fx.bypass.UpdateSettings(ctx, org.ID, UpdateSettingsInput{
		ThresholdPercent:       nil,
		AutoCloseCompliant:     true,
		AutoRemediateViolation: true,
		Actor:                  "reviewer",
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if row.Enabled() || row.AutoCloseCompliant || row.AutoRemediateViolation {
		t.Fatalf("disabled settings kept action booleans latched: %+v", row)
	}
}
