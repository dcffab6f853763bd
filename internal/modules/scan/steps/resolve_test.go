package steps

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/data/repos/content"
	"github.com/vantler/adcomply-backend/internal/data/repos/rules"
	"github.com/vantler/adcomply-backend/internal/data/repos/testutil"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
)

func resolveDeps(t *testing.T, tx *gorm.DB) ResolveRulesDeps {
	t.Helper()
	log := testutil.Logger(t)
	return ResolveRulesDeps{
		DB:          tx,
		Log:         log,
		Advertisers: content.NewAdvertiserRepo(tx, log),
		Rules:       rules.NewRuleRepo(tx, log),
		Assignments: rules.NewRuleAssignmentRepo(tx, log),
		Overrides:   rules.NewRuleOverrideRepo(tx, log),
	}
}

func ruleIDs(out ResolveRulesOutput) map[uuid.UUID]bool {
	m := map[uuid.UUID]bool{}
	for _, r := range out.Rules {
		m[r.ID] = true
	}
	return m
}

func TestResolveProductRulesLayering(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	deps := resolveDeps(t, tx)

	org := testutil.SeedOrganization(t, dbc, "acme")
	feeRule := testutil.SeedRule(t, dbc, org.ID, "fee disclosure", domain.RuleScopeProduct)
	aprRule := testutil.SeedRule(t, dbc, org.ID, "apr disclosure", domain.RuleScopeProduct)
	bonusRule := testutil.SeedRule(t, dbc, org.ID, "bonus terms", domain.RuleScopeProduct)
	excludedRule := testutil.SeedRule(t, dbc, org.ID, "legacy wording", domain.RuleScopeProduct)

	defaults := testutil.SeedRuleSet(t, dbc, org.ID, "defaults", feeRule.ID, aprRule.ID, excludedRule.ID)
	assigned := testutil.SeedRuleSet(t, dbc, org.ID, "premium cards", aprRule.ID)

	adv := &domain.Advertiser{
		ID:                      uuid.New(),
		OrganizationID:          org.ID,
		Name:                    "bank",
		DefaultProductRuleSetID: &defaults.ID,
	}
	if err := tx.Create(adv).Error; err != nil {
		t.Fatalf("seed advertiser: %v", err)
	}
	product := testutil.SeedProduct(t, dbc, adv.ID, "Apex Travel Card")

	if err := tx.Create(&domain.RuleSetAssignment{
		ID: uuid.New(), ProductID: product.ID, RuleSetID: assigned.ID, Position: 0,
	}).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	for _, o := range []*domain.RuleOverride{
		{ID: uuid.New(), ProductID: product.ID, RuleID: excludedRule.ID, Kind: domain.OverrideExclude},
		{ID: uuid.New(), ProductID: product.ID, RuleID: bonusRule.ID, Kind: domain.OverrideInclude},
	} {
		if err := tx.Create(o).Error; err != nil {
			t.Fatalf("seed override: %v", err)
		}
	}

	out, err := ResolveProductRules(context.Background(), deps, ResolveRulesInput{
		AdvertiserID: adv.ID,
		ProductID:    product.ID,
		Platform:     "YouTube",
	})
	if err != nil {
		t.Fatalf("ResolveProductRules: %v", err)
	}

	got := ruleIDs(out)
	if len(got) != 3 {
		t.Fatalf("effective set has %d rules, want 3: %v", len(got), got)
	}
	for name, id := range map[string]uuid.UUID{
		"default fee rule":    feeRule.ID,
		"assigned apr rule":   aprRule.ID,
		"included bonus rule": bonusRule.ID,
	} {
		if !got[id] {
			t.Errorf("%s missing from effective set", name)
		}
	}
	if got[excludedRule.ID] {
		t.Error("excluded rule survived the override layer")
	}
}

func TestResolveProductRulesPlatformFilter(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	deps := resolveDeps(t, tx)

	org := testutil.SeedOrganization(t, dbc, "acme")
	productRule := testutil.SeedRule(t, dbc, org.ID, "fee disclosure", domain.RuleScopeProduct)
	youtubeRule := testutil.SeedRule(t, dbc, org.ID, "description link required", domain.RuleScopeChannel, "YouTube")
	anyPlatform := testutil.SeedRule(t, dbc, org.ID, "ad label required", domain.RuleScopeChannel)

	defaults := testutil.SeedRuleSet(t, dbc, org.ID, "defaults", productRule.ID, youtubeRule.ID, anyPlatform.ID)
	adv := &domain.Advertiser{
		ID:                      uuid.New(),
		OrganizationID:          org.ID,
		Name:                    "bank",
		DefaultChannelRuleSetID: &defaults.ID,
	}
	if err := tx.Create(adv).Error; err != nil {
		t.Fatalf("seed advertiser: %v", err)
	}
	product := testutil.SeedProduct(t, dbc, adv.ID, "Apex Travel Card")

	out, err := ResolveProductRules(context.Background(), deps, ResolveRulesInput{
		AdvertiserID: adv.ID,
		ProductID:    product.ID,
		Platform:     "TikTok",
	})
	if err != nil {
		t.Fatalf("ResolveProductRules: %v", err)
	}

	got := ruleIDs(out)
	if got[youtubeRule.ID] {
		t.Error("YouTube-only channel rule applied on TikTok")
	}
	if !got[productRule.ID] {
		t.Error("product rule must survive platform filtering")
	}
	if !got[anyPlatform.ID] {
		t.Error("channel rule with no platform list must apply everywhere")
	}
}

func TestResolveGlobalRulesIgnoresProductLayers(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	deps := resolveDeps(t, tx)

	org := testutil.SeedOrganization(t, dbc, "acme")
	globalRule := testutil.SeedRule(t, dbc, org.ID, "sponsorship disclosure", domain.RuleScopeChannel)
	productOnly := testutil.SeedRule(t, dbc, org.ID, "fee disclosure", domain.RuleScopeProduct)

	globalSet := testutil.SeedRuleSet(t, dbc, org.ID, "global", globalRule.ID)
	defaults := testutil.SeedRuleSet(t, dbc, org.ID, "defaults", productOnly.ID)

	adv := &domain.Advertiser{
		ID:                      uuid.New(),
		OrganizationID:          org.ID,
		Name:                    "bank",
		GlobalRuleSetID:         &globalSet.ID,
		DefaultProductRuleSetID: &defaults.ID,
	}
	if err := tx.Create(adv).Error; err != nil {
		t.Fatalf("seed advertiser: %v", err)
	}

	out, err := ResolveGlobalRules(context.Background(), deps, adv.ID, "YouTube")
	if err != nil {
		t.Fatalf("ResolveGlobalRules: %v", err)
	}
	got := ruleIDs(out)
	if len(got) != 1 || !got[globalRule.ID] {
		t.Fatalf("global resolution = %v, want only the global set's rule", got)
	}
}

func TestResolveGlobalRulesNoSetConfigured(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	deps := resolveDeps(t, tx)

	org := testutil.SeedOrganization(t, dbc, "acme")
	adv := testutil.SeedAdvertiser(t, dbc, org.ID, "bank")

	out, err := ResolveGlobalRules(context.Background(), deps, adv.ID, "YouTube")
	if err != nil {
		t.Fatalf("ResolveGlobalRules: %v", err)
	}
	if len(out.Rules) != 0 {
		t.Fatalf("advertiser without global set resolved %d rules", len(out.Rules))
	}
}
