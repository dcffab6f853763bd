package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
)

func SeedOrganization(tb testing.TB, dbc dbctx.Context, name string) *domain.Organization {
	tb.Helper()
	org := &domain.Organization{ID: uuid.New(), Name: name}
	if err := dbc.Tx.WithContext(dbc.Ctx).Create(org).Error; err != nil {
		tb.Fatalf("seed organization: %v", err)
	}
	return org
}

func SeedAdvertiser(tb testing.TB, dbc dbctx.Context, orgID uuid.UUID, name string) *domain.Advertiser {
	tb.Helper()
	adv := &domain.Advertiser{ID: uuid.New(), OrganizationID: orgID, Name: name}
	if err := dbc.Tx.WithContext(dbc.Ctx).Create(adv).Error; err != nil {
		tb.Fatalf("seed advertiser: %v", err)
	}
	return adv
}

func SeedProduct(tb testing.TB, dbc dbctx.Context, advertiserID uuid.UUID, name string) *domain.Product {
	tb.Helper()
	p := &domain.Product{
		ID:             uuid.New(),
		AdvertiserID:   advertiserID,
		Name:           name,
		AnnualFee:      "$95",
		FeatureBullets: datatypes.JSON([]byte(`["2x points on travel","no foreign transaction fees"]`)),
	}
	if err := dbc.Tx.WithContext(dbc.Ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed product: %v", err)
	}
	return p
}

func SeedRule(tb testing.TB, dbc dbctx.Context, orgID uuid.UUID, name, scope string, platforms ...string) *domain.Rule {
	tb.Helper()
	r := &domain.Rule{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		Scope:          scope,
		Version:        "1",
	}
	if len(platforms) > 0 {
		raw := []byte(`[`)
		for i, p := range platforms {
			if i > 0 {
				raw = append(raw, ',')
			}
			raw = append(raw, []byte(`"`+p+`"`)...)
		}
		raw = append(raw, ']')
		r.ApplicablePlatforms = datatypes.JSON(raw)
	}
	if err := dbc.Tx.WithContext(dbc.Ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed rule: %v", err)
	}
	return r
}

func SeedRuleSet(tb testing.TB, dbc dbctx.Context, orgID uuid.UUID, name string, ruleIDs ...uuid.UUID) *domain.RuleSet {
	tb.Helper()
	set := &domain.RuleSet{ID: uuid.New(), OrganizationID: orgID, Name: name}
	if err := dbc.Tx.WithContext(dbc.Ctx).Create(set).Error; err != nil {
		tb.Fatalf("seed rule set: %v", err)
	}
	for _, ruleID := range ruleIDs {
		link := &domain.RuleSetRule{ID: uuid.New(), RuleSetID: set.ID, RuleID: ruleID}
		if err := dbc.Tx.WithContext(dbc.Ctx).Create(link).Error; err != nil {
			tb.Fatalf("seed rule set rule: %v", err)
		}
	}
	return set
}

func SeedContentItem(tb testing.TB, dbc dbctx.Context, orgID, advertiserID uuid.UUID, platform string) *domain.ContentItem {
	tb.Helper()
	item := &domain.ContentItem{
		ID:             uuid.New(),
		OrganizationID: orgID,
		AdvertiserID:   advertiserID,
		Platform:       platform,
		Title:          "Best travel card of the year",
		Caption:        "Earn 2x points on every purchase with no annual fee!",
	}
	if err := dbc.Tx.WithContext(dbc.Ctx).Create(item).Error; err != nil {
		tb.Fatalf("seed content item: %v", err)
	}
	return item
}

func SeedFlag(tb testing.TB, dbc dbctx.Context, orgID, contentItemID, ruleID uuid.UUID, ruling string, confidence float64) *domain.Flag {
	tb.Helper()
	f := &domain.Flag{
		ID:                 uuid.New(),
		OrganizationID:     orgID,
		ContentItemID:      contentItemID,
		RuleID:             ruleID,
		RuleVersionApplied: "1",
		RuleScope:          domain.RuleScopeProduct,
		SourceLocation:     domain.SourceCaption,
		Context:            "no annual fee!",
		Confidence:         confidence,
		Ruling:             ruling,
		Status:             domain.FlagStatusPending,
	}
	if err := dbc.Tx.WithContext(dbc.Ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed flag: %v", err)
	}
	return f
}
