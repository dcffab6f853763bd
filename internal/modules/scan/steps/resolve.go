package steps

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/data/repos/content"
	"github.com/vantler/adcomply-backend/internal/data/repos/rules"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/apperr"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type ResolveRulesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Advertisers content.AdvertiserRepo
	Rules       rules.RuleRepo
	Assignments rules.RuleAssignmentRepo
	Overrides   rules.RuleOverrideRepo
}

type ResolveRulesInput struct {
	AdvertiserID uuid.UUID
	ProductID    uuid.UUID
	Platform     string
}

type ResolveRulesOutput struct {
	// Rules is the effective applicable set, deduplicated by rule id. Order
	// carries no meaning.
	Rules []*domain.Rule
}

// ResolveProductRules computes the applicable rules for one product on one
// platform. Layers apply in strict order: advertiser defaults, then product
// set assignments, then per-product include/exclude overrides. Platform
// filtering for channel rules is re-applied at every layer, so a later layer
// can reintroduce a rule the platform filter dropped earlier only if the rule
// itself allows the platform.
func ResolveProductRules(ctx context.Context, deps ResolveRulesDeps, in ResolveRulesInput) (ResolveRulesOutput, error) {
	out := ResolveRulesOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Advertisers == nil || deps.Rules == nil || deps.Assignments == nil || deps.Overrides == nil {
		return out, fmt.Errorf("resolve rules: missing deps")
	}
	if in.AdvertiserID == uuid.Nil || in.ProductID == uuid.Nil {
		return out, fmt.Errorf("resolve rules: missing ids")
	}

	dbc := dbctx.Context{Ctx: ctx, Tx: deps.DB}
	adv, err := deps.Advertisers.GetByID(dbc, in.AdvertiserID)
	if err != nil {
		return out, err
	}
	if adv == nil {
		return out, fmt.Errorf("advertiser %s: %w", in.AdvertiserID, apperr.ErrNotFound)
	}

	effective := map[uuid.UUID]*domain.Rule{}

	// Layer 1: advertiser default product + channel sets.
	for _, setID := range []*uuid.UUID{adv.DefaultProductRuleSetID, adv.DefaultChannelRuleSetID} {
		if setID == nil {
			continue
		}
		setRules, err := deps.Rules.GetBySetID(dbc, *setID)
		if err != nil {
			return out, err
		}
		overlayRules(effective, setRules, in.Platform)
	}

	// Layer 2: product set assignments, in position order.
	assignments, err := deps.Assignments.GetByProductID(dbc, in.ProductID)
	if err != nil {
		return out, err
	}
	for _, a := range assignments {
		setRules, err := deps.Rules.GetBySetID(dbc, a.RuleSetID)
		if err != nil {
			return out, err
		}
		overlayRules(effective, setRules, in.Platform)
	}

	// Layer 3: per-product overrides dominate everything before them.
	overrides, err := deps.Overrides.GetByProductID(dbc, in.ProductID)
	if err != nil {
		return out, err
	}
	var includeIDs []uuid.UUID
	for _, o := range overrides {
		switch o.Kind {
		case domain.OverrideExclude:
			delete(effective, o.RuleID)
		case domain.OverrideInclude:
			includeIDs = append(includeIDs, o.RuleID)
		default:
			deps.Log.Warn("Unknown override kind, skipping",
				"product_id", in.ProductID, "rule_id", o.RuleID, "kind", o.Kind)
		}
	}
	if len(includeIDs) > 0 {
		included, err := deps.Rules.GetByIDs(dbc, includeIDs)
		if err != nil {
			return out, err
		}
		overlayRules(effective, included, in.Platform)
	}

	out.Rules = make([]*domain.Rule, 0, len(effective))
	for _, r := range effective {
		out.Rules = append(out.Rules, r)
	}
	return out, nil
}

// ResolveGlobalRules returns the advertiser's global channel-rule set
// filtered by platform. Product assignments and overrides are never
// consulted here.
func ResolveGlobalRules(ctx context.Context, deps ResolveRulesDeps, advertiserID uuid.UUID, platform string) (ResolveRulesOutput, error) {
	out := ResolveRulesOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Advertisers == nil || deps.Rules == nil {
		return out, fmt.Errorf("resolve global rules: missing deps")
	}
	if advertiserID == uuid.Nil {
		return out, fmt.Errorf("resolve global rules: missing advertiser id")
	}

	dbc := dbctx.Context{Ctx: ctx, Tx: deps.DB}
	adv, err := deps.Advertisers.GetByID(dbc, advertiserID)
	if err != nil {
		return out, err
	}
	if adv == nil {
		return out, fmt.Errorf("advertiser %s: %w", advertiserID, apperr.ErrNotFound)
	}
	if adv.GlobalRuleSetID == nil {
		return out, nil
	}
	setRules, err := deps.Rules.GetBySetID(dbc, *adv.GlobalRuleSetID)
	if err != nil {
		return out, err
	}
	effective := map[uuid.UUID]*domain.Rule{}
	overlayRules(effective, setRules, platform)
	out.Rules = make([]*domain.Rule, 0, len(effective))
	for _, r := range effective {
		out.Rules = append(out.Rules, r)
	}
	return out, nil
}

// overlayRules writes platform-eligible rules into the effective map,
// replacing same-id entries from earlier layers.
func overlayRules(effective map[uuid.UUID]*domain.Rule, layer []*domain.Rule, platform string) {
	for _, r := range layer {
		if r == nil {
			continue
		}
		if !r.AppliesToPlatform(platform) {
			continue
		}
		effective[r.ID] = r
	}
}
