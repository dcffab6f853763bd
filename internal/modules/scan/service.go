package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/clients/gcp"
	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/data/repos/content"
	"github.com/vantler/adcomply-backend/internal/data/repos/rules"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/modules/scan/steps"
	"github.com/vantler/adcomply-backend/internal/observability"
	"github.com/vantler/adcomply-backend/internal/platform/apperr"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/envutil"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
	"github.com/vantler/adcomply-backend/internal/services"
)

type Deps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Gateway   services.ModelGateway
	Librarian services.Librarian
	Bypass    services.BypassEngine
	Media     gcp.MediaStore

	ContentItems content.ContentItemRepo
	Advertisers  content.AdvertiserRepo
	Products     content.ProductRepo
	Rules        rules.RuleRepo
	Assignments  rules.RuleAssignmentRepo
	Overrides    rules.RuleOverrideRepo
	Flags        compliance.FlagRepo
	Audit        compliance.AuditLogRepo
}

// Result summarizes one content-item scan.
type Result struct {
	ContentItemID  uuid.UUID `json:"content_item_id"`
	Mentions       int       `json:"mentions"`
	FlagsCreated   int       `json:"flags_created"`
	Violations     int       `json:"violations"`
	AutoClosed     int       `json:"auto_closed"`
	AutoRemediated int       `json:"auto_remediated"`
	FailedMentions int       `json:"failed_mentions"`
	FailedPersists int       `json:"failed_persists"`
}

// Service runs the full pipeline for one content item: extraction,
// per-product rule resolution, bounded-concurrency evaluation, and bypass
// decisioning on every resulting flag. Re-running a scan produces a fresh
// set of flags; deduplication against prior runs is the caller's policy.
type Service interface {
	ScanContentItem(ctx context.Context, contentItemID uuid.UUID) (*Result, error)
}

type service struct {
	deps      Deps
	batchSize int
}

func NewService(deps Deps) Service {
	return &service{
		deps:      deps,
		batchSize: envutil.GetEnvAsInt("EVAL_BATCH_SIZE", steps.DefaultEvaluationBatchSize, deps.Log),
	}
}

func (s *service) ScanContentItem(ctx context.Context, contentItemID uuid.UUID) (*Result, error) {
	if contentItemID == uuid.Nil {
		return nil, fmt.Errorf("scan: missing content item id")
	}
	ctx, span := observability.Tracer().Start(ctx, "scan.content_item")
	span.SetAttributes(attribute.String("content_item_id", contentItemID.String()))
	defer span.End()

	log := s.deps.Log.With("content_item_id", contentItemID)
	started := time.Now()
	dbc := dbctx.Context{Ctx: ctx}

	item, err := s.deps.ContentItems.GetByID(dbc, contentItemID)
	if err != nil {
		return nil, fmt.Errorf("load content item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("content item %s: %w", contentItemID, apperr.ErrNotFound)
	}
	products, err := s.deps.Products.ListByAdvertiserID(dbc, item.AdvertiserID)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	extracted, err := steps.ExtractMentions(ctx, steps.ExtractMentionsDeps{
		Log:     s.deps.Log,
		Gateway: s.deps.Gateway,
		Media:   s.deps.Media,
	}, steps.ExtractMentionsInput{Item: item, Products: products})
	if err != nil {
		return nil, fmt.Errorf("extract mentions: %w", err)
	}

	result := &Result{ContentItemID: contentItemID, Mentions: len(extracted.Mentions)}
	if len(extracted.Mentions) == 0 {
		log.Info("Scan found no mentions", "duration", time.Since(started).String())
		return result, nil
	}

	productRules, globalRules, err := s.resolveRuleSets(ctx, item, extracted.Mentions)
	if err != nil {
		return nil, err
	}

	scheduled, err := steps.ScheduleEvaluations(ctx, steps.ScheduleEvaluationsDeps{
		Log:       s.deps.Log,
		Gateway:   s.deps.Gateway,
		Librarian: s.deps.Librarian,
	}, steps.ScheduleEvaluationsInput{
		Item:         item,
		Mentions:     extracted.Mentions,
		ProductRules: productRules,
		GlobalRules:  globalRules,
		BatchSize:    s.batchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule evaluations: %w", err)
	}
	result.Violations = scheduled.Violations
	result.FailedMentions = scheduled.FailedMentions

	s.persistCandidates(ctx, log, item, scheduled.Candidates, result)

	log.Info("Scan complete",
		"mentions", result.Mentions,
		"flags_created", result.FlagsCreated,
		"violations", result.Violations,
		"auto_closed", result.AutoClosed,
		"auto_remediated", result.AutoRemediated,
		"duration", time.Since(started).String(),
	)
	return result, nil
}

// resolveRuleSets resolves the applicable rules for every product that has
// mentions, plus the advertiser-global set.
func (s *service) resolveRuleSets(ctx context.Context, item *domain.ContentItem, mentions []*domain.ExtractedMention) (map[uuid.UUID][]*domain.Rule, []*domain.Rule, error) {
	resolveDeps := steps.ResolveRulesDeps{
		DB:          s.deps.DB,
		Log:         s.deps.Log,
		Advertisers: s.deps.Advertisers,
		Rules:       s.deps.Rules,
		Assignments: s.deps.Assignments,
		Overrides:   s.deps.Overrides,
	}

	mentionedProducts := map[uuid.UUID]bool{}
	hasGlobal := false
	for _, m := range mentions {
		if m.ProductID != nil {
			mentionedProducts[*m.ProductID] = true
		} else {
			hasGlobal = true
		}
	}

	productRules := map[uuid.UUID][]*domain.Rule{}
	for productID := range mentionedProducts {
		resolved, err := steps.ResolveProductRules(ctx, resolveDeps, steps.ResolveRulesInput{
			AdvertiserID: item.AdvertiserID,
			ProductID:    productID,
			Platform:     item.Platform,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("resolve rules for product %s: %w", productID, err)
		}
		productRules[productID] = resolved.Rules
	}

	var globalRules []*domain.Rule
	if hasGlobal {
		resolved, err := steps.ResolveGlobalRules(ctx, resolveDeps, item.AdvertiserID, item.Platform)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve global rules: %w", err)
		}
		globalRules = resolved.Rules
	}
	return productRules, globalRules, nil
}

// persistCandidates writes one flag per candidate and applies the bypass
// decision. A failed write is logged and skipped; siblings still persist.
func (s *service) persistCandidates(ctx context.Context, log *logger.Logger, item *domain.ContentItem, candidates []*steps.FlagCandidate, result *Result) {
	if len(candidates) == 0 {
		return
	}
	dbc := dbctx.Context{Ctx: ctx}

	settings, err := s.deps.Bypass.GetSettings(ctx, item.OrganizationID)
	if err != nil {
		log.Warn("Bypass settings unavailable, persisting all flags as pending", "error", err)
		settings = nil
	}
	// Auto-transitions from the live pipeline still reference the settings
	// change that made them possible.
	var settingsAuditID *uuid.UUID
	if settings.Enabled() {
		entry, aErr := s.deps.Audit.LatestByAction(dbc, item.OrganizationID, domain.AuditBypassSettingsUpdated)
		if aErr != nil {
			log.Warn("Latest settings audit entry unavailable", "error", aErr)
		} else if entry != nil {
			settingsAuditID = &entry.ID
		}
	}

	ruleIDs := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, c := range candidates {
		if !ruleIDs[c.Proposal.RuleID] {
			ruleIDs[c.Proposal.RuleID] = true
			ids = append(ids, c.Proposal.RuleID)
		}
	}
	ruleRows, err := s.deps.Rules.GetByIDs(dbc, ids)
	if err != nil {
		log.Warn("Rules unavailable for bypass decisioning, persisting as pending", "error", err)
	}
	ruleByID := map[uuid.UUID]*domain.Rule{}
	for _, r := range ruleRows {
		ruleByID[r.ID] = r
	}

	for _, c := range candidates {
		decision := services.BypassDecision{Status: domain.FlagStatusPending}
		if settings != nil && ruleByID[c.Proposal.RuleID] != nil {
			decision = s.deps.Bypass.Decide(settings, ruleByID[c.Proposal.RuleID], c.Proposal.Ruling, c.Proposal.Confidence)
		}
		if err := s.persistOne(ctx, item, c, decision, settingsAuditID); err != nil {
			result.FailedPersists++
			log.Warn("Flag persist failed, continuing with siblings",
				"rule_id", c.Proposal.RuleID, "error", err)
			continue
		}
		result.FlagsCreated++
		if decision.ResolutionMethod != nil {
			switch *decision.ResolutionMethod {
			case domain.ResolutionAIAutoClose:
				result.AutoClosed++
			case domain.ResolutionAIAutoRemediate:
				result.AutoRemediated++
			}
		}
	}
}

func (s *service) persistOne(ctx context.Context, item *domain.ContentItem, c *steps.FlagCandidate, decision services.BypassDecision, settingsAuditID *uuid.UUID) error {
	return s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		flag := &domain.Flag{
			OrganizationID:     item.OrganizationID,
			ContentItemID:      item.ID,
			RuleID:             c.Proposal.RuleID,
			RuleVersionApplied: c.Proposal.RuleVersion,
			RuleScope:          c.Proposal.RuleScope,
			ProductID:          c.Mention.ProductID,
			SourceLocation:     c.Mention.SourceLocation,
			Context:            c.Mention.Context,
			Confidence:         c.Proposal.Confidence,
			Ruling:             c.Proposal.Ruling,
			AIReasoning:        c.Proposal.Reasoning,
			Status:             decision.Status,
			ResolutionMethod:   decision.ResolutionMethod,
		}
		if _, err := s.deps.Flags.Create(txc, []*domain.Flag{flag}); err != nil {
			return err
		}
		if decision.ResolutionMethod == nil {
			return nil
		}
		detail, _ := json.Marshal(map[string]any{
			"flag_id":    flag.ID,
			"from":       domain.FlagStatusPending,
			"to":         decision.Status,
			"method":     *decision.ResolutionMethod,
			"confidence": flag.Confidence,
		})
		return s.deps.Audit.Create(txc, &domain.AuditLogEntry{
			OrganizationID:       item.OrganizationID,
			Action:               decision.AuditAction,
			Actor:                "system",
			Detail:               datatypes.JSON(detail),
			TriggeringEventLogID: settingsAuditID,
		})
	})
}
