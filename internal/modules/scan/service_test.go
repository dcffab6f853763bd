package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/data/repos/content"
	"github.com/vantler/adcomply-backend/internal/data/repos/ops"
	"github.com/vantler/adcomply-backend/internal/data/repos/rules"
	"github.com/vantler/adcomply-backend/internal/data/repos/testutil"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/apperr"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/openai"
	"github.com/vantler/adcomply-backend/internal/services"
)

// replayGateway feeds canned model results back in call order.
type replayGateway struct {
	mu      sync.Mutex
	script  []*openai.InvokeResult
	nextIdx int
}

func (g *replayGateway) Invoke(ctx context.Context, call services.GatewayCall) (*openai.InvokeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.nextIdx
	g.nextIdx++
	if i >= len(g.script) {
		return &openai.InvokeResult{Text: `{"findings":[]}`}, nil
	}
	return g.script[i], nil
}

func (g *replayGateway) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (g *replayGateway) DefaultModel() string { return "test" }

// absentContentItems mimics a storage layer that signals a missing row with
// two nils instead of a wrapped error.
type absentContentItems struct{}

func (absentContentItems) Create(dbctx.Context, *domain.ContentItem) error { return nil }

func (absentContentItems) GetByID(dbctx.Context, uuid.UUID) (*domain.ContentItem, error) {
	return nil, nil
}

// failFirstCreateFlags rejects the first insert and delegates the rest.
type failFirstCreateFlags struct {
	compliance.FlagRepo
	mu      sync.Mutex
	tripped bool
}

func (f *failFirstCreateFlags) Create(dbc dbctx.Context, rows []*domain.Flag) ([]*domain.Flag, error) {
	f.mu.Lock()
	first := !f.tripped
	f.tripped = true
	f.mu.Unlock()
	if first {
		return nil, errors.New("insert rejected")
	}
	return f.FlagRepo.Create(dbc, rows)
}

type scanFixture struct {
	tx     *gorm.DB
	svc    Service
	flags  compliance.FlagRepo
	audit  compliance.AuditLogRepo
	bypass services.BypassEngine
}

// newScanFixture wires the full pipeline onto one rolled-back transaction.
// wrapFlags lets a test interpose on the flag repo the service writes through.
func newScanFixture(t *testing.T, gw *replayGateway, wrapFlags func(compliance.FlagRepo) compliance.FlagRepo) scanFixture {
	t.Helper()
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)

	flagRepo := compliance.NewFlagRepo(tx, log)
	auditRepo := compliance.NewAuditLogRepo(tx, log)
	ruleRepo := rules.NewRuleRepo(tx, log)
	serviceFlags := flagRepo
	if wrapFlags != nil {
		serviceFlags = wrapFlags(flagRepo)
	}
	bypass := services.NewBypassEngine(tx, log,
		compliance.NewBypassSettingsRepo(tx, log),
		flagRepo,
		auditRepo,
		ruleRepo,
		ops.NewJobRunRepo(tx, log),
	)
	svc := NewService(Deps{
		DB:           tx,
		Log:          log,
		Gateway:      gw,
		Bypass:       bypass,
		ContentItems: content.NewContentItemRepo(tx, log),
		Advertisers:  content.NewAdvertiserRepo(tx, log),
		Products:     content.NewProductRepo(tx, log),
		Rules:        ruleRepo,
		Assignments:  rules.NewRuleAssignmentRepo(tx, log),
		Overrides:    rules.NewRuleOverrideRepo(tx, log),
		Flags:        serviceFlags,
		Audit:        auditRepo,
	})
	return scanFixture{tx: tx, svc: svc, flags: flagRepo, audit: auditRepo, bypass: bypass}
}

type scanGraph struct {
	org     *domain.Organization
	rule    *domain.Rule
	product *domain.Product
	item    *domain.ContentItem
}

// seedScanGraph builds one advertiser whose default product set holds a single
// rule, with one product and one caption-only content item.
func seedScanGraph(t *testing.T, dbc dbctx.Context) scanGraph {
	t.Helper()
	org := testutil.SeedOrganization(t, dbc, "acme")
	rule := testutil.SeedRule(t, dbc, org.ID, "fee disclosure", domain.RuleScopeProduct)
	set := testutil.SeedRuleSet(t, dbc, org.ID, "defaults", rule.ID)
	adv := &domain.Advertiser{
		ID:                      uuid.New(),
		OrganizationID:          org.ID,
		Name:                    "bank",
		DefaultProductRuleSetID: &set.ID,
	}
	if err := dbc.Tx.Create(adv).Error; err != nil {
		t.Fatalf("seed advertiser: %v", err)
	}
	product := testutil.SeedProduct(t, dbc, adv.ID, "Apex Travel Card")
	item := testutil.SeedContentItem(t, dbc, org.ID, adv.ID, "YouTube")
	return scanGraph{org: org, rule: rule, product: product, item: item}
}

func captionMentionJSON(productID uuid.UUID, confidence float64) string {
	return fmt.Sprintf(`{"product_id":"%s","mention_type":"fee_claim","source_text":"no annual fee","context":"no annual fee!","source_location":"caption","confidence":%v}`,
		productID, confidence)
}

func findingJSON(ruleID uuid.UUID, ruling string, delta float64) string {
	return fmt.Sprintf(`{"findings":[{"rule_id":"%s","ruling":"%s","model_confidence":0.9,"confidence_delta":%v,"reasoning":"fee wording"}]}`,
		ruleID, ruling, delta)
}

func TestScanContentItemMissingRowIsNotFound(t *testing.T) {
	log := testutil.Logger(t)
	svc := NewService(Deps{
		Log:          log,
		Gateway:      &replayGateway{},
		ContentItems: absentContentItems{},
	})

	res, err := svc.ScanContentItem(context.Background(), uuid.New())
	if res != nil {
		t.Fatalf("missing item returned a result: %+v", res)
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing item error = %v, want apperr.ErrNotFound", err)
	}
}

func TestScanContentItemUnknownIDNotFound(t *testing.T) {
	fx := newScanFixture(t, &replayGateway{}, nil)

	_, err := fx.svc.ScanContentItem(context.Background(), uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown id error = %v, want apperr.ErrNotFound", err)
	}
}

func TestScanContentItemAutoCloseLinksSettingsAudit(t *testing.T) {
	gw := &replayGateway{}
	fx := newScanFixture(t, gw, nil)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: fx.tx}
	graph := seedScanGraph(t, dbc)

	threshold := 80.0
	_, entry, err := fx.bypass.UpdateSettings(ctx, graph.org.ID, services.UpdateSettingsInput{
		ThresholdPercent:   &threshold,
		AutoCloseCompliant: true,
		Actor:              "reviewer",
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	gw.script = []*openai.InvokeResult{
		{Text: `{"mentions":[` + captionMentionJSON(graph.product.ID, 0.9) + `]}`},
		{Text: findingJSON(graph.rule.ID, domain.RulingCompliant, 0.02)},
	}

	res, err := fx.svc.ScanContentItem(ctx, graph.item.ID)
	if err != nil {
		t.Fatalf("ScanContentItem: %v", err)
	}
	if res.Mentions != 1 || res.FlagsCreated != 1 || res.AutoClosed != 1 || res.FailedPersists != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	repoCtx := dbctx.Context{Ctx: ctx}
	closed, err := fx.flags.GetByStatus(repoCtx, graph.org.ID, domain.FlagStatusClosed)
	if err != nil || len(closed) != 1 {
		t.Fatalf("closed flags: %v (%d rows)", err, len(closed))
	}
	if closed[0].ResolutionMethod == nil || *closed[0].ResolutionMethod != domain.ResolutionAIAutoClose {
		t.Fatalf("flag resolution method = %v, want ai_auto_close", closed[0].ResolutionMethod)
	}

	linked, err := fx.audit.ListByTriggeringEventLogID(repoCtx, entry.ID)
	if err != nil {
		t.Fatalf("ListByTriggeringEventLogID: %v", err)
	}
	if len(linked) != 1 || linked[0].Action != domain.AuditFlagAutoClosed {
		t.Fatalf("audit entries linked to settings change = %+v, want one flag.auto_closed", linked)
	}
	if linked[0].OrganizationID != graph.org.ID {
		t.Fatalf("linked audit entry org = %s, want %s", linked[0].OrganizationID, graph.org.ID)
	}
}

func TestScanContentItemPersistFailureKeepsSiblings(t *testing.T) {
	gw := &replayGateway{}
	fx := newScanFixture(t, gw, func(repo compliance.FlagRepo) compliance.FlagRepo {
		return &failFirstCreateFlags{FlagRepo: repo}
	})
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: fx.tx}
	graph := seedScanGraph(t, dbc)

	gw.script = []*openai.InvokeResult{
		{Text: `{"mentions":[` +
			captionMentionJSON(graph.product.ID, 0.9) + `,` +
			captionMentionJSON(graph.product.ID, 0.85) + `]}`},
		{Text: findingJSON(graph.rule.ID, domain.RulingViolation, 0)},
		{Text: findingJSON(graph.rule.ID, domain.RulingViolation, 0)},
	}

	res, err := fx.svc.ScanContentItem(ctx, graph.item.ID)
	if err != nil {
		t.Fatalf("ScanContentItem: %v", err)
	}
	if res.Mentions != 2 || res.Violations != 2 {
		t.Fatalf("unexpected evaluation counts: %+v", res)
	}
	if res.FlagsCreated != 1 || res.FailedPersists != 1 {
		t.Fatalf("persist containment counts: %+v", res)
	}

	pending, err := fx.flags.GetByStatus(dbctx.Context{Ctx: ctx}, graph.org.ID, domain.FlagStatusPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending flags after partial persist: %v (%d rows)", err, len(pending))
	}
}
