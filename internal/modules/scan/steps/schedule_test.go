package steps

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vantler/adcomply-backend/internal/data/repos/testutil"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/openai"
	"github.com/vantler/adcomply-backend/internal/services"
)

// concurrencyGateway records the peak number of simultaneous invocations.
type concurrencyGateway struct {
	inFlight int64
	peak     int64
}

func (g *concurrencyGateway) Invoke(ctx context.Context, call services.GatewayCall) (*openai.InvokeResult, error) {
	n := atomic.AddInt64(&g.inFlight, 1)
	for {
		p := atomic.LoadInt64(&g.peak)
		if n <= p || atomic.CompareAndSwapInt64(&g.peak, p, n) {
			break
		}
	}
	time.Sleep(30 * time.Millisecond)
	atomic.AddInt64(&g.inFlight, -1)
	return &openai.InvokeResult{Text: `{"findings":[]}`}, nil
}

func (g *concurrencyGateway) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, fmt.Errorf("not used")
}
func (g *concurrencyGateway) DefaultModel() string { return "test" }

func scheduleMention(productID *uuid.UUID, text string) *domain.ExtractedMention {
	return &domain.ExtractedMention{
		ProductID:      productID,
		MentionType:    "fee_claim",
		SourceText:     text,
		SourceLocation: domain.SourceCaption,
		Confidence:     confPtr(0.7),
	}
}

func TestScheduleEvaluationsBatchBound(t *testing.T) {
	item := &domain.ContentItem{ID: uuid.New(), OrganizationID: uuid.New()}
	gw := &concurrencyGateway{}

	in := ScheduleEvaluationsInput{
		Item:         item,
		ProductRules: map[uuid.UUID][]*domain.Rule{},
		BatchSize:    3,
	}
	for i := 0; i < 7; i++ {
		productID := uuid.New()
		in.ProductRules[productID] = []*domain.Rule{{ID: uuid.New(), Scope: domain.RuleScopeProduct, Version: "1"}}
		in.Mentions = append(in.Mentions, scheduleMention(&productID, fmt.Sprintf("mention %d", i)))
	}

	out, err := ScheduleEvaluations(context.Background(), ScheduleEvaluationsDeps{
		Log:     testutil.Logger(t),
		Gateway: gw,
	}, in)
	if err != nil {
		t.Fatalf("ScheduleEvaluations: %v", err)
	}
	if out.FailedMentions != 0 {
		t.Fatalf("failed mentions = %d, want 0", out.FailedMentions)
	}
	if got := atomic.LoadInt64(&gw.peak); got > 3 {
		t.Fatalf("peak concurrent evaluations = %d, exceeds batch size 3", got)
	}
}

// markedGateway fails any evaluation whose prompt carries the failure marker
// and returns a violation finding for everything else.
type markedGateway struct {
	ruleID uuid.UUID
	marker string
}

func (g *markedGateway) Invoke(ctx context.Context, call services.GatewayCall) (*openai.InvokeResult, error) {
	for _, msg := range call.Request.Messages {
		for _, part := range msg.Parts {
			if strings.Contains(part.Text, g.marker) {
				return nil, fmt.Errorf("model unavailable")
			}
		}
	}
	return &openai.InvokeResult{
		Text: `{"findings":[{"rule_id":"` + g.ruleID.String() + `","ruling":"violation","model_confidence":0.9,"confidence_delta":0.05,"reasoning":"undisclosed fee"}]}`,
	}, nil
}

func (g *markedGateway) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, fmt.Errorf("not used")
}
func (g *markedGateway) DefaultModel() string { return "test" }

func TestScheduleEvaluationsContainsFailures(t *testing.T) {
	item := &domain.ContentItem{ID: uuid.New(), OrganizationID: uuid.New()}
	rule := &domain.Rule{ID: uuid.New(), Scope: domain.RuleScopeProduct, Version: "1"}
	gw := &markedGateway{ruleID: rule.ID, marker: "UNREACHABLE"}

	goodProduct := uuid.New()
	badProduct := uuid.New()
	in := ScheduleEvaluationsInput{
		Item: item,
		ProductRules: map[uuid.UUID][]*domain.Rule{
			goodProduct: {rule},
			badProduct:  {rule},
		},
		Mentions: []*domain.ExtractedMention{
			scheduleMention(&goodProduct, "no annual fee"),
			scheduleMention(&badProduct, "UNREACHABLE claim"),
		},
		BatchSize: 3,
	}

	out, err := ScheduleEvaluations(context.Background(), ScheduleEvaluationsDeps{
		Log:     testutil.Logger(t),
		Gateway: gw,
	}, in)
	if err != nil {
		t.Fatalf("ScheduleEvaluations: %v", err)
	}
	if out.FailedMentions != 1 {
		t.Fatalf("failed mentions = %d, want 1", out.FailedMentions)
	}
	if len(out.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 from the surviving sibling", len(out.Candidates))
	}
	if out.Candidates[0].Proposal.Ruling != domain.RulingViolation || out.Violations != 1 {
		t.Fatalf("violation not counted: %+v", out)
	}
}

func TestScheduleEvaluationsSkipsRulelessProducts(t *testing.T) {
	item := &domain.ContentItem{ID: uuid.New(), OrganizationID: uuid.New()}
	gw := &concurrencyGateway{}

	ruleless := uuid.New()
	out, err := ScheduleEvaluations(context.Background(), ScheduleEvaluationsDeps{
		Log:     testutil.Logger(t),
		Gateway: gw,
	}, ScheduleEvaluationsInput{
		Item:         item,
		ProductRules: map[uuid.UUID][]*domain.Rule{},
		Mentions:     []*domain.ExtractedMention{scheduleMention(&ruleless, "orphan mention")},
	})
	if err != nil {
		t.Fatalf("ScheduleEvaluations: %v", err)
	}
	if len(out.Candidates) != 0 || atomic.LoadInt64(&gw.peak) != 0 {
		t.Fatalf("ruleless product still evaluated")
	}
}
