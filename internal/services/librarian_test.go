package services

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/vantler/adcomply-backend/internal/data/repos/testutil"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/openai"
)

type fakeExampleRepo struct {
	examples []*domain.ReviewExample
}

func (f *fakeExampleRepo) Create(dbc dbctx.Context, rows []*domain.ReviewExample) ([]*domain.ReviewExample, error) {
	return rows, nil
}

func (f *fakeExampleRepo) ListByRuleID(dbc dbctx.Context, ruleID uuid.UUID, limit int) ([]*domain.ReviewExample, error) {
	var out []*domain.ReviewExample
	for _, ex := range f.examples {
		if ex.RuleID == ruleID {
			out = append(out, ex)
		}
	}
	return out, nil
}

// embedFailGateway fails every Embed so the librarian must fall back to
// lexical ranking.
type embedFailGateway struct{}

func (g *embedFailGateway) Invoke(ctx context.Context, call GatewayCall) (*openai.InvokeResult, error) {
	return nil, fmt.Errorf("not used")
}
func (g *embedFailGateway) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, fmt.Errorf("embeddings down")
}
func (g *embedFailGateway) DefaultModel() string { return "test" }

func TestLibrarianLexicalFallback(t *testing.T) {
	orgID := uuid.New()
	ruleID := uuid.New()
	relevant := &domain.ReviewExample{
		ID:             uuid.New(),
		OrganizationID: orgID,
		RuleID:         ruleID,
		ContentSnippet: "earn unlimited travel points with zero annual fee",
		HumanVerdict:   "violation",
	}
	offTopic := make([]*domain.ReviewExample, 0, 4)
	for i := 0; i < 4; i++ {
		offTopic = append(offTopic, &domain.ReviewExample{
			ID:             uuid.New(),
			OrganizationID: orgID,
			RuleID:         ruleID,
			ContentSnippet: "completely unrelated cooking recipe content",
			HumanVerdict:   "compliant",
		})
	}

	t.Setenv("LIBRARIAN_TOP_K", "1")
	lib := NewLibrarian(testutil.Logger(t), &fakeExampleRepo{examples: append(offTopic, relevant)}, &embedFailGateway{}, nil)

	got, err := lib.Lookup(context.Background(), orgID, ruleID, "zero annual fee travel points")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d examples, want 1", len(got))
	}
	if got[0].ID != relevant.ID {
		t.Fatalf("lexical fallback ranked off-topic example first")
	}
}

func TestLibrarianFiltersOtherOrgs(t *testing.T) {
	orgID := uuid.New()
	ruleID := uuid.New()
	other := &domain.ReviewExample{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		RuleID:         ruleID,
		ContentSnippet: "foreign org precedent",
		HumanVerdict:   "violation",
	}
	lib := NewLibrarian(testutil.Logger(t), &fakeExampleRepo{examples: []*domain.ReviewExample{other}}, &embedFailGateway{}, nil)

	got, err := lib.Lookup(context.Background(), orgID, ruleID, "anything")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("examples leaked across organizations: %d", len(got))
	}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0}
	c := []float32{0, 1}
	if got := cosine(a, b); math.Abs(got-1) > 1e-9 {
		t.Fatalf("cosine(identical) = %v, want 1", got)
	}
	if got := cosine(a, c); math.Abs(got) > 1e-9 {
		t.Fatalf("cosine(orthogonal) = %v, want 0", got)
	}
	if got := cosine(a, []float32{}); got != 0 {
		t.Fatalf("cosine with mismatched lengths = %v, want 0", got)
	}
}
