package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	redisclient "github.com/vantler/adcomply-backend/internal/clients/redis"
	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/envutil"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

// Librarian serves prior human review decisions to the evaluator's tool
// call. Candidates come from the review_example table scoped to the rule;
// ranking is embedding cosine similarity against the mention text, with a
// lexical-overlap fallback when the embeddings API is unavailable.
type Librarian interface {
	Lookup(ctx context.Context, orgID uuid.UUID, ruleID uuid.UUID, mentionText string) ([]*domain.ReviewExample, error)
}

type librarian struct {
	log      *logger.Logger
	examples compliance.ReviewExampleRepo
	gateway  ModelGateway
	cache    redisclient.EmbeddingCache
	poolSize int
	topK     int
}

func NewLibrarian(baseLog *logger.Logger, examples compliance.ReviewExampleRepo, gateway ModelGateway, cache redisclient.EmbeddingCache) Librarian {
	return &librarian{
		log:      baseLog.With("service", "Librarian"),
		examples: examples,
		gateway:  gateway,
		cache:    cache,
		poolSize: envutil.GetEnvAsInt("LIBRARIAN_POOL_SIZE", 50, baseLog),
		topK:     envutil.GetEnvAsInt("LIBRARIAN_TOP_K", 3, baseLog),
	}
}

func (l *librarian) Lookup(ctx context.Context, orgID uuid.UUID, ruleID uuid.UUID, mentionText string) ([]*domain.ReviewExample, error) {
	candidates, err := l.examples.ListByRuleID(dbctx.Context{Ctx: ctx}, ruleID, l.poolSize)
	if err != nil {
		return nil, err
	}
	filtered := candidates[:0]
	for _, ex := range candidates {
		if ex.OrganizationID == orgID {
			filtered = append(filtered, ex)
		}
	}
	candidates = filtered
	if len(candidates) == 0 {
		return []*domain.ReviewExample{}, nil
	}
	if len(candidates) <= l.topK {
		return candidates, nil
	}

	ranked, err := l.rankByEmbedding(ctx, mentionText, candidates)
	if err != nil {
		l.log.Warn("Embedding ranking unavailable, using lexical fallback",
			"rule_id", ruleID, "error", err)
		ranked = rankByLexicalOverlap(mentionText, candidates)
	}
	return ranked[:l.topK], nil
}

func (l *librarian) rankByEmbedding(ctx context.Context, mentionText string, candidates []*domain.ReviewExample) ([]*domain.ReviewExample, error) {
	vectors := make(map[uuid.UUID][]float32, len(candidates))
	var missing []*domain.ReviewExample
	if l.cache != nil {
		for _, ex := range candidates {
			if vec, ok := l.cache.Get(ctx, ex.ID); ok {
				vectors[ex.ID] = vec
			} else {
				missing = append(missing, ex)
			}
		}
	} else {
		missing = candidates
	}

	inputs := []string{mentionText}
	for _, ex := range missing {
		inputs = append(inputs, ex.ContentSnippet)
	}
	embedded, err := l.gateway.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	query := embedded[0]
	for i, ex := range missing {
		vectors[ex.ID] = embedded[i+1]
		if l.cache != nil {
			l.cache.Put(ctx, ex.ID, embedded[i+1])
		}
	}

	type scored struct {
		ex    *domain.ReviewExample
		score float64
	}
	out := make([]scored, 0, len(candidates))
	for _, ex := range candidates {
		out = append(out, scored{ex: ex, score: cosine(query, vectors[ex.ID])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	ranked := make([]*domain.ReviewExample, len(out))
	for i, s := range out {
		ranked[i] = s.ex
	}
	return ranked, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rankByLexicalOverlap orders candidates by shared lowercase token count
// with the mention text. Crude, but keeps the tool useful when the
// embeddings API is down.
func rankByLexicalOverlap(mentionText string, candidates []*domain.ReviewExample) []*domain.ReviewExample {
	queryTokens := tokenSet(mentionText)
	type scored struct {
		ex    *domain.ReviewExample
		score int
	}
	out := make([]scored, 0, len(candidates))
	for _, ex := range candidates {
		n := 0
		for tok := range tokenSet(ex.ContentSnippet) {
			if _, ok := queryTokens[tok]; ok {
				n++
			}
		}
		out = append(out, scored{ex: ex, score: n})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	ranked := make([]*domain.ReviewExample, len(out))
	for i, s := range out {
		ranked[i] = s.ex
	}
	return ranked
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) >= 3 {
			out[tok] = struct{}{}
		}
	}
	return out
}
