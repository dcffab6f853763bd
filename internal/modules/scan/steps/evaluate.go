package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
	"github.com/vantler/adcomply-backend/internal/platform/openai"
	"github.com/vantler/adcomply-backend/internal/services"
)

// toolConfidenceThreshold is the model-reported confidence below which the
// evaluator offers the librarian lookup.
const toolConfidenceThreshold = 0.70

// maxConfidenceDelta bounds the evaluator's adjustment to the extractor's
// baseline confidence.
const maxConfidenceDelta = 0.08

type EvaluateMentionDeps struct {
	Log       *logger.Logger
	Gateway   services.ModelGateway
	Librarian services.Librarian
}

type EvaluateMentionInput struct {
	OrganizationID uuid.UUID
	ContentItemID  uuid.UUID
	Title          string
	Caption        string
	Mention        *domain.ExtractedMention
	// Rules is the applicable set for the mention's product context (or the
	// global set for productless mentions). Findings naming any other rule id
	// are discarded.
	Rules []*domain.Rule
}

type EvaluateMentionOutput struct {
	Proposals []*domain.FlagProposal
}

type evaluateFindingWire struct {
	RuleID          string  `json:"rule_id"`
	Ruling          string  `json:"ruling"`
	ModelConfidence float64 `json:"model_confidence"`
	ConfidenceDelta float64 `json:"confidence_delta"`
	Reasoning       string  `json:"reasoning"`
}

type evaluateWire struct {
	Findings []evaluateFindingWire `json:"findings"`
}

// EvaluateMention judges exactly one mention against its applicable rules.
// When the model reports low confidence it may request prior human review
// examples through the librarian tool; the examples are appended and one
// final request is issued. At most one such round-trip happens per mention.
func EvaluateMention(ctx context.Context, deps EvaluateMentionDeps, in EvaluateMentionInput) (EvaluateMentionOutput, error) {
	out := EvaluateMentionOutput{Proposals: []*domain.FlagProposal{}}
	if deps.Log == nil || deps.Gateway == nil {
		return out, fmt.Errorf("evaluate mention: missing deps")
	}
	if in.Mention == nil {
		return out, fmt.Errorf("evaluate mention: missing mention")
	}
	if len(in.Rules) == 0 {
		return out, nil
	}

	system, user := promptEvaluateMention(in.Mention, in.Rules, in.Title, in.Caption)
	messages := []openai.Message{
		{Role: "system", Parts: []openai.Part{{Type: "text", Text: system}}},
		{Role: "user", Parts: []openai.Part{{Type: "text", Text: user}}},
	}

	var tools []openai.ToolSpec
	if deps.Librarian != nil {
		tools = []openai.ToolSpec{{
			Name:        "lookup_review_examples",
			Description: "Fetch prior human review decisions for a rule, ranked by similarity to a content snippet. Use when your confidence for a candidate ruling is below 0.70.",
			Parameters:  toolLookupReviewExamples(),
		}}
	}

	res, err := deps.Gateway.Invoke(ctx, services.GatewayCall{
		CallType:       "mention_evaluation",
		OrganizationID: &in.OrganizationID,
		ContentItemID:  &in.ContentItemID,
		Priority:       2,
		Request: openai.InvokeRequest{
			Messages:   messages,
			Tools:      tools,
			SchemaName: "evaluate_mention",
			Schema:     schemaEvaluateMention(),
		},
	})
	if err != nil {
		return out, err
	}

	if len(res.FunctionCalls) > 0 && deps.Librarian != nil {
		examples := deps.serveLibrarianCalls(ctx, in, res.FunctionCalls)
		messages = append(messages, openai.Message{
			Role:  "user",
			Parts: []openai.Part{{Type: "text", Text: examples + "\n\nFinalize your evaluation now. Return ONLY JSON matching the schema."}},
		})
		res, err = deps.Gateway.Invoke(ctx, services.GatewayCall{
			CallType:       "mention_evaluation_final",
			OrganizationID: &in.OrganizationID,
			ContentItemID:  &in.ContentItemID,
			Priority:       2,
			Request: openai.InvokeRequest{
				Messages:   messages,
				SchemaName: "evaluate_mention",
				Schema:     schemaEvaluateMention(),
			},
		})
		if err != nil {
			return out, err
		}
	}

	var wire evaluateWire
	if uErr := json.Unmarshal([]byte(res.Text), &wire); uErr != nil {
		deps.Log.Warn("Unparsable evaluation output, treating as zero findings",
			"content_item_id", in.ContentItemID, "error", uErr)
		return out, nil
	}

	ruleByID := map[uuid.UUID]*domain.Rule{}
	for _, r := range in.Rules {
		ruleByID[r.ID] = r
	}
	baseline := in.Mention.BaselineConfidence()
	for _, f := range wire.Findings {
		id, parseErr := uuid.Parse(strings.TrimSpace(f.RuleID))
		rule := ruleByID[id]
		if parseErr != nil || rule == nil {
			// Trusting a fabricated rule id would break version pinning.
			deps.Log.Warn("Evaluation finding names rule outside applicable set, discarding",
				"content_item_id", in.ContentItemID, "rule_id", f.RuleID)
			continue
		}
		if f.Ruling != domain.RulingCompliant && f.Ruling != domain.RulingViolation {
			deps.Log.Warn("Evaluation finding carries unknown ruling, discarding",
				"content_item_id", in.ContentItemID, "rule_id", f.RuleID, "ruling", f.Ruling)
			continue
		}
		out.Proposals = append(out.Proposals, &domain.FlagProposal{
			RuleID:      rule.ID,
			RuleVersion: rule.Version,
			RuleScope:   rule.Scope,
			Ruling:      f.Ruling,
			Confidence:  adjustConfidence(baseline, f.ConfidenceDelta),
			Reasoning:   f.Reasoning,
		})
	}
	return out, nil
}

// serveLibrarianCalls answers every lookup in the single allowed round-trip
// and renders the results as one text block.
func (deps EvaluateMentionDeps) serveLibrarianCalls(ctx context.Context, in EvaluateMentionInput, calls []openai.FunctionCall) string {
	var b strings.Builder
	b.WriteString("Prior human review decisions:\n")
	served := 0
	for _, call := range calls {
		if call.Name != "lookup_review_examples" {
			deps.Log.Warn("Model requested unknown tool, ignoring",
				"content_item_id", in.ContentItemID, "tool", call.Name)
			continue
		}
		ruleIDRaw, _ := call.Arguments["rule_id"].(string)
		snippet, _ := call.Arguments["snippet"].(string)
		ruleID, err := uuid.Parse(strings.TrimSpace(ruleIDRaw))
		if err != nil {
			deps.Log.Warn("Tool call names unparsable rule id, ignoring",
				"content_item_id", in.ContentItemID, "rule_id", ruleIDRaw)
			continue
		}
		if snippet == "" {
			snippet = in.Mention.SourceText
		}
		examples, err := deps.Librarian.Lookup(ctx, in.OrganizationID, ruleID, snippet)
		if err != nil {
			deps.Log.Warn("Librarian lookup failed, continuing without examples",
				"content_item_id", in.ContentItemID, "rule_id", ruleID, "error", err)
			continue
		}
		b.WriteString("\nRule " + ruleID.String() + ":\n")
		if len(examples) == 0 {
			b.WriteString("  (no prior decisions recorded)\n")
		}
		for _, ex := range examples {
			b.WriteString("  - verdict: " + ex.HumanVerdict + "\n")
			b.WriteString("    snippet: " + ex.ContentSnippet + "\n")
			if ex.ReviewerNotes != "" {
				b.WriteString("    notes: " + ex.ReviewerNotes + "\n")
			}
		}
		served++
	}
	if served == 0 {
		b.WriteString("  (no lookups could be served)\n")
	}
	return b.String()
}

// adjustConfidence applies the evaluator's bounded delta to the extractor
// baseline and clamps into [0,1].
func adjustConfidence(baseline, delta float64) float64 {
	if delta > maxConfidenceDelta {
		delta = maxConfidenceDelta
	}
	if delta < -maxConfidenceDelta {
		delta = -maxConfidenceDelta
	}
	c := baseline + delta
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
