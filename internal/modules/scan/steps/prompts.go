package steps

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vantler/adcomply-backend/internal/domain"
)

func promptExtractMentions(item *domain.ContentItem, products []*domain.Product) (system string, user string) {
	system = `You are a recall-oriented extraction pass over marketing content for financial products.
Find EVERY plausible reference to one of the target products or their features: names, fees, rewards, marketing claims, visual appearances of cards or logos.
You do NOT judge compliance. A later stage does that. Prefer to over-report: when in doubt, emit the mention with a mid-range confidence.
Calibrate confidence into the 0.60-0.75 band on average; reserve values near 0 or 1 for unmistakable cases.
Every mention must carry a source_location and the verbatim source_text with surrounding context.
Mentions found in an image or a video frame must carry the media_index of the originating media item and, where determinable, a visual_region from the 3x3 grid (or "full").
When tying a mention to a product required non-trivial inference, explain it in reasoning.
Return ONLY JSON matching the schema.`

	var b strings.Builder
	b.WriteString("Target products:\n")
	for _, p := range products {
		b.WriteString("- id: " + p.ID.String() + "\n")
		b.WriteString("  name: " + p.Name + "\n")
		if p.AnnualFee != "" {
			b.WriteString("  annual_fee: " + p.AnnualFee + "\n")
		}
		if len(p.FeatureBullets) > 0 {
			var bullets []string
			if err := json.Unmarshal(p.FeatureBullets, &bullets); err == nil && len(bullets) > 0 {
				b.WriteString("  features: " + strings.Join(bullets, "; ") + "\n")
			}
		}
	}
	b.WriteString("\nContent platform: " + item.Platform + "\n")
	if item.Title != "" {
		b.WriteString("Title:\n" + item.Title + "\n")
	}
	if item.Caption != "" {
		b.WriteString("Caption:\n" + item.Caption + "\n")
	}
	if item.Transcript != "" {
		b.WriteString("Transcript:\n" + item.Transcript + "\n")
	}
	for _, m := range item.Media {
		b.WriteString(fmt.Sprintf("Media %d: %s\n", m.Position, m.MediaType))
	}
	b.WriteString("\nTask: list every candidate product/feature mention. A mention with no specific product (brand-level or advertiser-wide claim) uses product_id null.")
	user = b.String()
	return system, user
}

func promptEvaluateMention(mention *domain.ExtractedMention, applicable []*domain.Rule, title, caption string) (system string, user string) {
	system = `You are a compliance evaluator for financial marketing content.
You are given exactly ONE extracted mention and the list of rules applicable to its product context.
For each rule the mention plausibly implicates, decide whether the mention as presented is compliant or a violation, citing the rule_id EXACTLY as listed. Never invent rule ids. Rules the mention does not implicate are simply omitted.
Report your own confidence per finding. If your confidence for a candidate ruling is below 0.70, call the lookup_review_examples tool with that rule_id, its version, and the mention text to see prior human decisions before finalizing.
For each finding also report a confidence_delta between -0.08 and 0.08: your adjustment to the extractor's baseline confidence, justified in reasoning.
Return ONLY JSON matching the schema.`

	var b strings.Builder
	b.WriteString("Applicable rules:\n")
	for _, r := range applicable {
		b.WriteString("- rule_id: " + r.ID.String() + "\n")
		b.WriteString("  version: " + r.Version + "\n")
		b.WriteString("  scope: " + r.Scope + "\n")
		b.WriteString("  name: " + r.Name + "\n")
		if r.Description != "" {
			b.WriteString("  description: " + r.Description + "\n")
		}
	}
	b.WriteString("\nContent context:\n")
	if title != "" {
		b.WriteString("Title: " + title + "\n")
	}
	if caption != "" {
		b.WriteString("Caption: " + caption + "\n")
	}
	b.WriteString("\nMention under evaluation:\n")
	b.WriteString("  type: " + mention.MentionType + "\n")
	b.WriteString("  source_location: " + mention.SourceLocation + "\n")
	b.WriteString("  source_text: " + mention.SourceText + "\n")
	if mention.Context != "" {
		b.WriteString("  context: " + mention.Context + "\n")
	}
	if mention.VisualRegion != "" {
		b.WriteString("  visual_region: " + mention.VisualRegion + "\n")
	}
	if mention.TimestampStart != nil && mention.TimestampEnd != nil {
		b.WriteString(fmt.Sprintf("  timestamps: %.1fs-%.1fs\n", *mention.TimestampStart, *mention.TimestampEnd))
	}
	if mention.Reasoning != "" {
		b.WriteString("  extractor_reasoning: " + mention.Reasoning + "\n")
	}
	b.WriteString("\nTask: evaluate this single mention against the applicable rules.")
	user = b.String()
	return system, user
}
