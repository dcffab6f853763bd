package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vantler/adcomply-backend/internal/clients/gcp"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
	"github.com/vantler/adcomply-backend/internal/platform/openai"
	"github.com/vantler/adcomply-backend/internal/services"
)

type ExtractMentionsDeps struct {
	Log     *logger.Logger
	Gateway services.ModelGateway
	// Media is optional; without it image media are described textually only.
	Media gcp.MediaStore
}

type ExtractMentionsInput struct {
	Item     *domain.ContentItem
	Products []*domain.Product
}

type ExtractMentionsOutput struct {
	Mentions []*domain.ExtractedMention
}

type extractedMentionWire struct {
	ProductID      *string  `json:"product_id"`
	MentionType    string   `json:"mention_type"`
	SourceText     string   `json:"source_text"`
	Context        string   `json:"context"`
	SourceLocation string   `json:"source_location"`
	MediaIndex     *int     `json:"media_index"`
	TimestampStart *float64 `json:"timestamp_start"`
	TimestampEnd   *float64 `json:"timestamp_end"`
	VisualRegion   *string  `json:"visual_region"`
	Confidence     *float64 `json:"confidence"`
	Reasoning      *string  `json:"reasoning"`
}

type extractWire struct {
	Mentions []extractedMentionWire `json:"mentions"`
}

// ExtractMentions runs the recall pass over one content item. A response the
// model returns malformed yields an empty mention list, never an error:
// downstream evaluation simply sees zero candidates.
func ExtractMentions(ctx context.Context, deps ExtractMentionsDeps, in ExtractMentionsInput) (ExtractMentionsOutput, error) {
	out := ExtractMentionsOutput{Mentions: []*domain.ExtractedMention{}}
	if deps.Log == nil || deps.Gateway == nil {
		return out, fmt.Errorf("extract mentions: missing deps")
	}
	if in.Item == nil {
		return out, fmt.Errorf("extract mentions: missing content item")
	}

	system, user := promptExtractMentions(in.Item, in.Products)
	parts := []openai.Part{{Type: "text", Text: user}}
	for _, m := range in.Item.Media {
		if m.MediaType != domain.MediaTypeImage || deps.Media == nil {
			continue
		}
		url, err := deps.Media.ImageURL(ctx, m.Location)
		if err != nil {
			deps.Log.Warn("Skipping unfetchable media for extraction",
				"content_item_id", in.Item.ID, "media_id", m.ID, "error", err)
			continue
		}
		parts = append(parts,
			openai.Part{Type: "text", Text: fmt.Sprintf("Media %d (image):", m.Position)},
			openai.Part{Type: "image", ImageURL: url},
		)
	}

	res, err := deps.Gateway.Invoke(ctx, services.GatewayCall{
		CallType:       "mention_extraction",
		OrganizationID: &in.Item.OrganizationID,
		ContentItemID:  &in.Item.ID,
		Priority:       1,
		Request: openai.InvokeRequest{
			Messages: []openai.Message{
				{Role: "system", Parts: []openai.Part{{Type: "text", Text: system}}},
				{Role: "user", Parts: parts},
			},
			SchemaName: "extract_mentions",
			Schema:     schemaExtractMentions(),
		},
	})
	if err != nil {
		return out, err
	}

	var wire extractWire
	if uErr := json.Unmarshal([]byte(res.Text), &wire); uErr != nil {
		deps.Log.Warn("Unparsable extraction output, treating as zero mentions",
			"content_item_id", in.Item.ID, "error", uErr)
		return out, nil
	}

	known := map[uuid.UUID]bool{}
	for _, p := range in.Products {
		known[p.ID] = true
	}
	mediaByPosition := map[int]uuid.UUID{}
	for _, m := range in.Item.Media {
		mediaByPosition[m.Position] = m.ID
	}

	for _, w := range wire.Mentions {
		m, ok := normalizeMention(deps.Log, in.Item.ID, w, known, mediaByPosition)
		if ok {
			out.Mentions = append(out.Mentions, m)
		}
	}
	deps.Log.Info("Extraction complete",
		"content_item_id", in.Item.ID,
		"raw_mentions", len(wire.Mentions),
		"kept_mentions", len(out.Mentions),
	)
	return out, nil
}

var validSourceLocations = map[string]bool{
	domain.SourceTitle:       true,
	domain.SourceCaption:     true,
	domain.SourceTranscript:  true,
	domain.SourceVideoAudio:  true,
	domain.SourceVideoVisual: true,
	domain.SourceImageVisual: true,
}

// normalizeMention converts one wire record into a validated mention, or
// rejects it with a logged reason.
func normalizeMention(log *logger.Logger, itemID uuid.UUID, w extractedMentionWire, knownProducts map[uuid.UUID]bool, mediaByPosition map[int]uuid.UUID) (*domain.ExtractedMention, bool) {
	if w.SourceText == "" || !validSourceLocations[w.SourceLocation] {
		log.Warn("Dropping malformed mention",
			"content_item_id", itemID, "source_location", w.SourceLocation)
		return nil, false
	}

	m := &domain.ExtractedMention{
		MentionType:    w.MentionType,
		SourceText:     w.SourceText,
		Context:        w.Context,
		SourceLocation: w.SourceLocation,
		TimestampStart: w.TimestampStart,
		TimestampEnd:   w.TimestampEnd,
		Confidence:     w.Confidence,
	}
	if w.VisualRegion != nil {
		m.VisualRegion = *w.VisualRegion
	}
	if w.Reasoning != nil {
		m.Reasoning = *w.Reasoning
	}

	if w.ProductID != nil && *w.ProductID != "" {
		id, err := uuid.Parse(*w.ProductID)
		if err != nil || !knownProducts[id] {
			// Unknown product association: keep the mention but demote it to
			// advertiser-global rather than trusting a fabricated id.
			log.Warn("Mention names unknown product, demoting to global",
				"content_item_id", itemID, "product_id", *w.ProductID)
		} else {
			m.ProductID = &id
		}
	}

	if w.MediaIndex != nil {
		idx := *w.MediaIndex
		mediaID, ok := mediaByPosition[idx]
		if !ok {
			log.Warn("Mention references unknown media index, dropping media link",
				"content_item_id", itemID, "media_index", idx)
		} else {
			m.MediaIndex = &idx
			m.MediaID = &mediaID
		}
	}
	if (m.SourceLocation == domain.SourceImageVisual || m.SourceLocation == domain.SourceVideoVisual) && m.MediaID == nil {
		log.Warn("Dropping visual mention without resolvable media reference",
			"content_item_id", itemID, "source_location", m.SourceLocation)
		return nil, false
	}
	return m, true
}
