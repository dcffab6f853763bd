package domain

import "github.com/google/uuid"

// Source locations a mention can originate from.
const (
	SourceTitle       = "title"
	SourceCaption     = "caption"
	SourceTranscript  = "transcript"
	SourceVideoAudio  = "video_audio"
	SourceVideoVisual = "video_visual"
	SourceImageVisual = "image_visual"
)

// Visual regions: a 3x3 grid plus a full-span tag.
const (
	RegionTopLeft      = "top_left"
	RegionTopCenter    = "top_center"
	RegionTopRight     = "top_right"
	RegionMiddleLeft   = "middle_left"
	RegionMiddleCenter = "middle_center"
	RegionMiddleRight  = "middle_right"
	RegionBottomLeft   = "bottom_left"
	RegionBottomCenter = "bottom_center"
	RegionBottomRight  = "bottom_right"
	RegionFull         = "full"
)

// ExtractedMention is a transient candidate product/feature reference found
// by the extraction pass. It is never persisted; evaluation turns mentions
// into flags. A nil ProductID means the mention is advertiser-global.
type ExtractedMention struct {
	ProductID      *uuid.UUID `json:"product_id,omitempty"`
	MentionType    string     `json:"mention_type"`
	SourceText     string     `json:"source_text"`
	Context        string     `json:"context"`
	SourceLocation string     `json:"source_location"`
	// MediaIndex is the position of the originating media item for visual
	// sources, carried structurally through the pipeline instead of being
	// re-derived from prose.
	MediaIndex     *int       `json:"media_index,omitempty"`
	MediaID        *uuid.UUID `json:"media_id,omitempty"`
	TimestampStart *float64   `json:"timestamp_start,omitempty"`
	TimestampEnd   *float64   `json:"timestamp_end,omitempty"`
	VisualRegion   string     `json:"visual_region,omitempty"`
	Confidence     *float64   `json:"confidence,omitempty"`
	Reasoning      string     `json:"reasoning,omitempty"`
}

// BaselineConfidence returns the extractor confidence, defaulting into the
// middle of the calibration band when the extractor omitted one.
func (m *ExtractedMention) BaselineConfidence() float64 {
	if m == nil || m.Confidence == nil {
		return 0.65
	}
	c := *m.Confidence
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
