package steps

func schemaExtractMentions() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mentions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"product_id":      map[string]any{"type": []any{"string", "null"}},
						"mention_type":    map[string]any{"type": "string"},
						"source_text":     map[string]any{"type": "string"},
						"context":         map[string]any{"type": "string"},
						"source_location": map[string]any{
							"type": "string",
							"enum": []any{"title", "caption", "transcript", "video_audio", "video_visual", "image_visual"},
						},
						"media_index":     map[string]any{"type": []any{"integer", "null"}},
						"timestamp_start": map[string]any{"type": []any{"number", "null"}},
						"timestamp_end":   map[string]any{"type": []any{"number", "null"}},
						"visual_region": map[string]any{
							"type": []any{"string", "null"},
							"enum": []any{
								"top_left", "top_center", "top_right",
								"middle_left", "middle_center", "middle_right",
								"bottom_left", "bottom_center", "bottom_right",
								"full", nil,
							},
						},
						"confidence": map[string]any{"type": []any{"number", "null"}, "minimum": 0, "maximum": 1},
						"reasoning":  map[string]any{"type": []any{"string", "null"}},
					},
					"required": []any{
						"product_id", "mention_type", "source_text", "context", "source_location",
						"media_index", "timestamp_start", "timestamp_end", "visual_region",
						"confidence", "reasoning",
					},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"mentions"},
		"additionalProperties": false,
	}
}

func schemaEvaluateMention() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"findings": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"rule_id": map[string]any{"type": "string"},
						"ruling": map[string]any{
							"type": "string",
							"enum": []any{"compliant", "violation"},
						},
						"model_confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"confidence_delta": map[string]any{"type": "number", "minimum": -0.08, "maximum": 0.08},
						"reasoning":        map[string]any{"type": "string"},
					},
					"required":             []any{"rule_id", "ruling", "model_confidence", "confidence_delta", "reasoning"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"findings"},
		"additionalProperties": false,
	}
}

func toolLookupReviewExamples() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"rule_id":      map[string]any{"type": "string"},
			"rule_version": map[string]any{"type": "string"},
			"snippet":      map[string]any{"type": "string"},
		},
		"required":             []any{"rule_id", "rule_version", "snippet"},
		"additionalProperties": false,
	}
}
