package domain

import (
	"testing"

	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func TestRuleThresholdValue(t *testing.T) {
	cases := []struct {
		name      string
		threshold *string
		want      float64
		wantOK    bool
	}{
		{"absent", nil, 0, false},
		{"empty", strPtr(""), 0, false},
		{"valid", strPtr("0.8"), 0.8, true},
		{"zero", strPtr("0"), 0, true},
		{"one", strPtr("1"), 1, true},
		{"unparsable", strPtr("eighty"), 0, false},
		{"negative", strPtr("-0.1"), 0, false},
		{"above one", strPtr("1.5"), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Rule{BypassThreshold: tc.threshold}
			got, ok := r.ThresholdValue()
			if ok != tc.wantOK || got != tc.want {
				t.Fatalf("ThresholdValue() = (%v, %v), want (%v, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestRuleHasThresholdField(t *testing.T) {
	if (&Rule{}).HasThresholdField() {
		t.Fatal("absent threshold reported as set")
	}
	if !(&Rule{BypassThreshold: strPtr("garbage")}).HasThresholdField() {
		t.Fatal("set-but-invalid threshold reported as absent")
	}
}

func TestRuleAppliesToPlatform(t *testing.T) {
	productRule := &Rule{Scope: RuleScopeProduct}
	if !productRule.AppliesToPlatform("TikTok") {
		t.Fatal("product rules must apply on every platform")
	}

	unrestricted := &Rule{Scope: RuleScopeChannel}
	if !unrestricted.AppliesToPlatform("TikTok") {
		t.Fatal("channel rule with no platform list must apply everywhere")
	}

	youtubeOnly := &Rule{
		Scope:               RuleScopeChannel,
		ApplicablePlatforms: datatypes.JSON([]byte(`["YouTube"]`)),
	}
	if youtubeOnly.AppliesToPlatform("TikTok") {
		t.Fatal("YouTube-only rule applied on TikTok")
	}
	if !youtubeOnly.AppliesToPlatform("youtube") {
		t.Fatal("platform match must be case-insensitive")
	}
}

func TestBaselineConfidence(t *testing.T) {
	var m *ExtractedMention
	if got := m.BaselineConfidence(); got != 0.65 {
		t.Fatalf("nil mention baseline = %v, want 0.65", got)
	}
	none := &ExtractedMention{}
	if got := none.BaselineConfidence(); got != 0.65 {
		t.Fatalf("missing confidence baseline = %v, want 0.65", got)
	}
	high := 1.4
	clamped := &ExtractedMention{Confidence: &high}
	if got := clamped.BaselineConfidence(); got != 1 {
		t.Fatalf("confidence above 1 clamped to %v, want 1", got)
	}
}
