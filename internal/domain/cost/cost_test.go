package cost

import (
	"math"
	"testing"
)

func TestCarbonKgKnownModel(t *testing.T) {
	kg, ok := CarbonKg("openai/gpt-5", 1000, 500)
	if !ok {
		t.Fatal("expected known model")
	}
	want := 0.14 * (1.25e-06*1000 + 10.00e-06*500)
	if math.Abs(kg-want) > 1e-12 {
		t.Fatalf("got %v, want %v", kg, want)
	}
	if _, ok := CarbonKg("acme/unknown", 1, 1); ok {
		t.Fatal("unknown model must not be priced")
	}
	if _, ok := CarbonKg("openai/gpt-5", -1, 1); ok {
		t.Fatal("negative counts must be rejected")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("  hello   world\n again "); got != 3 {
		t.Fatalf("got %d", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("got %d", got)
	}
}

func TestComputePrefersProviderUsage(t *testing.T) {
	kg := 0.5
	s := Compute("m", "light", &Usage{PromptTokens: 10, CompletionTokens: 5, CarbonKg: &kg}, "a b", "c")
	if s.Source != SourceProvider || s.TotalTokens != 15 || s.CarbonKg != 0.5 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestComputeEstimatesWithoutUsage(t *testing.T) {
	s := Compute("m", "heavy", nil, "one two three", "four five")
	if s.Source != SourceEstimate || s.PromptTokens != 3 || s.CompletionTokens != 2 || s.TotalTokens != 5 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if math.Abs(s.CarbonKg-5*EstimatedKgPerToken) > 1e-15 {
		t.Fatalf("unexpected carbon %v", s.CarbonKg)
	}
}

func TestComputeProviderUsageWithoutCarbon(t *testing.T) {
	s := Compute("m", "tooling", &Usage{TotalTokens: 100}, "", "")
	if s.Source != SourceProvider || s.CarbonKg != EstimateCarbonKg(100) {
		t.Fatalf("unexpected stats %+v", s)
	}
}
