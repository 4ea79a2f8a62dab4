// Package routing picks the model tier for a chat turn from a deterministic
// complexity heuristic. No model or network call is involved.
package routing

import (
	"math"
	"slices"
	"strings"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/cost"
)

// Tier names.
const (
	TierLight   = "light"
	TierTooling = "tooling"
	TierHeavy   = "heavy"
)

// Default knob values used when a setting is missing or not finite.
const (
	DefaultSensitivity = 55
	DefaultCompression = 40
)

// Output token bounds.
const (
	MinOutputTokens = 400
	MaxOutputTokens = 8000
)

// History bounds.
const (
	MinHistoryWindow  = 6
	MaxHistoryWindow  = 24
	MinSummaryChars   = 900
	MaxSummaryChars   = 4200
	deepSearchBias    = 2
	lightWindowDelta  = 2
	lightSummaryDelta = 350
	heavyWindowDelta  = 3
	heavySummaryDelta = 550
)

// ToolSignals describe which tools the turn asked for.
type ToolSignals struct {
	WebSearchEnabled  bool `json:"webSearchEnabled"`
	DeepSearchEnabled bool `json:"deepSearchEnabled"`
	AttachmentCount   int  `json:"attachmentCount"`
}

// Any reports whether any tool signal is present.
func (s ToolSignals) Any() bool {
	return s.WebSearchEnabled || s.DeepSearchEnabled || s.AttachmentCount > 0
}

// Settings are the carbon routing knobs, each an integer in [0,100].
type Settings struct {
	RoutingSensitivity int `json:"routingSensitivity"`
	HistoryCompression int `json:"historyCompression"`
}

// Config carries the tunable defaults of the engine.
type Config struct {
	FallbackLight   string
	FallbackTooling string
	FallbackHeavy   string
	LightTokens     int
	ToolingTokens   int
	HeavyTokens     int
}

// DefaultConfig returns the built-in engine configuration.
func DefaultConfig() Config {
	return Config{
		FallbackLight:   "openai/gpt-5-nano",
		FallbackTooling: "openai/gpt-5-mini",
		FallbackHeavy:   "anthropic/claude-opus-4-5",
		LightTokens:     900,
		ToolingTokens:   1400,
		HeavyTokens:     2600,
	}
}

// TierModels is the model used for each tier.
type TierModels struct {
	Light   string `json:"light"`
	Tooling string `json:"tooling"`
	Heavy   string `json:"heavy"`
}

// List returns the distinct tier models, light first.
func (m TierModels) List() []string {
	out := make([]string, 0, 3)
	for _, name := range []string{m.Light, m.Tooling, m.Heavy} {
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Score is the complexity breakdown of a prompt.
type Score struct {
	Length      int `json:"length"`
	Instruction int `json:"instruction"`
	Tool        int `json:"tool"`
	Total       int `json:"total"`
}

// Decision is the per-turn routing outcome.
type Decision struct {
	Tier               string   `json:"tier"`
	Model              string   `json:"model"`
	HeavyModel         string   `json:"heavyModel"`
	MaxOutputTokens    int      `json:"maxOutputTokens"`
	HistoryWindow      int      `json:"historyWindow"`
	HistorySummaryMax  int      `json:"historySummaryMax"`
	AvailableModels    []string `json:"availableModels"`
	EscalationAllowed  bool     `json:"escalationAllowed"`
	Score              Score    `json:"score"`
	ToolingThreshold   int      `json:"toolingThreshold"`
	HeavyThreshold     int      `json:"heavyThreshold"`
	EffectiveHeavyGate int      `json:"effectiveHeavyGate"`
}

// Input is everything the engine looks at.
type Input struct {
	Message        string
	RequestedModel string
	Tools          ToolSignals
	Settings       Settings
}

// Engine computes routing decisions.
type Engine struct {
	cfg Config
}

// NewEngine returns an engine with cfg; zero token budgets fall back to the
// defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.FallbackLight == "" {
		cfg.FallbackLight = def.FallbackLight
	}
	if cfg.FallbackTooling == "" {
		cfg.FallbackTooling = def.FallbackTooling
	}
	if cfg.FallbackHeavy == "" {
		cfg.FallbackHeavy = def.FallbackHeavy
	}
	if cfg.LightTokens == 0 {
		cfg.LightTokens = def.LightTokens
	}
	if cfg.ToolingTokens == 0 {
		cfg.ToolingTokens = def.ToolingTokens
	}
	if cfg.HeavyTokens == 0 {
		cfg.HeavyTokens = def.HeavyTokens
	}
	return &Engine{cfg: cfg}
}

// Decide routes one turn.
func (e *Engine) Decide(in Input) Decision {
	models := e.PickTierModels(in.RequestedModel)
	sensitivity := ClampSetting(float64(in.Settings.RoutingSensitivity), DefaultSensitivity)
	compression := ClampSetting(float64(in.Settings.HistoryCompression), DefaultCompression)

	score := ScorePrompt(in.Message, in.Tools)
	toolingThreshold := clamp(9-sensitivity/20, 4, 9)
	heavyThreshold := clamp(17-sensitivity/10, 7, 17)
	gate := heavyThreshold
	if in.Tools.DeepSearchEnabled {
		gate -= deepSearchBias
	}

	tier := TierLight
	switch {
	case score.Total >= gate:
		tier = TierHeavy
	case in.Tools.Any() || score.Total >= toolingThreshold:
		tier = TierTooling
	}

	d := Decision{
		Tier:               tier,
		HeavyModel:         models.Heavy,
		AvailableModels:    models.List(),
		Score:              score,
		ToolingThreshold:   toolingThreshold,
		HeavyThreshold:     heavyThreshold,
		EffectiveHeavyGate: gate,
	}
	switch tier {
	case TierHeavy:
		d.Model = models.Heavy
		d.MaxOutputTokens = clamp(e.cfg.HeavyTokens, MinOutputTokens, MaxOutputTokens)
	case TierTooling:
		d.Model = models.Tooling
		d.MaxOutputTokens = clamp(e.cfg.ToolingTokens, MinOutputTokens, MaxOutputTokens)
	default:
		d.Model = models.Light
		d.MaxOutputTokens = clamp(e.cfg.LightTokens, MinOutputTokens, MaxOutputTokens)
	}
	d.HistoryWindow, d.HistorySummaryMax = HistoryBudget(tier, compression)
	d.EscalationAllowed = tier == TierLight && d.HeavyModel != d.Model
	return d
}

// PickTierModels derives the tier models from the requested model's
// provider prefix.
func (e *Engine) PickTierModels(requested string) TierModels {
	requested = strings.TrimSpace(requested)
	provider, _, _ := strings.Cut(strings.ToLower(requested), "/")

	var m TierModels
	switch provider {
	case "anthropic":
		m = TierModels{
			Light:   "anthropic/claude-haiku-4-5-20251001",
			Tooling: "anthropic/claude-sonnet-4-5-20250929",
			Heavy:   "anthropic/claude-opus-4-5",
		}
	case "openai":
		m = TierModels{
			Light:   "openai/gpt-5-nano",
			Tooling: "openai/gpt-5-mini",
			Heavy:   "openai/gpt-5",
		}
	case "google":
		m = TierModels{
			Light:   "google/gemini-2.0-flash",
			Tooling: "google/gemini-2.5-flash",
			Heavy:   "google/gemini-2.5-pro",
		}
	default:
		m = TierModels{
			Light:   e.cfg.FallbackLight,
			Tooling: e.cfg.FallbackTooling,
			Heavy:   e.cfg.FallbackHeavy,
		}
	}
	if cost.Known(requested) {
		m.Heavy = requested
	}
	return m
}

// HistoryBudget returns the history window (messages) and summary budget
// (chars) for tier at the given compression.
func HistoryBudget(tier string, compression int) (window, summary int) {
	compression = clamp(compression, 0, 100)
	window = 24 - roundInt(18*float64(compression)/100)
	summary = 4200 - roundInt(3300*float64(compression)/100)
	switch tier {
	case TierLight:
		window = max(window-lightWindowDelta, MinHistoryWindow)
		summary = max(summary-lightSummaryDelta, MinSummaryChars)
	case TierHeavy:
		window = min(window+heavyWindowDelta, MaxHistoryWindow)
		summary = min(summary+heavySummaryDelta, MaxSummaryChars)
	}
	return window, summary
}

// ClampSetting rounds v into [0,100]; non-finite values yield fallback.
func ClampSetting(v float64, fallback int) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return clamp(fallback, 0, 100)
	}
	return clamp(roundInt(v), 0, 100)
}

func roundInt(v float64) int {
	return int(math.Floor(v + 0.5))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
