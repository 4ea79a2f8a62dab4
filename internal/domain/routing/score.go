package routing

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxLengthScore      = 11
	maxInstructionScore = 11
	maxToolScore        = 9
)

var (
	actionVerbs = regexp.MustCompile(`(?i)\b(analy[sz]e|compare|design|implement|refactor|debug|optimi[sz]e|evaluate|explain|summari[sz]e|write|build|create|generate|translate|review|plan|research|calculate|prove|derive|convert|migrate)\b`)
	constraints = regexp.MustCompile(`(?i)\b(must|should|exactly|at least|at most|without|only|ensure|requires?|required|constraints?|limit|format|json|table|bullets?)\b`)
	reasoning   = regexp.MustCompile(`(?i)\b(why|step[- ]by[- ]step|reason(ing)?|trade-?offs?|pros and cons|edge cases?|justify|in depth|in-depth|detailed|thorough(ly)?)\b`)
	stepMarkers = regexp.MustCompile(`(?m)^\s*(\d+[.)]|[-*•])\s+`)
	codeSignals = regexp.MustCompile("(?i)(```|`[^`\n]+`|\\b(func|def|class|import|return|const|select|stack ?trace|exception|traceback)\\b|=>|::|\\{|\\})")
	conjunction = regexp.MustCompile(`(?i)\b(and|or|but|also|then|additionally|however|while|whereas)\b`)
)

// instructionBucket scores a regex count against two thresholds.
type instructionBucket struct {
	re        *regexp.Regexp
	low, high int
}

var instructionBuckets = []instructionBucket{
	{re: actionVerbs, low: 2, high: 4},
	{re: constraints, low: 2, high: 4},
	{re: reasoning, low: 1, high: 3},
	{re: stepMarkers, low: 2, high: 4},
	{re: codeSignals, low: 2, high: 5},
	{re: conjunction, low: 3, high: 6},
}

// ScorePrompt computes the complexity of message plus tool usage.
func ScorePrompt(message string, tools ToolSignals) Score {
	s := Score{
		Length:      LengthScore(message),
		Instruction: InstructionScore(message),
		Tool:        ToolScore(tools),
	}
	s.Total = s.Length + s.Instruction + s.Tool
	return s
}

// LengthScore adds one point per crossed size threshold.
func LengthScore(message string) int {
	chars := utf8.RuneCountInString(message)
	words := len(strings.Fields(message))
	newlines := strings.Count(message, "\n")
	questions := strings.Count(message, "?")

	score := 0
	for _, t := range []int{180, 420, 760, 1300} {
		if chars > t {
			score++
		}
	}
	for _, t := range []int{40, 90, 170} {
		if words > t {
			score++
		}
	}
	for _, t := range []int{3, 4, 9} {
		if newlines >= t {
			score++
		}
	}
	if questions >= 2 {
		score++
	}
	return min(score, maxLengthScore)
}

// InstructionScore counts instruction-complexity signals, two thresholds per
// signal family, capped at 11.
func InstructionScore(message string) int {
	score := 0
	for _, b := range instructionBuckets {
		n := len(b.re.FindAllStringIndex(message, -1))
		if n >= b.low {
			score++
		}
		if n >= b.high {
			score++
		}
	}
	return min(score, maxInstructionScore)
}

// ToolScore weights the requested tools. Deep search counts as a web search
// as well.
func ToolScore(tools ToolSignals) int {
	web := tools.WebSearchEnabled || tools.DeepSearchEnabled
	score := 0
	if web {
		score += 2
	}
	if tools.DeepSearchEnabled {
		score += 3
	}
	if web && tools.DeepSearchEnabled {
		score++
	}
	for _, t := range []int{0, 1, 3} {
		if tools.AttachmentCount > t {
			score++
		}
	}
	return min(score, maxToolScore)
}
