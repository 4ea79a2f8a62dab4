// Package history turns a stored transcript into the message list sent
// upstream. Older turns collapse into one summary message and recent turns
// are compacted to a recency-weighted character budget. The newest message
// is always kept verbatim.
package history

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/conversation"
)

// Defaults used when the caller passes no budget.
const (
	DefaultWindow     = 14
	DefaultSummaryMax = 1800
	MinSummaryChars   = 240
	summaryFloor      = 400
)

// DefaultSystemPrompt is used when the bundle carries none.
const DefaultSystemPrompt = "You are Verdant, an eco-conscious AI assistant. You are knowledgeable, helpful, and thoughtful.\n" +
	"You have a warm, grounded personality inspired by nature and sustainability.\n" +
	"When appropriate, you weave in eco-friendly perspectives without being preachy.\n" +
	"You provide clear, well-structured responses with practical advice.\n" +
	"You are capable of helping with coding, writing, analysis, brainstorming, and any general knowledge questions.\n" +
	"Always be concise yet thorough. Use markdown formatting when it helps clarity.\n"

const summaryHeader = "Conversation summary for earlier turns (compressed for efficiency):\n"

// Roles accepted from the transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one upstream chat message.
type ChatMessage struct {
	Role    string
	Content string
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	signalLine = regexp.MustCompile("(?i)(```|`[^`]+`|^\\s*[-*]\\s+|^\\s*\\d+[.)]\\s+|error|exception|traceback|failed|must|required|todo|fix|bug|[{}\\[\\]();=<>])")
)

// Build returns the upstream messages for stored, starting with the system
// prompt.
func Build(systemPrompt string, stored []conversation.Message, window, summaryMax int) []ChatMessage {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	out := []ChatMessage{{Role: RoleSystem, Content: strings.TrimSpace(systemPrompt)}}

	var msgs []ChatMessage
	for _, m := range stored {
		if validRole(m.Role) && strings.TrimSpace(m.Text) != "" {
			msgs = append(msgs, ChatMessage{Role: m.Role, Content: m.Text})
		}
	}

	window = max(1, window)
	summaryLimit := max(MinSummaryChars, summaryMax)
	p := pressure(window, summaryLimit)
	budget := recentBudget(window, summaryLimit, p)

	if len(msgs) > window {
		older, recent := msgs[:len(msgs)-window], msgs[len(msgs)-window:]
		if summary := buildSummary(older, summaryLimit); summary != "" {
			out = append(out, ChatMessage{Role: RoleSystem, Content: summaryHeader + summary})
		}
		return append(out, compressRecent(recent, budget, p)...)
	}

	bounded := clampInt(budget, max(180, len(msgs)*170), max(2200, len(msgs)*2200))
	return append(out, compressRecent(msgs, bounded, p)...)
}

// EnsureLatestUser appends userMessage unless it is already the last message.
func EnsureLatestUser(msgs []ChatMessage, userMessage string) []ChatMessage {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return msgs
	}
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		if last.Role == RoleUser && strings.TrimSpace(last.Content) == userMessage {
			return msgs
		}
	}
	return append(msgs, ChatMessage{Role: RoleUser, Content: userMessage})
}

func validRole(role string) bool {
	return role == RoleUser || role == RoleAssistant || role == RoleSystem
}

// pressure is 0 at the default budgets and approaches 1 as window and
// summary shrink.
func pressure(window, summaryLimit int) float64 {
	windowDenom := float64(max(DefaultWindow-1, 1))
	summaryDenom := float64(max(DefaultSummaryMax-summaryFloor, 1))
	wp := float64(max(DefaultWindow-window, 0)) / windowDenom
	sp := float64(max(DefaultSummaryMax-summaryLimit, 0)) / summaryDenom
	return math.Min(math.Max(wp*0.6+sp*0.4, 0), 1)
}

func recentBudget(window, summaryLimit int, p float64) int {
	ratio := float64(window) / float64(DefaultWindow)
	budget := round(float64(summaryLimit) * (1.75 + 1.35*ratio))
	if p >= 0.65 {
		budget = round(float64(budget) * 0.84)
	}
	if p >= 0.85 {
		budget = round(float64(budget) * 0.82)
	}
	return clampInt(budget, max(180, window*170), max(2200, window*2200))
}

func selectForSummary(msgs []ChatMessage, maxEntries int) []ChatMessage {
	if len(msgs) <= maxEntries {
		return msgs
	}
	maxEntries = max(1, maxEntries)
	head := min(2, max(1, maxEntries/3))
	tail := max(0, maxEntries-head)
	if tail == 0 {
		return msgs[len(msgs)-maxEntries:]
	}
	out := make([]ChatMessage, 0, head+tail)
	out = append(out, msgs[:head]...)
	return append(out, msgs[len(msgs)-tail:]...)
}

func buildSummary(msgs []ChatMessage, maxChars int) string {
	if len(msgs) == 0 || maxChars <= 0 {
		return ""
	}
	limit := max(140, maxChars)
	selected := selectForSummary(msgs, clampInt(limit/120, 4, 36))
	omitted := len(msgs) - len(selected)
	perMessage := clampInt(limit/max(len(selected)+1, 5), 90, 260)

	var lines []string
	remaining := limit
	if omitted > 0 {
		line := fmt.Sprintf("- [Earlier history compressed: %d turn(s) omitted.]", omitted)
		if n := runeLen(line) + 1; n <= remaining {
			lines = append(lines, line)
			remaining -= n
		}
	}

	for _, m := range selected {
		text := compactMessage(m.Content, perMessage)
		if text == "" {
			continue
		}
		line := "- " + rolePrefix(m.Role) + ": " + text
		if runeLen(line)+1 > remaining {
			line = compactText(line, remaining)
		}
		if line == "" {
			break
		}
		lines = append(lines, line)
		remaining -= runeLen(line) + 1
		if remaining <= 0 {
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func rolePrefix(role string) string {
	switch role {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return "System"
	}
}

func compressRecent(msgs []ChatMessage, total int, p float64) []ChatMessage {
	if len(msgs) == 0 {
		return nil
	}
	maxPer := clampInt(round(2200-1300*p), 480, 2200)
	minPer := clampInt(round(240-110*p), 120, 240)

	pool := msgs
	var tail *ChatMessage
	if last := msgs[len(msgs)-1]; strings.TrimSpace(last.Content) != "" {
		tail = &ChatMessage{Role: last.Role, Content: strings.TrimSpace(last.Content)}
		pool = msgs[:len(msgs)-1]
	}
	tailLen := 0
	if tail != nil {
		tailLen = runeLen(tail.Content)
	}
	if len(pool) == 0 {
		if tail == nil {
			return nil
		}
		return []ChatMessage{*tail}
	}

	n := len(pool)
	effective := clampInt(total, n*minPer+tailLen, n*maxPer+tailLen)
	available := max(effective-tailLen, n*minPer)

	weights := make([]float64, n)
	var sum float64
	for i, m := range pool {
		recency := float64(i) / float64(max(n-1, 1))
		w := 1.0 + 0.9*recency
		switch m.Role {
		case RoleUser:
			w += 0.25
		case RoleSystem:
			w += 0.1
		}
		if i >= n-2 {
			w += 0.2
		}
		weights[i] = w
		sum += w
	}

	out := make([]ChatMessage, 0, n+1)
	for i, m := range pool {
		share := float64(available) * (weights[i] / sum)
		text := compactMessage(m.Content, clampInt(round(share), minPer, maxPer))
		if text != "" {
			out = append(out, ChatMessage{Role: m.Role, Content: text})
		}
	}

	current := tailLen
	for _, m := range out {
		current += runeLen(m.Content)
	}
	overflow := max(current-effective, 0)
	for i := 0; i < len(out) && overflow > 0; i++ {
		length := runeLen(out[i].Content)
		floor := max(90, minPer-40)
		if i >= len(out)-2 {
			floor = minPer
		}
		reducible := max(length-floor, 0)
		if reducible == 0 {
			continue
		}
		reduced := compactMessage(out[i].Content, length-min(reducible, overflow))
		out[i].Content = reduced
		overflow -= length - runeLen(reduced)
	}

	if tail != nil {
		out = append(out, *tail)
	}
	return out
}

// compactMessage keeps edge and signal lines when text is over budget.
func compactMessage(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(text)
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	normalized := strings.Join(lines, "\n")
	if runeLen(normalized) <= maxChars {
		return normalized
	}

	seen := make(map[string]bool, len(lines))
	var selected []string
	for i, l := range lines {
		edge := i == 0 || i == len(lines)-1
		if !edge && !signalLine.MatchString(l) {
			continue
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		selected = append(selected, l)
	}
	if candidate := strings.TrimSpace(strings.Join(selected, "\n")); candidate != "" {
		return compactHeadTail(candidate, maxChars)
	}
	return compactHeadTail(normalized, maxChars)
}

func compactHeadTail(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if runeLen(text) <= maxChars {
		return text
	}
	if maxChars <= 7 {
		return strings.TrimRight(head(text, maxChars), " \t\n")
	}
	headBudget := max(1, int(float64(maxChars)*0.62))
	tailBudget := max(1, maxChars-headBudget-5)
	out := strings.TrimRight(head(text, headBudget), " \t\n") + "\n...\n" + strings.TrimLeft(tail(text, tailBudget), " \t\n")
	if runeLen(out) <= maxChars {
		return out
	}
	return compactText(out, maxChars)
}

// compactText collapses whitespace and ellipsizes to maxChars.
func compactText(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	compact := strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	if runeLen(compact) <= maxChars {
		return compact
	}
	if maxChars <= 2 {
		return strings.TrimRight(head(compact, maxChars), " ")
	}
	return strings.TrimRight(head(compact, maxChars-1), " ") + "…"
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func head(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func tail(s string, n int) string {
	total := runeLen(s)
	if n >= total {
		return s
	}
	skip := total - n
	i := 0
	for pos := range s {
		if i == skip {
			return s[pos:]
		}
		i++
	}
	return ""
}

// round matches the half-to-even rounding the budgets were tuned with.
func round(v float64) int {
	return int(math.RoundToEven(v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
