// Package processor cleans inbound text, scores it for spam and extracts
// leading commands before anything is handed to the responder.
package processor

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

// SpamThreshold is the score above which a message is treated as spam.
const SpamThreshold = 0.7

var whitespaceRe = regexp.MustCompile(`\s+`)

// shorthandExpansions maps common texting shorthand to its long form.
// Matching is case-insensitive on word boundaries.
var shorthandExpansions = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\bu\b`), "you"},
	{regexp.MustCompile(`(?i)\br\b`), "are"},
	{regexp.MustCompile(`(?i)\bur\b`), "your"},
	{regexp.MustCompile(`(?i)\by\b`), "why"},
	{regexp.MustCompile(`(?i)\bpls\b`), "please"},
	{regexp.MustCompile(`(?i)\bplz\b`), "please"},
	{regexp.MustCompile(`(?i)\bthx\b`), "thanks"},
	{regexp.MustCompile(`(?i)\bmsg\b`), "message"},
	{regexp.MustCompile(`(?i)\bb4\b`), "before"},
	{regexp.MustCompile(`(?i)\bgr8\b`), "great"},
	{regexp.MustCompile(`(?i)\bl8r\b`), "later"},
	{regexp.MustCompile(`(?i)\b2day\b`), "today"},
	{regexp.MustCompile(`(?i)\b2morrow\b`), "tomorrow"},
	{regexp.MustCompile(`(?i)\babt\b`), "about"},
	{regexp.MustCompile(`(?i)\bw/`), "with "},
}

// spamSignals are weighted promotional-vocabulary patterns. Each pattern's
// total contribution is capped so one repeated word cannot dominate the score.
var spamSignals = []struct {
	re     *regexp.Regexp
	weight float64
	cap    float64
}{
	{regexp.MustCompile(`(?i)\b(free|winner|won|prize|congratulations)\b`), 0.25, 0.5},
	{regexp.MustCompile(`(?i)\b(click here|act now|limited time|urgent|offer expires)\b`), 0.3, 0.6},
	{regexp.MustCompile(`(?i)\b(cash|loan|credit|investment|guaranteed)\b`), 0.2, 0.4},
	{regexp.MustCompile(`(?i)\b(unsubscribe|opt.?out|reply stop)\b`), 0.15, 0.3},
	{regexp.MustCompile(`(?i)(https?://|bit\.ly|tinyurl)`), 0.2, 0.4},
}

// commandPatterns are tried in order; the first match wins.
var commandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/(\w+)(?:\s+(.*))?$`),
	regexp.MustCompile(`^!(\w+)(?:\s+(.*))?$`),
	regexp.MustCompile(`^(\w+):\s*(.*)$`),
}

// Processor derives a ProcessedMessage from raw inbound text. Pure and
// deterministic; safe for concurrent use.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{logger: logger.With("component", "message_processor")}
}

// Process cleans raw text, scores it for spam and extracts an optional
// leading command, resolving built-in command replies.
func (p *Processor) Process(raw string, ident domain.Identity) domain.ProcessedMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.ProcessedMessage{IsEmpty: true}
	}

	cleaned := whitespaceRe.ReplaceAllString(trimmed, " ")
	for _, exp := range shorthandExpansions {
		cleaned = exp.re.ReplaceAllString(cleaned, exp.replacement)
	}
	cleaned = strings.TrimSpace(whitespaceRe.ReplaceAllString(cleaned, " "))

	score := spamScore(trimmed)
	msg := domain.ProcessedMessage{
		CleanedText: cleaned,
		SpamScore:   score,
		IsSpam:      score > SpamThreshold,
		Content:     cleaned,
	}

	if cmd, ok := extractCommand(cleaned); ok {
		msg.Command = &cmd
		if reply, ok := builtinReply(cmd, ident); ok {
			msg.Content = reply
			msg.BuiltinReply = true
		}
	}

	return msg
}

// spamScore sums weighted signal hits against the raw (pre-expansion) text
// and clamps the result to [0,1].
func spamScore(text string) float64 {
	var score float64

	for _, sig := range spamSignals {
		hits := len(sig.re.FindAllStringIndex(text, -1))
		contribution := float64(hits) * sig.weight
		if contribution > sig.cap {
			contribution = sig.cap
		}
		score += contribution
	}

	var letters, uppers, punct int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
		if unicode.IsPunct(r) || r == '$' {
			punct++
		}
	}
	if letters > 0 && float64(uppers)/float64(letters) > 0.7 {
		score += 0.2
	}
	if total := len([]rune(text)); total > 0 && float64(punct)/float64(total) > 0.3 {
		score += 0.15
	}
	if n := len([]rune(text)); n < 5 || n > 500 {
		score += 0.15
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func extractCommand(text string) (domain.Command, bool) {
	for _, re := range commandPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return domain.Command{
				Name: strings.ToLower(m[1]),
				Args: strings.TrimSpace(m[2]),
			}, true
		}
	}
	return domain.Command{}, false
}

// builtinReply resolves the fixed set of command replies. Unknown commands
// fall through to the responder as ordinary text.
func builtinReply(cmd domain.Command, ident domain.Identity) (string, bool) {
	switch cmd.Name {
	case "help":
		return "Available commands: /help, /status, /info, /clear. Anything else is answered by your assistant.", true
	case "status":
		if ident.IsActive {
			return fmt.Sprintf("Hi %s, your account is active and ready.", ident.DisplayName), true
		}
		return fmt.Sprintf("Hi %s, your account is currently inactive.", ident.DisplayName), true
	case "info":
		return fmt.Sprintf("Account: %s (%s), phone %s.", ident.DisplayName, ident.Email, ident.PhoneNumber), true
	case "clear":
		return "Conversation context cleared.", true
	default:
		return "", false
	}
}
