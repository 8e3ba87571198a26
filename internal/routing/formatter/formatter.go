// Package formatter sizes reply text into wire-format segments and builds
// the canned replies.
package formatter

import (
	"fmt"
	"strings"
)

const (
	// DefaultMaxLength is the single-message limit of the wire format.
	DefaultMaxLength = 1600
	// DefaultMaxSegments caps how many segments one reply may produce.
	DefaultMaxSegments = 10
	// safetyMargin keeps each cut comfortably inside the limit.
	safetyMargin = 10
	// markerAllowance reserves room for the longest continuation marker,
	// "(continued 10/10) ".
	markerAllowance = 20
)

var sentenceEnders = ".!?"

// Formatter splits reply text into ordered wire-sized segments.
type Formatter struct {
	MaxLength   int
	MaxSegments int
}

// NewFormatter creates a Formatter; non-positive values fall back to defaults.
func NewFormatter(maxLength, maxSegments int) *Formatter {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if maxSegments <= 0 {
		maxSegments = DefaultMaxSegments
	}
	return &Formatter{MaxLength: maxLength, MaxSegments: maxSegments}
}

// Format slices reply into at most MaxSegments segments, each within
// MaxLength. Cuts prefer sentence-ending punctuation, then word boundaries,
// then a hard cut for unbroken runs. Segments after the first carry a
// "(continued i/n) " marker; any remainder past the segment cap is truncated
// into the final segment.
func (f *Formatter) Format(reply string) []string {
	if len(reply) <= f.MaxLength {
		return []string{reply}
	}

	firstBudget := f.MaxLength - safetyMargin
	restBudget := f.MaxLength - safetyMargin - markerAllowance

	var slices []string
	remaining := reply
	for len(remaining) > 0 {
		budget := restBudget
		if len(slices) == 0 {
			budget = firstBudget
		}

		if len(slices) == f.MaxSegments-1 {
			// Last allowed segment takes whatever fits; the rest is dropped.
			if len(remaining) > budget {
				remaining = remaining[:budget]
			}
			slices = append(slices, strings.TrimSpace(remaining))
			break
		}

		if len(remaining) <= budget {
			slices = append(slices, strings.TrimSpace(remaining))
			break
		}

		cut := cutPoint(remaining, budget)
		slices = append(slices, strings.TrimSpace(remaining[:cut]))
		remaining = strings.TrimLeft(remaining[cut:], " ")
	}

	if len(slices) == 1 {
		return slices
	}
	n := len(slices)
	segments := make([]string, n)
	segments[0] = slices[0]
	for i := 1; i < n; i++ {
		segments[i] = fmt.Sprintf("(continued %d/%d) %s", i+1, n, slices[i])
	}
	return segments
}

// cutPoint finds where to slice text so the head stays within budget:
// after the last sentence-ending punctuation, else at the last word
// boundary, else a hard cut at the budget.
func cutPoint(text string, budget int) int {
	window := text[:budget]

	if idx := strings.LastIndexAny(window, sentenceEnders); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, " "); idx > 0 {
		return idx
	}
	return budget
}

// Canned replies. Pure functions of identity/phone with fixed copy.

// UnknownUser is the reply for phone numbers with no registered account.
func UnknownUser() string {
	return "Sorry, I don't recognize this number. Please sign up first to start using the assistant."
}

// InactiveUser is the reply for accounts that exist but are deactivated.
func InactiveUser(displayName string) string {
	if displayName == "" {
		return "Your account is currently inactive. Please reactivate it to continue."
	}
	return fmt.Sprintf("Hi %s, your account is currently inactive. Please reactivate it to continue.", displayName)
}

// SpamDetected is the reply for messages flagged by the spam scorer.
func SpamDetected() string {
	return "Your message was flagged as spam and was not processed."
}

// GenericError is the reply for any unexpected processing failure.
func GenericError() string {
	return "Sorry, something went wrong while processing your message. Please try again."
}

// EmptyMessage is the reply for empty or whitespace-only input.
func EmptyMessage() string {
	return "Please provide a valid input."
}
