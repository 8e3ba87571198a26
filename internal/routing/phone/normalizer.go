// Package phone canonicalizes raw phone strings into a single
// international representation.
package phone

import (
	"strings"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

// Normalizer rewrites raw phone strings into the canonical "+<digits>" form.
// It is pure: no I/O and a single failure mode, domain.ErrInvalidPhoneFormat.
type Normalizer struct {
	// DefaultCountryCode is the country calling code (digits only, e.g. "1")
	// assumed for national-format numbers.
	DefaultCountryCode string
}

// NewNormalizer creates a Normalizer; an empty countryCode defaults to "1".
func NewNormalizer(countryCode string) *Normalizer {
	if countryCode == "" {
		countryCode = "1"
	}
	return &Normalizer{DefaultCountryCode: countryCode}
}

// Normalize canonicalizes raw into international format. The result is
// stable: normalizing an already-normalized number returns it unchanged.
func (n *Normalizer) Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	stripped := b.String()
	if stripped == "" {
		return "", domain.ErrInvalidPhoneFormat
	}

	// Collapse any number of '+' signs into a single leading one.
	hadPlus := strings.Contains(stripped, "+")
	digits := strings.ReplaceAll(stripped, "+", "")
	if hadPlus {
		stripped = "+" + digits
	}

	switch {
	case hadPlus:
		if len(stripped) >= 8 && len(stripped) <= 16 {
			return stripped, nil
		}
		return "", domain.ErrInvalidPhoneFormat
	case len(digits) == 10:
		return "+" + n.DefaultCountryCode + digits, nil
	case len(digits) == 11 && strings.HasPrefix(digits, n.DefaultCountryCode):
		return "+" + digits, nil
	default:
		return "", domain.ErrInvalidPhoneFormat
	}
}
