// Package retry classifies provider send failures and drives the bounded,
// backoff-governed retry lifecycle of failed outbound deliveries.
package retry

import "time"

// Strategy selects how the delay between attempts grows.
type Strategy string

const (
	StrategyImmediate   Strategy = "immediate"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
)

// Policy is one static table entry: how a provider error code may be retried.
// Read-only configuration, never mutated at runtime.
type Policy struct {
	Strategy   Strategy
	MaxRetries int
	BaseDelay  time.Duration
}

// defaultPolicies maps provider error codes to retry policy. Codes absent
// from the table are non-retryable (fail closed).
var defaultPolicies = map[string]Policy{
	// Transient provider-side conditions.
	"30001": {Strategy: StrategyExponential, MaxRetries: 3, BaseDelay: 60 * time.Second}, // queue overflow
	"30003": {Strategy: StrategyExponential, MaxRetries: 3, BaseDelay: 60 * time.Second}, // destination unreachable
	"30005": {Strategy: StrategyExponential, MaxRetries: 3, BaseDelay: 60 * time.Second}, // unknown destination
	"20429": {Strategy: StrategyLinear, MaxRetries: 5, BaseDelay: 30 * time.Second},      // rate limited
	"20500": {Strategy: StrategyExponential, MaxRetries: 3, BaseDelay: 60 * time.Second}, // provider internal error
	"20503": {Strategy: StrategyLinear, MaxRetries: 2, BaseDelay: 120 * time.Second},     // provider unavailable
}

// Permanent failures, listed for documentation; absence from defaultPolicies
// already makes them non-retryable: 21211 (invalid number), 21408 (region
// permission), 21610 (recipient unsubscribed), 30004 (blocked), 30006 (landline).

// Classifier maps provider error codes onto retry policy.
type Classifier struct {
	policies map[string]Policy
}

// NewClassifier creates a Classifier with the default policy table.
func NewClassifier() *Classifier {
	return &Classifier{policies: defaultPolicies}
}

// IsRetryable reports whether code has a retry policy.
func (c *Classifier) IsRetryable(code string) bool {
	_, ok := c.policies[code]
	return ok
}

// Policy returns the policy for code, if any.
func (c *Classifier) Policy(code string) (Policy, bool) {
	p, ok := c.policies[code]
	return p, ok
}

// Delay computes the wait before attempt attemptIndex (zero-based) for code.
// Non-retryable codes get zero; callers must check IsRetryable first.
func (c *Classifier) Delay(code string, attemptIndex int) time.Duration {
	p, ok := c.policies[code]
	if !ok {
		return 0
	}
	if attemptIndex < 0 {
		attemptIndex = 0
	}
	switch p.Strategy {
	case StrategyImmediate:
		return 0
	case StrategyLinear:
		return p.BaseDelay * time.Duration(attemptIndex+1)
	case StrategyExponential:
		return p.BaseDelay * time.Duration(1<<uint(attemptIndex))
	default:
		return 0
	}
}
