package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultRefusalPatterns match the stock phrasing of safety refusals.
var DefaultRefusalPatterns = []string{
	`(?i)\bI'?m sorry,? but I (can'?t|cannot|won'?t)\b`,
	`(?i)\bI (cannot|can'?t) (help|assist|comply|continue|engage)\b`,
	`(?i)\bI'?m (not able|unable) to (help|assist|comply|continue|engage)\b`,
	`(?i)\bI won'?t be able to\b`,
	`(?i)\bas an AI( language model)?,? I\b`,
	`(?i)\bI must (decline|refuse)\b`,
}

// RefusalDetector flags responses that are policy-driven non-answers.
type RefusalDetector struct {
	patterns []*regexp.Regexp
}

// NewRefusalDetector compiles patterns. With no patterns only the
// finish-reason and empty-content rules apply.
func NewRefusalDetector(patterns ...string) (*RefusalDetector, error) {
	d := &RefusalDetector{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("agent: refusal pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}
	return d, nil
}

// MustRefusalDetector is NewRefusalDetector for static pattern sets.
func MustRefusalDetector(patterns ...string) *RefusalDetector {
	d, err := NewRefusalDetector(patterns...)
	if err != nil {
		panic(err)
	}
	return d
}

var defaultDetector = MustRefusalDetector(DefaultRefusalPatterns...)

// IsRefusal reports true for a content_filter stop regardless of text, for
// empty content, and for content matching any pattern.
func (d *RefusalDetector) IsRefusal(content, finishReason string) bool {
	if finishReason == FinishContentFilter {
		return true
	}
	if strings.TrimSpace(content) == "" {
		return true
	}
	for _, re := range d.patterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}
