package contact

import (
	"errors"
	"fmt"
	"regexp"

	"archmarket.io/internal/obs"
)

type rule struct {
	name string
	re   *regexp.Regexp
}

// Compiled once. Go regexps are RE2 and keep no match state between calls, so
// the rules are safe for concurrent use.
var rules = []rule{
	{"email_or_handle", regexp.MustCompile(`@`)},
	{"phone_number", regexp.MustCompile(`\p{Nd}{7,}`)},
	{"phone_number", regexp.MustCompile(`\p{Nd}(?:[\s().\-+/]*\p{Nd}){6,}`)},
	{"url", regexp.MustCompile(`(?i)https?://`)},
	{"url", regexp.MustCompile(`(?i)\bwww\.`)},
	{"messenger", regexp.MustCompile(`(?i)whats\s*app|telegram|signal|wechat`)},
	{"contact_keyword", regexp.MustCompile(`(?i)e-?mail|phone|contact\s+me`)},
}

var explanations = map[string]string{
	"email_or_handle": "email addresses and social handles are not allowed",
	"phone_number":    "phone numbers are not allowed",
	"url":             "links to external sites are not allowed",
	"messenger":       "references to external messengers are not allowed",
	"contact_keyword": "requests to exchange contact details are not allowed",
}

// ContainsContactInfo reports whether text looks like it carries off-platform contact details.
// It favours recall: false positives are expected.
func ContainsContactInfo(text string) bool {
	_, ok := Rule(text)
	return ok
}

// Rule returns the name of the first matching rule. The matched text is never returned.
func Rule(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, r := range rules {
		if r.re.MatchString(text) {
			return r.name, true
		}
	}
	return "", false
}

// Explain returns a caller-safe sentence for a rule name.
func Explain(ruleName string) string {
	if s, ok := explanations[ruleName]; ok {
		return "Message blocked: " + s + ". Contact details can be shared after an exclusive license is purchased."
	}
	return "Message blocked: contact details can be shared after an exclusive license is purchased."
}

// ErrContentPolicyViolation matches every *PolicyError.
var ErrContentPolicyViolation = errors.New("contact: content policy violation")

// PolicyError names the field and rule that blocked a text. It never carries the text.
type PolicyError struct {
	Field string
	Rule  string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("content policy violation: %s matched rule %s", e.Field, e.Rule)
}

func (e *PolicyError) Is(target error) bool { return target == ErrContentPolicyViolation }

// Explanation is the caller-facing message for the violation.
func (e *PolicyError) Explanation() string { return Explain(e.Rule) }

// Screen returns a *PolicyError when text contains contact information.
func Screen(field, text string) error {
	name, ok := Rule(text)
	if !ok {
		return nil
	}
	obs.ContentPolicyBlocks.WithLabelValues(name).Inc()
	return &PolicyError{Field: field, Rule: name}
}
