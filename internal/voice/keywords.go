package voice

import "strings"

// Classifier decides whether a transcript should go to the agent.
type Classifier struct {
	keywords []string
}

// NewClassifier lowercases and deduplicates the keyword list.
func NewClassifier(keywords []string) *Classifier {
	seen := make(map[string]bool, len(keywords))
	c := &Classifier{}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		c.keywords = append(c.keywords, k)
	}
	return c
}

// IsDomainRequest reports whether any keyword occurs in text, ignoring case.
// Matching is by substring, so "eth" also matches "method".
func (c *Classifier) IsDomainRequest(text string) bool {
	_, ok := c.Match(text)
	return ok
}

// Match returns the first keyword found in text.
func (c *Classifier) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}
