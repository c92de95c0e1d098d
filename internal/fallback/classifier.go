// Package fallback produces a degraded, fully local AnalysisResult when the
// remote analysis endpoint cannot be reached.
package fallback

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-content-review/internal/domain"
)

// Category is attached to every offline result.
const Category = "Local Analysis"

// DefaultKeywords is the built-in negative keyword list.
var DefaultKeywords = []string{"horrível", "péssimo", "ruim"}

// Insights explains the degraded mode on every offline result.
var Insights = []string{
	"Analysis performed offline because the analysis service is unreachable.",
	"Results are based on a simple keyword check and may be less accurate.",
	"Run the analysis again once the connection is restored for a full review.",
}

// Classifier is a deterministic keyword matcher. Matching is a
// case-sensitive substring test after NFC normalization, so precomposed and
// decomposed accents compare equal.
type Classifier struct {
	keywords []string
	now      func() time.Time
	newID    func() string
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// WithIDFunc overrides the id suffix generator.
func WithIDFunc(f func() string) Option {
	return func(c *Classifier) { c.newID = f }
}

// New builds a Classifier. Empty keywords are dropped; an empty list falls
// back to DefaultKeywords.
func New(keywords []string, opts ...Option) *Classifier {
	c := &Classifier{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			c.keywords = append(c.keywords, norm.NFC.String(k))
		}
	}
	if len(c.keywords) == 0 {
		for _, k := range DefaultKeywords {
			c.keywords = append(c.keywords, norm.NFC.String(k))
		}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Keywords returns a copy of the normalized keyword list.
func (c *Classifier) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

// Matches reports whether text contains any keyword.
func (c *Classifier) Matches(text string) bool {
	t := norm.NFC.String(text)
	for _, k := range c.keywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

// Classify returns an offline-tagged result for text.
func (c *Classifier) Classify(text string) domain.AnalysisResult {
	return domain.AnalysisResult{
		ID:         domain.OfflinePrefix + c.newID(),
		Text:       domain.TruncateText(text),
		Flagged:    c.Matches(text),
		Categories: []string{Category},
		Insights:   append([]string(nil), Insights...),
		Timestamp:  c.now().UTC(),
	}
}
