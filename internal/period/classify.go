package period

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"periodbell/internal/model"
)

// Kind is the derived semantic type of a row.
type Kind string

const (
	KindLesson Kind = "lesson"
	KindBreak  Kind = "break"
)

// DefaultBreakKeywords are matched against row titles when no keywords
// are configured.
var DefaultBreakKeywords = []string{"break", "הפסקה"}

var breakIDPattern = regexp.MustCompile(`(?i)^B\d+$`)

// Classifier decides whether a row is a break. A row is a break when
//   - its period id is "B" followed by digits (any case), or
//   - its title contains one of the keywords, compared case-folded.
//
// The result is never cached on the row.
type Classifier struct {
	keywords []string
}

// NewClassifier builds a classifier for the given title keywords. With no
// keywords, DefaultBreakKeywords is used.
func NewClassifier(keywords ...string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultBreakKeywords
	}
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		folded = append(folded, fold(k))
	}
	return &Classifier{keywords: folded}
}

// IsBreak applies the break rules to a (periodID, title) pair.
func (c *Classifier) IsBreak(periodID, title string) bool {
	if breakIDPattern.MatchString(strings.TrimSpace(periodID)) {
		return true
	}
	t := fold(title)
	for _, k := range c.keywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

// Kind classifies a row.
func (c *Classifier) Kind(r model.Row) Kind {
	if c.IsBreak(r.PeriodID, r.Title) {
		return KindBreak
	}
	return KindLesson
}

// fold uses a fresh Caser each call; Casers are not safe to share.
func fold(s string) string {
	return cases.Fold().String(s)
}
