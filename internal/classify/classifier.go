// Package classify decides whether message text is junk or homework.
// All functions are pure: no I/O, no errors for odd input.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"hwbot/internal/domain"
)

// Classifier matches text against a compiled vocabulary.
type Classifier struct {
	junk     []*regexp.Regexp
	homework *regexp.Regexp // nil when the keyword list is empty
}

// New compiles a classifier. Junk patterns are regular expressions matched
// case-insensitively; homework keywords are matched as whole words.
func New(v Vocabulary) (*Classifier, error) {
	c := &Classifier{}
	for _, p := range v.JunkPatterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid junk pattern %q: %w", p, err)
		}
		c.junk = append(c.junk, re)
	}

	var words []string
	for _, kw := range v.HomeworkKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		words = append(words, regexp.QuoteMeta(kw))
	}
	if len(words) > 0 {
		c.homework = regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
	}
	return c, nil
}

// IsJunk reports whether text matches any junk pattern. Empty text is never junk.
func (c *Classifier) IsJunk(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range c.junk {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// IsHomework reports whether text contains a whole-word homework keyword.
func (c *Classifier) IsHomework(text string) bool {
	if text == "" || c.homework == nil {
		return false
	}
	return c.homework.MatchString(text)
}

// Classify checks junk on the literal text and homework on the candidate
// text. Junk short-circuits: a junk message is never reported as homework.
func (c *Classifier) Classify(literal, candidate string) domain.ClassificationResult {
	if c.IsJunk(literal) {
		return domain.ClassificationResult{IsJunk: true}
	}
	if !c.IsHomework(candidate) {
		return domain.ClassificationResult{}
	}
	return domain.ClassificationResult{IsHomework: true, MatchedText: candidate}
}

var defaultClassifier = mustDefault()

func mustDefault() *Classifier {
	c, err := New(DefaultVocabulary())
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the classifier built from DefaultVocabulary.
func Default() *Classifier { return defaultClassifier }

// IsJunk checks text against the default vocabulary.
func IsJunk(text string) bool { return defaultClassifier.IsJunk(text) }

// IsHomework checks text against the default vocabulary.
func IsHomework(text string) bool { return defaultClassifier.IsHomework(text) }
