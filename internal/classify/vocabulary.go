package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the pattern set a Classifier is built from.
type Vocabulary struct {
	JunkPatterns     []string `yaml:"junk_patterns"`
	HomeworkKeywords []string `yaml:"homework_keywords"`
}

// DefaultVocabulary returns the built-in junk patterns and homework keywords.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		JunkPatterns: []string{
			`/\w+bot@`,           // command addressed to another bot
			`@\w+bot\b`,          // bot mention
			`https?://`,
			`\bwww\.`,
			`\bt\.me/`,
			`free\s+proxy`,
			`\bvpn\b`,
			`\bproxy\b`,
			`\bpromo`,
			`\bsubscribe\b`,
		},
		HomeworkKeywords: []string{
			"homework", "hw", "assignment", "work", "activity", "task",
			"write", "read", "draw", "page", "complete", "question",
			"exercise", "submit", "copy", "worksheet",
		},
	}
}

// LoadVocabulary reads a YAML vocabulary file. Lists missing from the file
// fall back to the defaults.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("read vocabulary: %w", err)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}

	def := DefaultVocabulary()
	if len(v.JunkPatterns) == 0 {
		v.JunkPatterns = def.JunkPatterns
	}
	if len(v.HomeworkKeywords) == 0 {
		v.HomeworkKeywords = def.HomeworkKeywords
	}
	return v, nil
}

// FromFile builds a classifier from path, or the default one when path is empty.
func FromFile(path string) (*Classifier, error) {
	if path == "" {
		return Default(), nil
	}
	v, err := LoadVocabulary(path)
	if err != nil {
		return nil, err
	}
	return New(v)
}
