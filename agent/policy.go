package agent

import (
	"regexp"
	"strings"
)

// PhraseMatch selects how OffTopicPolicy phrases are found in a reply.
type PhraseMatch string

const (
	// MatchWord matches phrases as whole words, ignoring case, so "story"
	// does not hit "history". It is the default.
	MatchWord PhraseMatch = "word"
	// MatchSubstring matches phrases anywhere in the text, case-sensitively,
	// so "story" also hits "storytelling" and "history".
	MatchSubstring PhraseMatch = "substring"
)

// OffTopicPolicy decides whether a stage reply wanders from the goal. A reply
// is off-topic when it has more than MaxWords whitespace separated words or
// contains one of Phrases according to Match.
type OffTopicPolicy struct {
	MaxWords int         `yaml:"max_words" json:"max_words"`
	Phrases  []string    `yaml:"phrases" json:"phrases"`
	Match    PhraseMatch `yaml:"match" json:"match,omitempty"`
}

// DefaultOffTopicPolicy is the strict review policy: 150 words and no
// speculation or storytelling.
func DefaultOffTopicPolicy() OffTopicPolicy {
	return OffTopicPolicy{MaxWords: 150, Phrases: []string{"maybe", "story", "imagine"}}
}

// LenientOffTopicPolicy allows longer replies of up to 250 words.
func LenientOffTopicPolicy() OffTopicPolicy {
	p := DefaultOffTopicPolicy()
	p.MaxWords = 250
	return p
}

// Matcher compiles the policy into a reusable checker.
func (p OffTopicPolicy) Matcher() *OffTopicMatcher {
	m := &OffTopicMatcher{maxWords: p.MaxWords}

	quoted := make([]string, 0, len(p.Phrases))
	for _, phrase := range p.Phrases {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(phrase))
	}
	if len(quoted) == 0 {
		return m
	}
	if p.Match == MatchSubstring {
		m.phrases = regexp.MustCompile(strings.Join(quoted, "|"))
	} else {
		m.phrases = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return m
}

// IsOffTopic is a convenience for one-off checks.
func (p OffTopicPolicy) IsOffTopic(text string) bool { return p.Matcher().IsOffTopic(text) }

// OffTopicMatcher is a compiled OffTopicPolicy. Safe for concurrent use.
type OffTopicMatcher struct {
	maxWords int
	phrases  *regexp.Regexp
}

// IsOffTopic reports whether text violates the policy. A non-positive word
// limit disables the length check.
func (m *OffTopicMatcher) IsOffTopic(text string) bool {
	if m.maxWords > 0 && len(strings.Fields(text)) > m.maxWords {
		return true
	}
	return m.phrases != nil && m.phrases.MatchString(text)
}
