// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package content runs lexical phishing heuristics over subject and body.
// All detectors are deterministic and cannot fail.
package content

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/bcem/analysis/internal/config"
)

// Keyword groups. Each group is a boolean detector: any hit contributes its
// weight exactly once.
var (
	urgencyWords = []string{
		"urgent", "immediate", "immediately", "alert", "warning",
		"attention", "important", "act now", "expires",
	}
	financialWords = []string{
		"bank", "account", "credit card", "payment", "paypal",
		"transaction", "financial", "money", "invoice",
	}
	credentialWords = []string{
		"click here", "login now", "verify your", "update your",
		"password", "credentials", "social security", "ssn",
	}
	misspellingWords = []string{
		"acount", "verfy", "paypa1", "secuirty", "recieve", "informations",
	}
	subjectWords = []string{"urgent", "alert", "verify"}
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Result carries the text and metadata sub-scores with the detectors that
// fired.
type Result struct {
	Text       int
	Metadata   int
	Indicators []string
}

// Analyzer matches the keyword groups in a single pass per input.
type Analyzer struct {
	weights config.Weights

	bodyMatcher    *ahocorasick.Matcher
	bodyGroups     []group
	subjectMatcher *ahocorasick.Matcher
}

type group struct {
	name   string
	end    int // exclusive upper bound of this group's pattern indices
	weight func(config.Weights) int
}

// New builds the keyword automatons once; Analyze is then allocation-light
// and safe for concurrent use.
func New(w config.Weights) *Analyzer {
	var patterns []string
	var groups []group
	add := func(name string, words []string, weight func(config.Weights) int) {
		patterns = append(patterns, words...)
		groups = append(groups, group{name: name, end: len(patterns), weight: weight})
	}
	add("urgency language", urgencyWords, func(w config.Weights) int { return w.Urgency })
	add("financial terms", financialWords, func(w config.Weights) int { return w.FinancialTerms })
	add("credential request", credentialWords, func(w config.Weights) int { return w.CredentialRequest })
	add("misspelling", misspellingWords, func(w config.Weights) int { return w.Misspelling })

	return &Analyzer{
		weights:        w,
		bodyMatcher:    ahocorasick.NewStringMatcher(patterns),
		bodyGroups:     groups,
		subjectMatcher: ahocorasick.NewStringMatcher(subjectWords),
	}
}

// Analyze strips markup and scores subject+body. The subject feeds the
// metadata score, the combined text feeds the text score.
func (a *Analyzer) Analyze(subject, body string) Result {
	text := strings.ToLower(subject + " " + StripMarkup(body))

	var res Result
	hits := a.bodyMatcher.Match([]byte(text))
	fired := make(map[int]bool, len(a.bodyGroups))
	for _, idx := range hits {
		fired[groupOf(a.bodyGroups, idx)] = true
	}
	for gi, g := range a.bodyGroups {
		if fired[gi] {
			res.Text += g.weight(a.weights)
			res.Indicators = append(res.Indicators, g.name)
		}
	}

	if len(a.subjectMatcher.Match([]byte(strings.ToLower(subject)))) > 0 {
		res.Metadata += a.weights.SubjectKeyword
		res.Indicators = append(res.Indicators, "subject keyword")
	}

	return res
}

// StripMarkup removes HTML tags so keyword matching sees rendered text only.
func StripMarkup(body string) string {
	return tagPattern.ReplaceAllString(body, " ")
}

func groupOf(groups []group, patternIdx int) int {
	for gi, g := range groups {
		if patternIdx < g.end {
			return gi
		}
	}
	return len(groups) - 1
}
