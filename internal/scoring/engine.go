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

// Package scoring owns the weighting and threshold policy that folds
// per-signal sub-scores into a bounded total and ordinal risk level. The
// engine is pure and idempotent: identical inputs always produce identical
// output, and it never blocks on a missing sub-score.
package scoring

import (
	"math"

	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/models"
)

// Inputs are the sub-scores to aggregate. Header/Text/Metadata are pointers
// so a missing signal (nil) is distinguishable from a zero score; missing
// signals aggregate as zero and mark the result incomplete.
type Inputs struct {
	Header      *int
	Text        *int
	Metadata    *int
	Attachments []int
	URLs        []int
}

// Result is the engine's verdict over one email's sub-scores.
type Result struct {
	Scores     models.ScoreSet
	RiskLevel  models.RiskLevel
	Flagged    bool
	Incomplete bool
}

// Engine applies the configured weight and threshold policy.
type Engine struct {
	weights    config.Weights
	thresholds config.Thresholds
}

// New creates an aggregation engine.
func New(w config.Weights, t config.Thresholds) *Engine {
	return &Engine{weights: w, thresholds: t}
}

// Aggregate combines sub-scores into the total and risk level. Attachment
// and URL scores fold by maximum — one malicious attachment or URL already
// justifies escalation — scaled by their contribution weights.
func (e *Engine) Aggregate(in Inputs) Result {
	var res Result

	header, ok := orZero(in.Header)
	res.Incomplete = res.Incomplete || !ok
	text, ok := orZero(in.Text)
	res.Incomplete = res.Incomplete || !ok
	metadata, ok := orZero(in.Metadata)
	res.Incomplete = res.Incomplete || !ok

	worstAttachment := maxOf(in.Attachments)
	worstURL := maxOf(in.URLs)

	attContribution := int(math.Round(e.weights.AttachmentContribution * float64(worstAttachment)))
	urlContribution := int(math.Round(e.weights.URLContribution * float64(worstURL)))

	res.Scores = models.ScoreSet{
		Header:      header,
		Text:        text,
		Metadata:    metadata,
		Attachments: worstAttachment,
		URLs:        worstURL,
		Total:       Clamp(header + text + metadata + attContribution + urlContribution),
	}
	res.RiskLevel = e.Level(res.Scores.Total)
	res.Flagged = res.RiskLevel.AtLeast(e.thresholds.FlagLevel)

	return res
}

// Level maps a clamped total onto the canonical four-level table.
func (e *Engine) Level(total int) models.RiskLevel {
	return LevelFor(total, e.thresholds)
}

// LevelFor maps a score onto the ordinal risk ladder for the given
// thresholds.
func LevelFor(score int, t config.Thresholds) models.RiskLevel {
	switch {
	case score < t.Medium:
		return models.RiskLow
	case score < t.High:
		return models.RiskMedium
	case score < t.Critical:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}

// Clamp bounds a score to [0,100].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func orZero(v *int) (int, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func maxOf(scores []int) int {
	max := 0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	return max
}
