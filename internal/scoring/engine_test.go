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

package scoring

import (
	"testing"

	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/models"
)

func intPtr(v int) *int { return &v }

// TestAggregate_Weighted verifies the contribution formula: direct sub-scores
// plus 0.4 of the worst attachment and worst URL.
func TestAggregate_Weighted(t *testing.T) {
	e := New(config.DefaultWeights(), config.DefaultThresholds())

	res := e.Aggregate(Inputs{
		Header:      intPtr(10),
		Text:        intPtr(20),
		Metadata:    intPtr(5),
		Attachments: []int{25, 50},
		URLs:        []int{30, 10},
	})

	// 10 + 20 + 5 + round(0.4*50) + round(0.4*30) = 67
	if res.Scores.Total != 67 {
		t.Errorf("total = %d, want 67", res.Scores.Total)
	}
	if res.Scores.Attachments != 50 {
		t.Errorf("attachment sub-score should be the max, got %d", res.Scores.Attachments)
	}
	if res.Scores.URLs != 30 {
		t.Errorf("url sub-score should be the max, got %d", res.Scores.URLs)
	}
	if res.RiskLevel != models.RiskHigh {
		t.Errorf("level = %s, want High", res.RiskLevel)
	}
	if !res.Flagged {
		t.Error("High should flag with default thresholds")
	}
	if res.Incomplete {
		t.Error("all signals present, should not be incomplete")
	}
}

// TestAggregate_Clamped verifies totals never exceed 100 even when the
// raw sum does.
func TestAggregate_Clamped(t *testing.T) {
	e := New(config.DefaultWeights(), config.DefaultThresholds())

	res := e.Aggregate(Inputs{
		Header:      intPtr(60),
		Text:        intPtr(60),
		Metadata:    intPtr(30),
		Attachments: []int{100},
		URLs:        []int{100},
	})
	if res.Scores.Total != 100 {
		t.Errorf("total = %d, want clamped 100", res.Scores.Total)
	}
	if res.RiskLevel != models.RiskCritical {
		t.Errorf("level = %s, want Critical", res.RiskLevel)
	}
}

// TestAggregate_MissingSignals verifies nil sub-scores aggregate as zero and
// mark the result incomplete.
func TestAggregate_MissingSignals(t *testing.T) {
	e := New(config.DefaultWeights(), config.DefaultThresholds())

	res := e.Aggregate(Inputs{
		Header:   nil,
		Text:     intPtr(10),
		Metadata: intPtr(0),
	})
	if !res.Incomplete {
		t.Error("missing header signal should mark the result incomplete")
	}
	if res.Scores.Total != 10 {
		t.Errorf("total = %d, want 10", res.Scores.Total)
	}
}

// TestAggregate_Empty verifies the all-zero verdict.
func TestAggregate_Empty(t *testing.T) {
	e := New(config.DefaultWeights(), config.DefaultThresholds())

	res := e.Aggregate(Inputs{
		Header:   intPtr(0),
		Text:     intPtr(0),
		Metadata: intPtr(0),
	})
	if res.Scores.Total != 0 {
		t.Errorf("total = %d, want 0", res.Scores.Total)
	}
	if res.RiskLevel != models.RiskLow {
		t.Errorf("level = %s, want Low", res.RiskLevel)
	}
	if res.Flagged {
		t.Error("Low must not flag")
	}
}

// TestAggregate_Idempotent verifies re-running aggregation on unchanged
// inputs yields an identical verdict.
func TestAggregate_Idempotent(t *testing.T) {
	e := New(config.DefaultWeights(), config.DefaultThresholds())

	in := Inputs{
		Header:      intPtr(25),
		Text:        intPtr(45),
		Metadata:    intPtr(15),
		Attachments: []int{50},
		URLs:        []int{80},
	}
	first := e.Aggregate(in)
	second := e.Aggregate(in)
	if first != second {
		t.Errorf("aggregation is not idempotent: %+v vs %+v", first, second)
	}
}

// TestAggregate_Monotonic verifies adding a worse URL never lowers the total.
func TestAggregate_Monotonic(t *testing.T) {
	e := New(config.DefaultWeights(), config.DefaultThresholds())

	base := Inputs{Header: intPtr(10), Text: intPtr(10), Metadata: intPtr(0), URLs: []int{20}}
	worse := base
	worse.URLs = []int{20, 80}

	a := e.Aggregate(base).Scores.Total
	b := e.Aggregate(worse).Scores.Total
	if b < a {
		t.Errorf("adding a worse URL lowered the total: %d -> %d", a, b)
	}
}

// TestLevelFor verifies the canonical threshold table including boundaries.
func TestLevelFor(t *testing.T) {
	th := config.DefaultThresholds()
	tests := []struct {
		score int
		want  models.RiskLevel
	}{
		{0, models.RiskLow},
		{29, models.RiskLow},
		{30, models.RiskMedium},
		{49, models.RiskMedium},
		{50, models.RiskHigh},
		{79, models.RiskHigh},
		{80, models.RiskCritical},
		{100, models.RiskCritical},
	}
	for _, tc := range tests {
		if got := LevelFor(tc.score, th); got != tc.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

// TestClamp verifies the score bounds.
func TestClamp(t *testing.T) {
	if Clamp(-5) != 0 {
		t.Error("negative scores clamp to 0")
	}
	if Clamp(101) != 100 {
		t.Error("scores above 100 clamp to 100")
	}
	if Clamp(42) != 42 {
		t.Error("in-range scores pass through")
	}
}
