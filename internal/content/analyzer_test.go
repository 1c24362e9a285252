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

package content

import (
	"strings"
	"testing"

	"github.com/bcem/analysis/internal/config"
)

// TestAnalyze_CleanText verifies a benign message scores zero.
func TestAnalyze_CleanText(t *testing.T) {
	a := New(config.DefaultWeights())

	res := a.Analyze("Lunch on Friday?", "Shall we try the new place at noon?")
	if res.Text != 0 {
		t.Errorf("clean text should score 0, got %d (%v)", res.Text, res.Indicators)
	}
	if res.Metadata != 0 {
		t.Errorf("clean subject should score 0, got %d", res.Metadata)
	}
}

// TestAnalyze_GroupsFireOnce verifies each keyword group contributes its
// weight exactly once regardless of how many of its words appear.
func TestAnalyze_GroupsFireOnce(t *testing.T) {
	w := config.DefaultWeights()
	a := New(w)

	body := "urgent! immediate attention! this is an urgent warning, act now"
	res := a.Analyze("meeting notes", body)
	if res.Text != w.Urgency {
		t.Errorf("urgency group should fire once: score = %d, want %d", res.Text, w.Urgency)
	}
}

// TestAnalyze_AllGroups verifies the groups stack additively.
func TestAnalyze_AllGroups(t *testing.T) {
	w := config.DefaultWeights()
	a := New(w)

	body := "URGENT: your bank acount needs attention, click here to verify your password"
	res := a.Analyze("project update", body)

	want := w.Urgency + w.FinancialTerms + w.CredentialRequest + w.Misspelling
	if res.Text != want {
		t.Errorf("score = %d, want %d (%v)", res.Text, want, res.Indicators)
	}
	if len(res.Indicators) != 4 {
		t.Errorf("expected 4 indicators, got %v", res.Indicators)
	}
}

// TestAnalyze_SubjectKeyword verifies the subject feeds metadata, not text.
func TestAnalyze_SubjectKeyword(t *testing.T) {
	w := config.DefaultWeights()
	a := New(w)

	res := a.Analyze("ALERT: action required", "see attachment")
	if res.Metadata != w.SubjectKeyword {
		t.Errorf("metadata = %d, want %d", res.Metadata, w.SubjectKeyword)
	}
}

// TestAnalyze_HTMLStripped verifies keywords hidden inside tag attributes do
// not fire, while rendered text does.
func TestAnalyze_HTMLStripped(t *testing.T) {
	w := config.DefaultWeights()
	a := New(w)

	// "password" only inside a tag attribute: must not count.
	hidden := `<input type="password" name="x">hello there`
	res := a.Analyze("notes", hidden)
	if res.Text != 0 {
		t.Errorf("keyword inside markup should not fire, got %d (%v)", res.Text, res.Indicators)
	}

	rendered := `<p>Please enter your <b>password</b> now</p>`
	res = a.Analyze("notes", rendered)
	if res.Text != w.CredentialRequest {
		t.Errorf("rendered keyword should fire: score = %d, want %d", res.Text, w.CredentialRequest)
	}
}

// TestStripMarkup verifies tags are replaced with spaces so words do not fuse.
func TestStripMarkup(t *testing.T) {
	got := StripMarkup("<p>hello</p><br>world")
	if !strings.Contains(got, "hello") || !strings.Contains(got, "world") {
		t.Errorf("StripMarkup lost text: %q", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("StripMarkup left tags: %q", got)
	}
	if strings.Contains(got, "helloworld") {
		t.Errorf("adjacent words fused: %q", got)
	}
}
