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

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bcem/analysis/internal/attachments"
	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/models"
)

type stubURLs struct {
	mu       sync.Mutex
	analyzed []string
	scores   map[string]int
	failWith string
}

func (s *stubURLs) Analyze(_ context.Context, raw string) models.URLFinding {
	s.mu.Lock()
	s.analyzed = append(s.analyzed, raw)
	s.mu.Unlock()

	f := models.URLFinding{RawURL: raw, RiskScore: s.scores[raw]}
	if s.failWith != "" {
		f.ExpandError = s.failWith
	}
	return f
}

type stubAtts struct {
	mu        sync.Mutex
	baselines map[string]*models.HashSet
	scores    map[string]int
}

func (s *stubAtts) Analyze(_ context.Context, att models.Attachment, original *models.HashSet) models.AttachmentFinding {
	s.mu.Lock()
	if s.baselines == nil {
		s.baselines = make(map[string]*models.HashSet)
	}
	s.baselines[att.Name] = original
	s.mu.Unlock()

	return models.AttachmentFinding{Filename: att.Name, RiskScore: s.scores[att.Name]}
}

type stubHashes struct {
	hashes map[string]models.HashSet
}

func (s stubHashes) OriginalHashes(context.Context, string) (map[string]models.HashSet, error) {
	return s.hashes, nil
}

func newTestPipeline(urls *stubURLs, atts AttachmentAnalyzer, hashes HashSource) *Pipeline {
	return New(Options{
		URLs:        urls,
		Attachments: atts,
		Hashes:      hashes,
		Weights:     config.DefaultWeights(),
		Thresholds:  config.DefaultThresholds(),
		Deadline:    10 * time.Second,
		FanOutLimit: 4,
	})
}

func phishingEvent() models.EmailEvent {
	return models.EmailEvent{
		MessageID: "msg-1",
		From:      models.EmailAddress{Address: "security@example-bank.com"},
		To:        []models.EmailAddress{{Address: "alice@corp.example"}},
		Subject:   "URGENT: verify your account",
		Body: models.EmailBody{
			ContentType: "text/html",
			Content:     "<p>Your bank account is locked. Click here and enter your password.</p>",
		},
		RawHeaders: "Received: from mail.example-bank.com by mx.corp.example\n" +
			"From: <security@example-bank.com>\n" +
			"Return-Path: <bounce@bulk-sender.net>",
		URLs: []string{"https://evil.example/login"},
		Attachments: []models.Attachment{
			{Name: "invoice.exe", ContentType: "application/pdf", ContentBytes: "TVo="},
		},
	}
}

// TestRun_PhishingScenario verifies an end-to-end run over a hostile email:
// every signal fires and the verdict escalates to flagged.
func TestRun_PhishingScenario(t *testing.T) {
	urls := &stubURLs{scores: map[string]int{"https://evil.example/login": 80}}
	atts := &stubAtts{scores: map[string]int{"invoice.exe": 50}}
	p := newTestPipeline(urls, atts, stubHashes{})

	rec := p.Run(context.Background(), phishingEvent())

	if rec.MessageID != "msg-1" {
		t.Errorf("message_id = %q", rec.MessageID)
	}
	if rec.RunID == "" {
		t.Error("run ID should be assigned")
	}
	if rec.Scores.Header == 0 {
		t.Error("header anomalies should contribute")
	}
	if rec.Scores.Text == 0 {
		t.Error("body keywords should contribute")
	}
	if rec.Scores.Metadata == 0 {
		t.Error("subject keywords should contribute")
	}
	if rec.Scores.URLs != 80 {
		t.Errorf("url sub-score = %d, want 80", rec.Scores.URLs)
	}
	if rec.Scores.Attachments != 50 {
		t.Errorf("attachment sub-score = %d, want 50", rec.Scores.Attachments)
	}
	if !rec.RiskLevel.AtLeast(models.RiskHigh) {
		t.Errorf("level = %s, want at least High", rec.RiskLevel)
	}
	if !rec.Flagged {
		t.Error("verdict should be flagged")
	}
	if rec.Status != models.StatusNew {
		t.Errorf("status = %s, want New", rec.Status)
	}
	if rec.Incomplete {
		t.Error("all signals present, should not be incomplete")
	}
}

// TestRun_CleanEmail verifies a benign message stays Low and unflagged.
func TestRun_CleanEmail(t *testing.T) {
	urls := &stubURLs{scores: map[string]int{}}
	atts := &stubAtts{scores: map[string]int{}}
	p := newTestPipeline(urls, atts, stubHashes{})

	rec := p.Run(context.Background(), models.EmailEvent{
		MessageID:  "msg-2",
		From:       models.EmailAddress{Address: "alice@example.com"},
		Subject:    "lunch tomorrow",
		Body:       models.EmailBody{ContentType: "text/plain", Content: "Same place at noon?"},
		RawHeaders: "Received: from mail.example.com by mx.corp.example\nFrom: <alice@example.com>",
	})

	if rec.Scores.Total != 0 {
		t.Errorf("total = %d, want 0", rec.Scores.Total)
	}
	if rec.RiskLevel != models.RiskLow {
		t.Errorf("level = %s, want Low", rec.RiskLevel)
	}
	if rec.Flagged {
		t.Error("clean email must not flag")
	}
}

// TestRun_ExtractsURLsFromBody verifies the fallback extraction when the
// event carries no pre-parsed URL list.
func TestRun_ExtractsURLsFromBody(t *testing.T) {
	urls := &stubURLs{scores: map[string]int{}}
	atts := &stubAtts{}
	p := newTestPipeline(urls, atts, stubHashes{})

	event := phishingEvent()
	event.URLs = nil
	event.Attachments = nil
	event.Body.Content = "See https://evil.example/login and https://other.example/x"

	rec := p.Run(context.Background(), event)
	if len(urls.analyzed) != 2 {
		t.Fatalf("expected 2 extracted URLs, got %v", urls.analyzed)
	}
	if len(rec.URLs) != 2 {
		t.Errorf("expected 2 findings, got %d", len(rec.URLs))
	}
}

// TestRun_BaselinePassedToAttachments verifies recorded hashes reach the
// attachment analyzer by filename.
func TestRun_BaselinePassedToAttachments(t *testing.T) {
	baseline := models.HashSet{SHA256: "abc123"}
	urls := &stubURLs{scores: map[string]int{}}
	atts := &stubAtts{}
	p := newTestPipeline(urls, atts, stubHashes{
		hashes: map[string]models.HashSet{"invoice.exe": baseline},
	})

	p.Run(context.Background(), phishingEvent())

	got := atts.baselines["invoice.exe"]
	if got == nil || got.SHA256 != "abc123" {
		t.Errorf("baseline not passed through, got %v", got)
	}
}

// TestRun_LookupFailureMarksIncomplete verifies a failed URL lookup surfaces
// as an incomplete record but still yields a verdict.
func TestRun_LookupFailureMarksIncomplete(t *testing.T) {
	urls := &stubURLs{scores: map[string]int{}, failWith: "timeout: expand failed"}
	atts := &stubAtts{}
	p := newTestPipeline(urls, atts, stubHashes{})

	rec := p.Run(context.Background(), phishingEvent())
	if !rec.Incomplete {
		t.Error("failed lookup should mark the record incomplete")
	}
	if rec.RunID == "" || rec.MessageID == "" {
		t.Error("record must still be usable")
	}
}

type noopChecker struct{}

func (noopChecker) Check(context.Context, models.HashSet) models.MalwareCheck {
	return models.MalwareCheck{Checked: true}
}

// TestRun_UndecodableAttachment verifies an attachment whose content fails
// to decode still yields a complete record; the skipped malware check is
// "not attempted", not a failed lookup.
func TestRun_UndecodableAttachment(t *testing.T) {
	urls := &stubURLs{}
	atts := attachments.New(noopChecker{}, config.DefaultWeights(), config.DefaultThresholds())
	p := newTestPipeline(urls, atts, stubHashes{})

	event := phishingEvent()
	event.URLs = nil
	event.Body = models.EmailBody{ContentType: "text/plain", Content: "see attached"}
	event.Attachments = []models.Attachment{
		{Name: "weird.bin", ContentType: "application/octet-stream", ContentBytes: "not base64!!!"},
	}

	rec := p.Run(context.Background(), event)

	if len(rec.Attachments) != 1 {
		t.Fatalf("attachment findings = %d, want 1", len(rec.Attachments))
	}
	if rec.Attachments[0].RiskScore == 0 {
		t.Error("undecodable content should carry a penalty")
	}
	if rec.Incomplete {
		t.Error("a skipped malware check must not mark the record incomplete")
	}
}
