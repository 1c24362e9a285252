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

// Package pipeline orchestrates the full analysis of one email event:
// synchronous header and content passes, a bounded concurrent fan-out
// over URLs and attachments, and the final score aggregation.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bcem/analysis/internal/attachments"
	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/content"
	"github.com/bcem/analysis/internal/headers"
	"github.com/bcem/analysis/internal/models"
	"github.com/bcem/analysis/internal/scoring"
	"github.com/bcem/analysis/internal/urlintel"
	"github.com/bcem/analysis/internal/urlkit"
)

// URLAnalyzer produces a finding for one raw URL.
type URLAnalyzer interface {
	Analyze(ctx context.Context, raw string) models.URLFinding
}

// AttachmentAnalyzer produces a finding for one attachment.
type AttachmentAnalyzer interface {
	Analyze(ctx context.Context, att models.Attachment, original *models.HashSet) models.AttachmentFinding
}

// HashSource returns the hash sets recorded for a message at ingestion
// time, keyed by filename. Used for tamper detection; an empty map means
// no baseline exists.
type HashSource interface {
	OriginalHashes(ctx context.Context, messageID string) (map[string]models.HashSet, error)
}

// Pipeline runs every analysis stage for one email and assembles the record.
type Pipeline struct {
	headers  *headers.Analyzer
	content  *content.Analyzer
	urls     URLAnalyzer
	atts     AttachmentAnalyzer
	hashes   HashSource
	engine   *scoring.Engine
	deadline time.Duration
	fanOut   int
	logger   *slog.Logger
}

type Options struct {
	URLs        URLAnalyzer
	Attachments AttachmentAnalyzer
	Hashes      HashSource
	Weights     config.Weights
	Thresholds  config.Thresholds
	Deadline    time.Duration
	FanOutLimit int
	Logger      *slog.Logger
}

func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FanOutLimit <= 0 {
		opts.FanOutLimit = 8
	}
	return &Pipeline{
		headers:  headers.New(opts.Weights),
		content:  content.New(opts.Weights),
		urls:     opts.URLs,
		atts:     opts.Attachments,
		hashes:   opts.Hashes,
		engine:   scoring.New(opts.Weights, opts.Thresholds),
		deadline: opts.Deadline,
		fanOut:   opts.FanOutLimit,
		logger:   opts.Logger,
	}
}

// Run analyzes one email event end to end. Lookup failures never fail the
// run; they surface as Error fields on the relevant findings. The returned
// record is always usable.
func (p *Pipeline) Run(ctx context.Context, event models.EmailEvent) models.EmailRecord {
	if p.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deadline)
		defer cancel()
	}

	logger := p.logger.With("message_id", event.MessageID)
	start := time.Now()

	body := event.Body.Content
	if strings.Contains(strings.ToLower(event.Body.ContentType), "html") {
		body = content.StripMarkup(body)
	}

	headerFinding := p.headers.Analyze(event.RawHeaders, event.From.Address)
	contentResult := p.content.Analyze(event.Subject, body)

	rawURLs := event.URLs
	if len(rawURLs) == 0 {
		rawURLs = urlkit.ExtractURLs(event.Subject + "\n" + event.Body.Content)
	}

	urlFindings := make([]models.URLFinding, len(rawURLs))
	attFindings := make([]models.AttachmentFinding, len(event.Attachments))

	baseline := p.loadBaseline(ctx, logger, event.MessageID, len(event.Attachments) > 0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fanOut)
	for i, raw := range rawURLs {
		g.Go(func() error {
			urlFindings[i] = p.urls.Analyze(gctx, raw)
			return nil
		})
	}
	for i, att := range event.Attachments {
		g.Go(func() error {
			var original *models.HashSet
			if hs, ok := baseline[att.Name]; ok {
				original = &hs
			}
			attFindings[i] = p.atts.Analyze(gctx, att, original)
			return nil
		})
	}
	_ = g.Wait()

	headerScore := headerFinding.Score
	textScore := contentResult.Text
	metadataScore := contentResult.Metadata
	inputs := scoring.Inputs{
		Header:      &headerScore,
		Text:        &textScore,
		Metadata:    &metadataScore,
		Attachments: make([]int, len(attFindings)),
		URLs:        make([]int, len(urlFindings)),
	}
	if headerFinding.Insufficient {
		inputs.Header = nil
	}
	for i, f := range attFindings {
		inputs.Attachments[i] = f.RiskScore
	}
	for i, f := range urlFindings {
		inputs.URLs[i] = f.RiskScore
	}

	verdict := p.engine.Aggregate(inputs)

	record := models.EmailRecord{
		MessageID:   event.MessageID,
		RunID:       uuid.NewString(),
		From:        event.From.Address,
		To:          joinAddresses(event.To),
		Subject:     event.Subject,
		Body:        event.Body.Content,
		RawHeaders:  event.RawHeaders,
		Scores:      verdict.Scores,
		RiskLevel:   verdict.RiskLevel,
		Flagged:     verdict.Flagged,
		Incomplete:  verdict.Incomplete || anyLookupFailed(urlFindings, attFindings),
		Status:      models.StatusNew,
		Header:      headerFinding,
		URLs:        urlFindings,
		Attachments: attFindings,
		AnalyzedAt:  time.Now().UTC(),
	}

	logger.Info("analysis complete",
		"run_id", record.RunID,
		"total", record.Scores.Total,
		"risk_level", record.RiskLevel,
		"flagged", record.Flagged,
		"urls", len(urlFindings),
		"attachments", len(attFindings),
		"duration_ms", time.Since(start).Milliseconds())

	return record
}

func (p *Pipeline) loadBaseline(ctx context.Context, logger *slog.Logger, messageID string, needed bool) map[string]models.HashSet {
	if !needed || p.hashes == nil {
		return nil
	}
	baseline, err := p.hashes.OriginalHashes(ctx, messageID)
	if err != nil {
		logger.Warn("baseline hash load failed", "error", err)
		return nil
	}
	return baseline
}

func anyLookupFailed(urls []models.URLFinding, atts []models.AttachmentFinding) bool {
	for _, f := range urls {
		if f.LookupFailed() {
			return true
		}
	}
	for _, f := range atts {
		if f.Malware != nil && f.Malware.Error != "" {
			return true
		}
	}
	return false
}

func joinAddresses(addrs []models.EmailAddress) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Address != "" {
			parts = append(parts, a.Address)
		}
	}
	return strings.Join(parts, ", ")
}

var _ URLAnalyzer = (*urlintel.Analyzer)(nil)
var _ AttachmentAnalyzer = (*attachments.Analyzer)(nil)
