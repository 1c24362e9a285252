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

// Package store persists analysis records in Postgres. Findings are kept
// as JSONB documents alongside the scalar columns used for triage queries.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/analysis/internal/models"
)

// Store provides persistence for analysed emails.
type Store struct {
	pool *pgxpool.Pool
}

// New creates an analysis store backed by the given Postgres pool.
// It ensures the emails table exists on creation.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure analysis schema: %w", err)
	}
	slog.Info("analysis store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS emails (
			id                  BIGSERIAL PRIMARY KEY,
			message_id          TEXT NOT NULL UNIQUE,
			run_id              TEXT NOT NULL,
			sender              TEXT NOT NULL,
			recipients          TEXT DEFAULT '',
			subject             TEXT DEFAULT '',
			body                TEXT DEFAULT '',
			raw_headers         TEXT DEFAULT '',
			header_score        INT NOT NULL DEFAULT 0,
			text_score          INT NOT NULL DEFAULT 0,
			metadata_score      INT NOT NULL DEFAULT 0,
			attachment_score    INT NOT NULL DEFAULT 0,
			url_score           INT NOT NULL DEFAULT 0,
			total_score         INT NOT NULL DEFAULT 0,
			risk_level          TEXT NOT NULL DEFAULT 'Low',
			flagged             BOOLEAN NOT NULL DEFAULT FALSE,
			incomplete          BOOLEAN NOT NULL DEFAULT FALSE,
			status              TEXT NOT NULL DEFAULT 'New',
			header_finding      JSONB DEFAULT '{}',
			url_findings        JSONB DEFAULT '[]',
			attachment_findings JSONB DEFAULT '[]',
			analyzed_at         TIMESTAMPTZ NOT NULL,
			created_at          TIMESTAMPTZ DEFAULT NOW(),
			updated_at          TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_emails_flagged ON emails(flagged);
		CREATE INDEX IF NOT EXISTS idx_emails_status ON emails(status);
		CREATE INDEX IF NOT EXISTS idx_emails_risk ON emails(risk_level);
		CREATE INDEX IF NOT EXISTS idx_emails_analyzed ON emails(analyzed_at);
	`)
	return err
}

// SaveRecord inserts or replaces the analysis for a message. Re-analysis
// overwrites scores and findings but never touches status: a reviewer
// verdict survives a rerun.
func (s *Store) SaveRecord(ctx context.Context, r models.EmailRecord) error {
	headerJSON, err := json.Marshal(r.Header)
	if err != nil {
		return fmt.Errorf("marshal header finding: %w", err)
	}
	urlsJSON, err := json.Marshal(emptySlice(r.URLs))
	if err != nil {
		return fmt.Errorf("marshal url findings: %w", err)
	}
	attsJSON, err := json.Marshal(emptySlice(r.Attachments))
	if err != nil {
		return fmt.Errorf("marshal attachment findings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO emails
			(message_id, run_id, sender, recipients, subject, body, raw_headers,
			 header_score, text_score, metadata_score, attachment_score, url_score,
			 total_score, risk_level, flagged, incomplete, status,
			 header_finding, url_findings, attachment_findings, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (message_id) DO UPDATE SET
			run_id              = EXCLUDED.run_id,
			sender              = EXCLUDED.sender,
			recipients          = EXCLUDED.recipients,
			subject             = EXCLUDED.subject,
			body                = EXCLUDED.body,
			raw_headers         = EXCLUDED.raw_headers,
			header_score        = EXCLUDED.header_score,
			text_score          = EXCLUDED.text_score,
			metadata_score      = EXCLUDED.metadata_score,
			attachment_score    = EXCLUDED.attachment_score,
			url_score           = EXCLUDED.url_score,
			total_score         = EXCLUDED.total_score,
			risk_level          = EXCLUDED.risk_level,
			flagged             = EXCLUDED.flagged,
			incomplete          = EXCLUDED.incomplete,
			header_finding      = EXCLUDED.header_finding,
			url_findings        = EXCLUDED.url_findings,
			attachment_findings = EXCLUDED.attachment_findings,
			analyzed_at         = EXCLUDED.analyzed_at,
			updated_at          = NOW()
	`,
		r.MessageID, r.RunID, r.From, r.To, r.Subject, r.Body, r.RawHeaders,
		r.Scores.Header, r.Scores.Text, r.Scores.Metadata, r.Scores.Attachments, r.Scores.URLs,
		r.Scores.Total, string(r.RiskLevel), r.Flagged, r.Incomplete, string(r.Status),
		headerJSON, urlsJSON, attsJSON, r.AnalyzedAt,
	)
	return err
}

// GetRecord retrieves the analysis for a message, or nil when none exists.
func (s *Store) GetRecord(ctx context.Context, messageID string) (*models.EmailRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT message_id, run_id, sender, recipients, subject, body, raw_headers,
		       header_score, text_score, metadata_score, attachment_score, url_score,
		       total_score, risk_level, flagged, incomplete, status,
		       header_finding, url_findings, attachment_findings, analyzed_at
		FROM emails
		WHERE message_id = $1
	`, messageID)

	var (
		r                              models.EmailRecord
		riskLevel, status              string
		headerJSON, urlsJSON, attsJSON []byte
	)
	err := row.Scan(
		&r.MessageID, &r.RunID, &r.From, &r.To, &r.Subject, &r.Body, &r.RawHeaders,
		&r.Scores.Header, &r.Scores.Text, &r.Scores.Metadata, &r.Scores.Attachments, &r.Scores.URLs,
		&r.Scores.Total, &riskLevel, &r.Flagged, &r.Incomplete, &status,
		&headerJSON, &urlsJSON, &attsJSON, &r.AnalyzedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.RiskLevel = models.RiskLevel(riskLevel)
	r.Status = models.Status(status)
	if err := json.Unmarshal(headerJSON, &r.Header); err != nil {
		return nil, fmt.Errorf("decode header finding: %w", err)
	}
	if err := json.Unmarshal(urlsJSON, &r.URLs); err != nil {
		return nil, fmt.Errorf("decode url findings: %w", err)
	}
	if err := json.Unmarshal(attsJSON, &r.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachment findings: %w", err)
	}
	return &r, nil
}

// OriginalHashes returns the attachment hash sets recorded by the previous
// analysis of a message, keyed by filename. An unseen message yields an
// empty map.
func (s *Store) OriginalHashes(ctx context.Context, messageID string) (map[string]models.HashSet, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT attachment_findings FROM emails WHERE message_id = $1
	`, messageID)

	var attsJSON []byte
	err := row.Scan(&attsJSON)
	if err == pgx.ErrNoRows {
		return map[string]models.HashSet{}, nil
	}
	if err != nil {
		return nil, err
	}

	var findings []models.AttachmentFinding
	if err := json.Unmarshal(attsJSON, &findings); err != nil {
		return nil, fmt.Errorf("decode attachment findings: %w", err)
	}

	hashes := make(map[string]models.HashSet, len(findings))
	for _, f := range findings {
		if f.CurrentHash.SHA256 != "" {
			hashes[f.Filename] = f.CurrentHash
		}
	}
	return hashes, nil
}

// UpdateStatus records a reviewer verdict. Only the review workflow moves
// status; analysis reruns leave it alone.
func (s *Store) UpdateStatus(ctx context.Context, messageID string, status models.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE emails SET status = $1, updated_at = NOW() WHERE message_id = $2
	`, string(status), messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no email with message_id %q", messageID)
	}
	return nil
}

// ListFlagged returns flagged emails newer than the cutoff, worst first.
func (s *Store) ListFlagged(ctx context.Context, since time.Time, limit int) ([]models.EmailRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, run_id, sender, recipients, subject,
		       total_score, risk_level, flagged, incomplete, status, analyzed_at
		FROM emails
		WHERE flagged AND analyzed_at >= $1
		ORDER BY total_score DESC, analyzed_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.EmailRecord
	for rows.Next() {
		var (
			r                 models.EmailRecord
			riskLevel, status string
		)
		if err := rows.Scan(
			&r.MessageID, &r.RunID, &r.From, &r.To, &r.Subject,
			&r.Scores.Total, &riskLevel, &r.Flagged, &r.Incomplete, &status, &r.AnalyzedAt,
		); err != nil {
			return nil, err
		}
		r.RiskLevel = models.RiskLevel(riskLevel)
		r.Status = models.Status(status)
		records = append(records, r)
	}
	return records, rows.Err()
}

// emptySlice substitutes an empty slice for nil so JSONB columns store []
// rather than null.
func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
