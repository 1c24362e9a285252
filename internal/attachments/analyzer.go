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

package attachments

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/models"
	"github.com/bcem/analysis/internal/scoring"
)

// Extensions that execute or script on open. Matched case-insensitively
// against the final extension of the filename.
var dangerousExtensions = map[string]struct{}{
	".exe": {}, ".scr": {}, ".pif": {}, ".com": {}, ".bat": {}, ".cmd": {},
	".ps1": {}, ".vbs": {}, ".js": {}, ".jse": {}, ".wsf": {}, ".hta": {},
	".msi": {}, ".jar": {}, ".dll": {}, ".cpl": {}, ".lnk": {}, ".iso": {},
	".img": {}, ".vhd": {},
}

// Declared MIME prefixes that are allowed to disagree with content
// sniffing without raising a masquerade flag. Text formats and office
// containers routinely sniff as something else.
var sniffExemptMIME = []string{
	"text/",
	"message/",
	"multipart/",
	"application/octet-stream",
}

// HashChecker reports known-malicious file digests.
type HashChecker interface {
	Check(ctx context.Context, hashes models.HashSet) models.MalwareCheck
}

// Analyzer inspects a single attachment: content hashing, MIME sniffing
// against the declared type, tamper detection against previously recorded
// hashes, and a malware-database check.
type Analyzer struct {
	malware    HashChecker
	weights    config.Weights
	thresholds config.Thresholds
}

func New(malware HashChecker, w config.Weights, t config.Thresholds) *Analyzer {
	return &Analyzer{malware: malware, weights: w, thresholds: t}
}

// Analyze scores one attachment. original holds the hash set recorded at
// ingestion time, if any; a nil original disables tamper comparison.
func (a *Analyzer) Analyze(ctx context.Context, att models.Attachment, original *models.HashSet) models.AttachmentFinding {
	finding := models.AttachmentFinding{
		Filename:     att.Name,
		DeclaredMIME: att.ContentType,
	}

	content, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		finding.Reasons = append(finding.Reasons, fmt.Sprintf("content decode failed: %v", err))
		finding.RiskScore = a.weights.TamperIndicator
		finding.RiskLevel = scoring.LevelFor(finding.RiskScore, a.thresholds)
		return finding
	}
	finding.Size = len(content)

	hashes, err := ComputeHashes(bytes.NewReader(content))
	if err != nil {
		finding.Reasons = append(finding.Reasons, fmt.Sprintf("hashing failed: %v", err))
		finding.RiskScore = a.weights.TamperIndicator
		finding.RiskLevel = scoring.LevelFor(finding.RiskScore, a.thresholds)
		return finding
	}
	finding.CurrentHash = hashes

	score := 0

	ext := strings.ToLower(filepath.Ext(att.Name))
	if _, ok := dangerousExtensions[ext]; ok {
		finding.Reasons = append(finding.Reasons, "dangerous extension "+ext)
		score += a.weights.DangerousExtension
	}

	finding.DetectedMIME = sniffMIME(content)
	if mimeMasquerade(att.ContentType, finding.DetectedMIME) {
		finding.Reasons = append(finding.Reasons,
			fmt.Sprintf("declared %s but content is %s", att.ContentType, finding.DetectedMIME))
		score += a.weights.MIMEMismatch
	}

	if original != nil {
		finding.OriginalHash = original
		if !strings.EqualFold(original.SHA256, hashes.SHA256) {
			finding.Tampered = true
			finding.Reasons = append(finding.Reasons, "content hash changed since ingestion")
			score += a.weights.TamperIndicator
		}
	}

	check := a.malware.Check(ctx, hashes)
	finding.Malware = &check
	if check.Known {
		finding.Reasons = append(finding.Reasons,
			fmt.Sprintf("known malware (%d detections)", check.Detections))
		score += a.weights.KnownMalware
	}

	finding.RiskScore = scoring.Clamp(score)
	finding.RiskLevel = scoring.LevelFor(finding.RiskScore, a.thresholds)
	return finding
}

func sniffMIME(content []byte) string {
	kind, err := filetype.Match(content)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

// mimeMasquerade reports whether the declared type and the sniffed type
// disagree in a way worth flagging.
func mimeMasquerade(declared, detected string) bool {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "" {
		return false
	}
	// Strip parameters such as "; charset=utf-8".
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	for _, prefix := range sniffExemptMIME {
		if strings.HasPrefix(declared, prefix) {
			return false
		}
	}
	if detected == "application/octet-stream" {
		// Sniffer could not identify the content; no basis for a verdict.
		return false
	}
	return declared != detected
}
