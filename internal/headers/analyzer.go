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

// Package headers analyzes raw email header blocks for provenance anomalies.
// It is pure: no I/O, and malformed input degrades to a zero score with an
// insufficient-data marker rather than an error.
package headers

import (
	"regexp"
	"strings"

	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/models"
	"github.com/bcem/analysis/internal/urlkit"
)

// maxHops is the relay-chain length above which the path is anomalous.
const maxHops = 15

// relayKeywords mark hosts operated by known bulk-mail relays.
var relayKeywords = []string{"spam-relay", "bulk-mail", "mass-mailer"}

// senderKeywords in the sender address indicate impersonation of a service
// desk; noreply senders carry a smaller weight.
var senderKeywords = []string{"security", "account"}

var (
	fromHostPattern = regexp.MustCompile(`(?i)from\s+([^\s()\[\]]+)`)
	byHostPattern   = regexp.MustCompile(`(?i)by\s+([^\s()\[\]]+)`)
	hopIPPattern    = regexp.MustCompile(`(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)
	angleAddr       = regexp.MustCompile(`<([^>]+)>`)
)

// Analyzer scores header provenance with configurable weights.
type Analyzer struct {
	weights config.Weights
}

// New creates a header analyzer.
func New(w config.Weights) *Analyzer {
	return &Analyzer{weights: w}
}

// Analyze extracts the hop chain and provenance anomalies from a raw header
// block. sender is the From address as reported by the ingestion service and
// is used when the block itself carries no From line.
func (a *Analyzer) Analyze(rawHeaders, sender string) models.HeaderFinding {
	lines := unfold(rawHeaders)
	if len(lines) == 0 {
		return models.HeaderFinding{Insufficient: true}
	}

	var received []string
	var fromLine, returnPath string
	for _, line := range lines {
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "received:"):
			received = append(received, line[len("received:"):])
		case strings.HasPrefix(lower, "from:") && fromLine == "":
			fromLine = strings.TrimSpace(line[len("from:"):])
		case strings.HasPrefix(lower, "return-path:") && returnPath == "":
			returnPath = strings.TrimSpace(line[len("return-path:"):])
		}
	}

	if fromLine == "" {
		fromLine = sender
	}
	if len(received) == 0 && fromLine == "" {
		return models.HeaderFinding{Insufficient: true}
	}

	// Mail systems prepend the newest Received line, so the raw order is
	// reverse-chronological; walk it backwards to get origin-first hops.
	hops := make([]models.Hop, 0, len(received))
	for i := len(received) - 1; i >= 0; i-- {
		hops = append(hops, parseHop(received[i]))
	}

	finding := models.HeaderFinding{Hops: hops}

	if len(hops) > maxHops {
		finding.Anomalies = append(finding.Anomalies, "excessive relay hops")
		finding.Score += a.weights.ExcessiveHops
	}

	for _, hop := range hops {
		if hostMatchesAny(hop.From, relayKeywords) || hostMatchesAny(hop.By, relayKeywords) {
			finding.Anomalies = append(finding.Anomalies, "known relay")
			finding.Score += a.weights.KnownRelay
			break
		}
	}

	fromDomain := urlkit.AddressDomain(extractAddress(fromLine))
	returnDomain := urlkit.AddressDomain(extractAddress(returnPath))
	if fromDomain != "" && returnDomain != "" && !domainSuffixMatch(fromDomain, returnDomain) {
		finding.Anomalies = append(finding.Anomalies, "return-path mismatch")
		finding.Score += a.weights.ReturnPathMismatch
	}

	senderLower := strings.ToLower(fromLine)
	if strings.Contains(senderLower, "noreply") || strings.Contains(senderLower, "no-reply") {
		finding.Anomalies = append(finding.Anomalies, "noreply sender")
		finding.Score += a.weights.NoreplySender
	}
	for _, kw := range senderKeywords {
		if strings.Contains(senderLower, kw) {
			finding.Anomalies = append(finding.Anomalies, "sender keyword: "+kw)
			finding.Score += a.weights.SenderKeyword
			break
		}
	}

	return finding
}

// parseHop pattern-matches one Received value, tolerating missing fields.
func parseHop(value string) models.Hop {
	var hop models.Hop
	if m := fromHostPattern.FindStringSubmatch(value); m != nil {
		hop.From = m[1]
	}
	if m := byHostPattern.FindStringSubmatch(value); m != nil {
		hop.By = m[1]
	}
	if m := hopIPPattern.FindStringSubmatch(value); m != nil {
		hop.IP = m[1]
	}
	return hop
}

// OriginIP returns the IP of the hop closest to the true origin, or empty.
func OriginIP(f models.HeaderFinding) string {
	for _, hop := range f.Hops {
		if hop.IP != "" {
			return hop.IP
		}
	}
	return ""
}

// unfold splits a header block into logical lines, joining RFC 5322
// continuation lines onto their parent.
func unfold(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += " " + strings.TrimSpace(line)
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func extractAddress(headerValue string) string {
	if m := angleAddr.FindStringSubmatch(headerValue); m != nil {
		return m[1]
	}
	return headerValue
}

// domainSuffixMatch compares sender and return-path domains
// case-insensitively, accepting subdomain relationships in either direction
// (bounce.example.com vs example.com is consistent).
func domainSuffixMatch(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}

func hostMatchesAny(host string, keywords []string) bool {
	if host == "" {
		return false
	}
	host = strings.ToLower(host)
	for _, kw := range keywords {
		if strings.Contains(host, kw) {
			return true
		}
	}
	return false
}
