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

package models

import "time"

// RiskLevel is the ordinal classification derived from a numeric score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// AtLeast reports whether l is the same level as other or more severe.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[l] >= riskRank[other]
}

// Status is the reviewer-controlled state of an email record. The analysis
// pipeline never writes it.
type Status string

const (
	StatusNew         Status = "New"
	StatusReviewed    Status = "Reviewed"
	StatusQuarantined Status = "Quarantined"
	StatusSafe        Status = "Safe"
)

// ScoreSet holds the per-signal sub-scores and the clamped total.
type ScoreSet struct {
	Header      int `json:"header"`
	Text        int `json:"text"`
	Metadata    int `json:"metadata"`
	Attachments int `json:"attachments"`
	URLs        int `json:"urls"`
	Total       int `json:"total"`
}

// Hop is one mail-relay traversal from a Received header. Fields are empty
// when the pattern match found nothing.
type Hop struct {
	From string `json:"from,omitempty"`
	By   string `json:"by,omitempty"`
	IP   string `json:"ip,omitempty"`
}

// HeaderFinding is the result of header provenance analysis.
type HeaderFinding struct {
	Hops         []Hop    `json:"hops,omitempty"`
	Anomalies    []string `json:"anomalies,omitempty"`
	Insufficient bool     `json:"insufficient,omitempty"`
	Score        int      `json:"score"`
}

// RedirectHop is one hop in a followed redirect chain.
type RedirectHop struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// SSLInfo is the result of a certificate check. A nil *SSLInfo on a finding
// means the check was never attempted; a populated Error means it was
// attempted and failed.
type SSLInfo struct {
	Valid         bool      `json:"valid"`
	Issuer        string    `json:"issuer,omitempty"`
	Expiry        time.Time `json:"expiry,omitzero"`
	DaysRemaining int       `json:"days_remaining,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// DomainAgeInfo is the result of a WHOIS-style registration lookup.
type DomainAgeInfo struct {
	AgeDays   int       `json:"age_days"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	Registrar string    `json:"registrar,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ReputationInfo is the result of a reputation-source query.
type ReputationInfo struct {
	Malicious  int    `json:"malicious"`
	Suspicious int    `json:"suspicious"`
	Error      string `json:"error,omitempty"`
}

// VPNVerdict classifies an IP as VPN/proxy-sourced.
type VPNVerdict struct {
	IsVPNOrProxy bool   `json:"is_vpn_or_proxy"`
	Provider     string `json:"provider,omitempty"`
	ProxyASN     bool   `json:"proxy_asn,omitempty"`
	Confidence   string `json:"confidence"`
}

// GeoRecord holds geolocation and infrastructure intelligence for one IP.
// Records are cached per IP with a 30-day retention ceiling.
type GeoRecord struct {
	IP          string      `json:"ip"`
	ASN         string      `json:"asn,omitempty"`
	ISP         string      `json:"isp,omitempty"`
	Org         string      `json:"org,omitempty"`
	City        string      `json:"city,omitempty"`
	Region      string      `json:"region,omitempty"`
	Country     string      `json:"country,omitempty"`
	CountryCode string      `json:"country_code,omitempty"`
	Latitude    float64     `json:"latitude,omitempty"`
	Longitude   float64     `json:"longitude,omitempty"`
	Timezone    string      `json:"timezone,omitempty"`
	Datacenter  string      `json:"datacenter,omitempty"`
	NetworkType string      `json:"network_type,omitempty"`
	VPN         *VPNVerdict `json:"vpn,omitempty"`
	FetchedAt   time.Time   `json:"fetched_at"`
	Error       string      `json:"error,omitempty"`
}

// URLFinding is the structured result of analyzing one embedded URL. Every
// lookup sub-field may be absent (nil, not attempted) or errored
// independently; absence never prevents scoring of the rest.
type URLFinding struct {
	RawURL        string          `json:"url"`
	Domain        string          `json:"domain,omitempty"`
	IsShortener   bool            `json:"is_shortener,omitempty"`
	ExpandedURL   string          `json:"expanded_url,omitempty"`
	ExpandError   string          `json:"expand_error,omitempty"`
	RedirectChain []RedirectHop   `json:"redirect_chain,omitempty"`
	SSL           *SSLInfo        `json:"ssl,omitempty"`
	DomainAge     *DomainAgeInfo  `json:"domain_age,omitempty"`
	Reputation    *ReputationInfo `json:"reputation,omitempty"`
	IPs           []string        `json:"ips,omitempty"`
	ResolveError  string          `json:"resolve_error,omitempty"`
	Geo           []GeoRecord     `json:"geo,omitempty"`
	ParseError    string          `json:"parse_error,omitempty"`
	Reasons       []string        `json:"reasons,omitempty"`
	RiskScore     int             `json:"risk_score"`
	RiskLevel     RiskLevel       `json:"risk_level"`
}

// LookupFailed reports whether any external lookup attempted for this URL
// ended in an error. Lookups that were never attempted do not count.
func (f URLFinding) LookupFailed() bool {
	if f.ExpandError != "" {
		return true
	}
	if f.ResolveError != "" {
		return true
	}
	if f.SSL != nil && f.SSL.Error != "" {
		return true
	}
	if f.DomainAge != nil && f.DomainAge.Error != "" {
		return true
	}
	if f.Reputation != nil && f.Reputation.Error != "" {
		return true
	}
	for _, g := range f.Geo {
		if g.Error != "" {
			return true
		}
	}
	return false
}

// HashSet holds one digest per supported algorithm, hex-encoded.
type HashSet struct {
	MD5    string `json:"md5"`
	SHA1   string `json:"sha1"`
	SHA256 string `json:"sha256"`
	SHA512 string `json:"sha512"`
}

// MalwareCheck is the result of a malware-hash database lookup. Checked is
// false when the lookup could not be completed; that is an "unchecked" state,
// not a clean verdict.
type MalwareCheck struct {
	Checked    bool      `json:"checked"`
	Known      bool      `json:"known"`
	Detections int       `json:"detections,omitempty"`
	CheckedAt  time.Time `json:"checked_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// AttachmentFinding is the structured result of analyzing one attachment.
type AttachmentFinding struct {
	Filename     string        `json:"filename"`
	DeclaredMIME string        `json:"declared_mime,omitempty"`
	DetectedMIME string        `json:"detected_mime,omitempty"`
	Size         int           `json:"size"`
	OriginalHash *HashSet      `json:"original_hash,omitempty"`
	CurrentHash  HashSet       `json:"current_hash"`
	Malware      *MalwareCheck `json:"malware,omitempty"`
	Tampered     bool          `json:"tampered"`
	Reasons      []string      `json:"reasons,omitempty"`
	RiskScore    int           `json:"risk_score"`
	RiskLevel    RiskLevel     `json:"risk_level"`
}

// EmailRecord is the fully scored email produced by the pipeline and handed
// to the persistence collaborator. There is at most one record per message ID.
type EmailRecord struct {
	MessageID   string              `json:"message_id"`
	RunID       string              `json:"run_id"`
	From        string              `json:"from"`
	To          string              `json:"to,omitempty"`
	Subject     string              `json:"subject,omitempty"`
	Body        string              `json:"body,omitempty"`
	RawHeaders  string              `json:"raw_headers,omitempty"`
	Scores      ScoreSet            `json:"scores"`
	RiskLevel   RiskLevel           `json:"risk_level"`
	Flagged     bool                `json:"flagged"`
	Incomplete  bool                `json:"incomplete,omitempty"`
	Status      Status              `json:"status"`
	Header      HeaderFinding       `json:"header_finding"`
	URLs        []URLFinding        `json:"url_findings,omitempty"`
	Attachments []AttachmentFinding `json:"attachment_findings,omitempty"`
	AnalyzedAt  time.Time           `json:"analyzed_at"`
}
