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

package urlintel

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/models"
	"github.com/bcem/analysis/internal/scoring"
	"github.com/bcem/analysis/internal/urlkit"
)

// tldDenylist holds top-level domains disproportionately used in phishing
// campaigns.
var tldDenylist = map[string]bool{
	"xyz": true, "tk": true, "ml": true, "ga": true,
	"cf": true, "gq": true, "top": true, "club": true,
}

// sensitivePathPattern matches credential-bait keywords in the URL path.
var sensitivePathPattern = regexp.MustCompile(`(?i)secure|login|account|update|verify|password|bank|paypal|ebay|amazon`)

// brandDomains are frequently impersonated brands and their canonical
// registrable domains.
var brandDomains = map[string]string{
	"paypal":    "paypal.com",
	"google":    "google.com",
	"microsoft": "microsoft.com",
	"apple":     "apple.com",
	"amazon":    "amazon.com",
	"facebook":  "facebook.com",
}

// allowlistedDomains are common legitimate registrable domains. A URL with
// no triggered signals and a domain outside this list still receives the
// unknown-domain floor: unknown is mildly suspicious, not neutral.
var allowlistedDomains = []string{
	"google.com", "microsoft.com", "apple.com", "amazon.com",
	"facebook.com", "github.com", "linkedin.com", "twitter.com",
	"instagram.com", "youtube.com",
}

// scoreFinding applies the additive penalty rules to a populated finding.
// Every signal triggers independently; the sum is clamped to [0,100]. Pure.
func scoreFinding(f *models.URLFinding, path string, w config.Weights, t config.Thresholds) {
	if f.ParseError != "" {
		f.Reasons = append(f.Reasons, "malformed URL")
		f.RiskScore = scoring.Clamp(w.MalformedURL)
		f.RiskLevel = scoring.LevelFor(f.RiskScore, t)
		return
	}

	score := 0
	host := f.Domain

	if urlkit.IsIPLiteral(host) {
		score += w.IPLiteralHost
		f.Reasons = append(f.Reasons, "host is a bare IP address")
	}

	if tld := urlkit.TLD(host); tldDenylist[tld] {
		score += w.DenylistedTLD
		f.Reasons = append(f.Reasons, fmt.Sprintf("uncommon top-level domain .%s", tld))
	}

	if n := urlkit.SubdomainCount(host); n > 2 {
		score += w.ExcessSubdomains
		f.Reasons = append(f.Reasons, fmt.Sprintf("%d subdomains", n))
	}

	if sensitivePathPattern.MatchString(path) {
		score += w.SensitivePathWord
		f.Reasons = append(f.Reasons, "sensitive keyword in path")
	}

	if f.IsShortener {
		score += w.ShortenerInUse
		f.Reasons = append(f.Reasons, "URL shortening service")
	}

	reg := urlkit.RegistrableDomain(host)
	for brand, canonical := range brandDomains {
		if strings.Contains(host, brand) && reg != canonical {
			score += w.BrandLookalike
			f.Reasons = append(f.Reasons, "possible impersonation of "+canonical)
			break
		}
	}

	if final := finalRedirectHost(f.RedirectChain); final != "" && !urlkit.SameDomain(host, final) {
		score += w.CrossDomainRedirect
		f.Reasons = append(f.Reasons, "redirects to a different domain")
	}

	if f.SSL != nil && !f.SSL.Valid {
		score += w.InvalidSSL
		f.Reasons = append(f.Reasons, "invalid or expired certificate")
	}

	if f.DomainAge != nil && f.DomainAge.Error == "" && f.DomainAge.AgeDays < w.YoungDomainDays {
		score += w.YoungDomain
		f.Reasons = append(f.Reasons, fmt.Sprintf("domain registered %d days ago", f.DomainAge.AgeDays))
	}

	if f.Reputation != nil && f.Reputation.Malicious > 0 {
		score += w.PerMaliciousVote * f.Reputation.Malicious
		f.Reasons = append(f.Reasons, fmt.Sprintf("%d malicious reputation votes", f.Reputation.Malicious))
	}

	if vpnHosted(f.Geo) {
		score += w.VPNOrProxyHost
		f.Reasons = append(f.Reasons, "VPN or proxy hosting")
	}

	if len(f.Reasons) == 0 && !allowlisted(reg) {
		score = w.UnknownDomainFloor
		f.Reasons = append(f.Reasons, "domain not commonly recognized")
	}

	f.RiskScore = scoring.Clamp(score)
	f.RiskLevel = scoring.LevelFor(f.RiskScore, t)
}

func finalRedirectHost(chain []models.RedirectHop) string {
	if len(chain) == 0 {
		return ""
	}
	u, err := urlkit.Normalize(chain[len(chain)-1].URL)
	if err != nil {
		return ""
	}
	return urlkit.Host(u)
}

func vpnHosted(geo []models.GeoRecord) bool {
	for _, g := range geo {
		if g.VPN != nil && g.VPN.IsVPNOrProxy {
			return true
		}
	}
	return false
}

func allowlisted(registrable string) bool {
	for _, d := range allowlistedDomains {
		if registrable == d {
			return true
		}
	}
	return false
}
