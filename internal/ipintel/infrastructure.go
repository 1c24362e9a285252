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

package ipintel

import (
	"strings"

	"github.com/bcem/analysis/internal/models"
)

// datacenterByASN maps AS numbers (key is the bare number) to their hosting
// provider. Exact-match lookup only.
var datacenterByASN = map[string]string{
	"16509": "AWS",
	"14618": "AWS",
	"15169": "Google Cloud",
	"8075":  "Microsoft Azure",
	"13335": "Cloudflare",
	"14061": "DigitalOcean",
	"36351": "IBM Cloud",
	"24940": "Hetzner",
	"16276": "OVH",
	"63949": "Linode",
	"20473": "Vultr",
}

// proxyASNs are networks commonly fronting proxies and anonymizers.
var proxyASNs = map[string]bool{
	"14061": true, // DigitalOcean
	"16509": true, // Amazon AWS
	"14618": true, // Amazon AWS
	"15169": true, // Google Cloud
	"8075":  true, // Microsoft Azure
	"36351": true, // SoftLayer
	"13335": true, // Cloudflare
	"46606": true, // Unified Layer
	"174":   true, // Cogent
	"3356":  true, // Level 3
}

// vpnProviders are matched as substrings of the ISP/org name.
var vpnProviders = []string{
	"nordvpn", "expressvpn", "privatevpn", "protonvpn", "ipvanish",
	"surfshark", "purevpn", "vyprvpn", "torguard", "mullvad",
	"privateinternetaccess", "cyberghost", "hidemyass", "tunnelbear",
	"windscribe",
}

var (
	cloudProviders = []string{
		"amazon", "aws", "google", "azure", "microsoft", "digitalocean",
		"linode", "vultr", "ovh", "rackspace", "cloudflare", "hetzner",
	}
	residentialISPs = []string{
		"comcast", "xfinity", "verizon", "at&t", "spectrum",
		"cox", "charter", "centurylink", "frontier", "optimum",
	}
	mobileCarriers = []string{
		"t-mobile", "sprint", "verizon wireless", "vodafone",
		"telefonica", "orange", "o2", "ee", "three",
	}
)

// DatacenterLabel returns the provider name for an AS number ("AS16509" or
// "16509"), or empty when unknown.
func DatacenterLabel(asn string) string {
	return datacenterByASN[strings.TrimPrefix(strings.ToUpper(asn), "AS")]
}

// ClassifyNetwork buckets an organization string into a coarse network type.
func ClassifyNetwork(org string) string {
	lower := strings.ToLower(org)
	if containsAny(lower, cloudProviders) {
		return "datacenter"
	}
	if containsAny(lower, residentialISPs) {
		return "residential"
	}
	if containsAny(lower, mobileCarriers) {
		return "mobile"
	}
	if containsAny(lower, []string{"business", "corporate", "enterprise", "inc", "llc", "ltd"}) {
		return "business"
	}
	return "unknown"
}

// ClassifyVPN produces a VPN/proxy verdict from the ASN and org/ISP strings.
// A provider-name match is high confidence; a proxy ASN alone is low.
func ClassifyVPN(asn, org, isp string) *models.VPNVerdict {
	haystack := strings.ToLower(org + " " + isp)
	for _, provider := range vpnProviders {
		if strings.Contains(haystack, provider) {
			return &models.VPNVerdict{
				IsVPNOrProxy: true,
				Provider:     provider,
				Confidence:   "high",
			}
		}
	}
	if proxyASNs[strings.TrimPrefix(strings.ToUpper(asn), "AS")] {
		return &models.VPNVerdict{
			IsVPNOrProxy: true,
			ProxyASN:     true,
			Confidence:   "low",
		}
	}
	return &models.VPNVerdict{Confidence: "low"}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
