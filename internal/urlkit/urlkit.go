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

// Package urlkit provides pure URL and domain primitives used by the scoring
// pipeline: normalization, domain extraction, shortener detection and the
// lexical host signals. No I/O.
package urlkit

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// shortenerDomains are known URL-shortening services.
var shortenerDomains = map[string]bool{
	"bit.ly":      true,
	"tinyurl.com": true,
	"goo.gl":      true,
	"t.co":        true,
	"ow.ly":       true,
	"is.gd":       true,
	"buff.ly":     true,
	"rebrand.ly":  true,
	"cutt.ly":     true,
	"tiny.cc":     true,
	"bl.ink":      true,
	"shorturl.at": true,
	"rb.gy":       true,
	"tr.im":       true,
	"x.co":        true,
	"cli.gs":      true,
}

// urlPattern matches http(s) URLs and bare www. hosts in body text.
var urlPattern = regexp.MustCompile(`(https?://[^\s"'<>]+)|(www\.[^\s"'<>]+)`)

// Normalize parses a raw URL, prepending https:// when the scheme is absent.
func Normalize(raw string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("parse %q: empty host", raw)
	}
	return u, nil
}

// Host returns the lowercased hostname of a URL without port.
func Host(u *url.URL) string {
	return strings.ToLower(u.Hostname())
}

// IsShortener reports whether the host belongs to a known shortening service.
func IsShortener(host string) bool {
	return shortenerDomains[strings.ToLower(host)]
}

// IsIPLiteral reports whether the host is a bare IP address.
func IsIPLiteral(host string) bool {
	return net.ParseIP(host) != nil
}

// RegistrableDomain returns the eTLD+1 for a host ("a.b.example.co.uk" →
// "example.co.uk"). For IP literals and unrecognized hosts it returns the
// host unchanged.
func RegistrableDomain(host string) string {
	host = strings.ToLower(host)
	if IsIPLiteral(host) {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// TLD returns the public suffix of a host ("login.example.xyz" → "xyz").
// Empty for IP literals.
func TLD(host string) string {
	host = strings.ToLower(host)
	if IsIPLiteral(host) {
		return ""
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	return suffix
}

// SubdomainCount returns the number of labels left of the registrable domain.
// "a.b.example.com" → 2, "example.com" → 0.
func SubdomainCount(host string) int {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if IsIPLiteral(host) {
		return 0
	}
	reg := RegistrableDomain(host)
	if host == reg {
		return 0
	}
	prefix := strings.TrimSuffix(host, "."+reg)
	if prefix == host {
		return 0
	}
	return strings.Count(prefix, ".") + 1
}

// SameDomain reports whether two hosts share a registrable domain,
// case-insensitively.
func SameDomain(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return RegistrableDomain(a) == RegistrableDomain(b)
}

// ExtractURLs pulls unique URLs out of message body text, normalizing bare
// www. hosts to https. Order of first appearance is preserved.
func ExtractURLs(body string) []string {
	if body == "" {
		return nil
	}
	matches := urlPattern.FindAllString(body, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;)")
		if strings.HasPrefix(m, "www.") {
			m = "https://" + m
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// AddressDomain returns the lowercased domain part of an email address,
// tolerating display-name forms like `Name <user@example.com>`.
func AddressDomain(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr[at+1:]))
}
