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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bcem/analysis/internal/lookupcache"
	"github.com/bcem/analysis/internal/models"
)

// AgeClient resolves domain registration age through a JSON WHOIS service.
// Results go through the lookup cache: registration data moves slowly, so a
// cached answer inside the retention window is authoritative.
type AgeClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	cache      *lookupcache.Cache
}

// NewAgeClient creates a domain-age client.
func NewAgeClient(httpClient *http.Client, endpoint, apiKey string, cache *lookupcache.Cache) *AgeClient {
	return &AgeClient{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		cache:      cache,
	}
}

// whoisResponse mirrors the WHOIS service reply. Services disagree on field
// names for the creation date, so both common spellings are accepted.
type whoisResponse struct {
	CreationDate string `json:"creation_date"`
	CreatedAt    string `json:"created_at"`
	Registrar    string `json:"registrar"`
}

// Lookup returns the domain's registration age in days and registrar.
func (a *AgeClient) Lookup(ctx context.Context, domain string) (models.DomainAgeInfo, error) {
	key := lookupcache.Key("whois", domain)
	info, _, err := lookupcache.GetOrFetch(ctx, a.cache, key, func(ctx context.Context) (models.DomainAgeInfo, error) {
		return a.fetch(ctx, domain)
	})
	if err != nil {
		return models.DomainAgeInfo{}, err
	}
	// Age is relative to now, not to fetch time; recompute on cache hits.
	if !info.CreatedAt.IsZero() {
		info.AgeDays = int(time.Since(info.CreatedAt).Hours() / 24)
	}
	return info, nil
}

func (a *AgeClient) fetch(ctx context.Context, domain string) (models.DomainAgeInfo, error) {
	reqURL := fmt.Sprintf("%s/whois?domain=%s", a.endpoint, url.QueryEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.DomainAgeInfo{}, fmt.Errorf("build whois request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return models.DomainAgeInfo{}, fmt.Errorf("whois lookup %s: %w", domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.DomainAgeInfo{}, fmt.Errorf("whois lookup %s: status %d", domain, resp.StatusCode)
	}

	var body whoisResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.DomainAgeInfo{}, fmt.Errorf("decode whois response: %w", err)
	}

	raw := body.CreationDate
	if raw == "" {
		raw = body.CreatedAt
	}
	if raw == "" {
		return models.DomainAgeInfo{}, fmt.Errorf("whois lookup %s: no creation date", domain)
	}

	created, err := parseWhoisDate(raw)
	if err != nil {
		return models.DomainAgeInfo{}, fmt.Errorf("whois lookup %s: %w", domain, err)
	}

	registrar := body.Registrar
	if registrar == "" {
		registrar = "Unknown"
	}

	return models.DomainAgeInfo{
		AgeDays:   int(time.Since(created).Hours() / 24),
		CreatedAt: created,
		Registrar: registrar,
	}, nil
}

// whoisDateLayouts are the timestamp formats seen across registrar backends.
var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseWhoisDate(raw string) (time.Time, error) {
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable creation date %q", raw)
}
