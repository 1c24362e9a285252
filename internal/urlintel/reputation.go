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
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/lookupcache"
	"github.com/bcem/analysis/internal/models"
)

// ReputationClient queries a domain-reputation source for malicious and
// suspicious vote counts. Authentication is an API-key header by default;
// when OAuth2 client credentials are configured the requests carry a bearer
// token instead.
type ReputationClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	cache      *lookupcache.Cache
}

// NewReputationClient creates a reputation client from service config. The
// context scopes the OAuth2 token source when client credentials are in use.
func NewReputationClient(ctx context.Context, httpClient *http.Client, svc config.ServiceConfig, cache *lookupcache.Cache) *ReputationClient {
	client := httpClient
	if svc.ClientID != "" && svc.ClientSecret != "" && svc.TokenURL != "" {
		creds := &clientcredentials.Config{
			ClientID:     svc.ClientID,
			ClientSecret: svc.ClientSecret,
			TokenURL:     svc.TokenURL,
		}
		client = creds.Client(ctx)
		client.Timeout = httpClient.Timeout
	}
	return &ReputationClient{
		httpClient: client,
		endpoint:   strings.TrimRight(svc.Endpoint, "/"),
		apiKey:     svc.APIKey,
		cache:      cache,
	}
}

// reputationResponse mirrors the relevant slice of the reputation API reply.
type reputationResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Lookup returns the vote counts for a domain, cached per domain.
func (r *ReputationClient) Lookup(ctx context.Context, domain string) (models.ReputationInfo, error) {
	key := lookupcache.Key("reputation", domain)
	info, _, err := lookupcache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) (models.ReputationInfo, error) {
		return r.fetch(ctx, domain)
	})
	return info, err
}

func (r *ReputationClient) fetch(ctx context.Context, domain string) (models.ReputationInfo, error) {
	url := fmt.Sprintf("%s/domains/%s", r.endpoint, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.ReputationInfo{}, fmt.Errorf("build reputation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("x-apikey", r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return models.ReputationInfo{}, fmt.Errorf("reputation lookup %s: %w", domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ReputationInfo{}, fmt.Errorf("reputation lookup %s: status %d", domain, resp.StatusCode)
	}

	var body reputationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.ReputationInfo{}, fmt.Errorf("decode reputation response: %w", err)
	}

	return models.ReputationInfo{
		Malicious:  body.Data.Attributes.LastAnalysisStats.Malicious,
		Suspicious: body.Data.Attributes.LastAnalysisStats.Suspicious,
	}, nil
}
