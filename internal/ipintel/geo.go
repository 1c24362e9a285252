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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bcem/analysis/internal/lookupcache"
	"github.com/bcem/analysis/internal/models"
)

// GeoClient fetches per-IP geolocation records through the lookup cache, so
// two concurrent analyses of the same IP cost one upstream call and a record
// is reused for the full retention window.
type GeoClient struct {
	httpClient *http.Client
	endpoint   string
	cache      *lookupcache.Cache
}

// NewGeoClient creates a geolocation client against an ipwho.is-compatible
// endpoint.
func NewGeoClient(httpClient *http.Client, endpoint string, cache *lookupcache.Cache) *GeoClient {
	return &GeoClient{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(endpoint, "/"),
		cache:      cache,
	}
}

// geoResponse mirrors the relevant fields of the geolocation service reply.
type geoResponse struct {
	Success     *bool   `json:"success,omitempty"`
	Message     string  `json:"message,omitempty"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    struct {
		ID string `json:"id"`
	} `json:"timezone"`
	Connection struct {
		ASN int    `json:"asn"`
		ISP string `json:"isp"`
		Org string `json:"org"`
	} `json:"connection"`
	Security struct {
		VPN   bool `json:"vpn"`
		Proxy bool `json:"proxy"`
	} `json:"security"`
}

// Lookup returns the GeoRecord for an IP, from cache when fresh.
func (g *GeoClient) Lookup(ctx context.Context, ip string) (models.GeoRecord, error) {
	key := lookupcache.Key("geo", ip)
	rec, _, err := lookupcache.GetOrFetch(ctx, g.cache, key, func(ctx context.Context) (models.GeoRecord, error) {
		return g.fetch(ctx, ip)
	})
	return rec, err
}

func (g *GeoClient) fetch(ctx context.Context, ip string) (models.GeoRecord, error) {
	url := fmt.Sprintf("%s/%s", g.endpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.GeoRecord{}, fmt.Errorf("build geo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return models.GeoRecord{}, fmt.Errorf("geo lookup %s: %w", ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.GeoRecord{}, fmt.Errorf("geo lookup %s: status %d", ip, resp.StatusCode)
	}

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.GeoRecord{}, fmt.Errorf("decode geo response: %w", err)
	}
	if body.Success != nil && !*body.Success {
		return models.GeoRecord{}, fmt.Errorf("geo lookup %s: %s", ip, body.Message)
	}

	rec := models.GeoRecord{
		IP:          ip,
		ISP:         body.Connection.ISP,
		Org:         body.Connection.Org,
		City:        body.City,
		Region:      body.Region,
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
		Timezone:    body.Timezone.ID,
		NetworkType: ClassifyNetwork(body.Connection.Org),
		FetchedAt:   time.Now().UTC(),
	}
	if body.Connection.ASN != 0 {
		rec.ASN = fmt.Sprintf("AS%d", body.Connection.ASN)
		if dc := DatacenterLabel(rec.ASN); dc != "" {
			rec.Datacenter = dc
			if rec.City != "" {
				rec.Datacenter = dc + " - " + rec.City
			}
		}
	}

	rec.VPN = ClassifyVPN(rec.ASN, rec.Org, rec.ISP)
	// The reputation service's anonymity flags override a negative
	// heuristic verdict.
	if !rec.VPN.IsVPNOrProxy && (body.Security.VPN || body.Security.Proxy) {
		rec.VPN = &models.VPNVerdict{IsVPNOrProxy: true, Confidence: "high"}
	}

	return rec, nil
}
