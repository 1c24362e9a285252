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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/lookupcache"
	"github.com/bcem/analysis/internal/models"
)

// MalwareClient queries a hash-reputation service for known-malicious
// file digests. Results are cached by SHA-256, which is stable for the
// life of the content.
type MalwareClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	cache      *lookupcache.Cache
}

func NewMalwareClient(httpClient *http.Client, svc config.ServiceConfig, cache *lookupcache.Cache) *MalwareClient {
	return &MalwareClient{
		httpClient: httpClient,
		endpoint:   svc.Endpoint,
		apiKey:     svc.APIKey,
		cache:      cache,
	}
}

type malwareResponse struct {
	Found      bool `json:"found"`
	Detections int  `json:"detections"`
}

// Check looks up the SHA-256 digest. A transport or service failure is
// reported in the result's Error field with Checked=false so callers can
// tell "clean" apart from "unchecked".
func (c *MalwareClient) Check(ctx context.Context, hashes models.HashSet) models.MalwareCheck {
	key := lookupcache.Key("malware", hashes.SHA256)
	check, _, err := lookupcache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (models.MalwareCheck, error) {
		return c.fetch(ctx, hashes.SHA256)
	})
	if err != nil {
		return models.MalwareCheck{Error: err.Error()}
	}
	return check
}

func (c *MalwareClient) fetch(ctx context.Context, sha256Hex string) (models.MalwareCheck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/files/"+sha256Hex, nil)
	if err != nil {
		return models.MalwareCheck{}, fmt.Errorf("build malware request: %w", err)
	}
	req.Header.Set("x-apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.MalwareCheck{}, fmt.Errorf("malware lookup %s: %w", sha256Hex, err)
	}
	defer resp.Body.Close()

	// 404 means the hash is simply unknown to the service.
	if resp.StatusCode == http.StatusNotFound {
		return models.MalwareCheck{Checked: true, CheckedAt: time.Now().UTC()}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return models.MalwareCheck{}, fmt.Errorf("malware lookup %s: status %d", sha256Hex, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.MalwareCheck{}, fmt.Errorf("read malware response: %w", err)
	}
	var mr malwareResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return models.MalwareCheck{}, fmt.Errorf("decode malware response: %w", err)
	}

	return models.MalwareCheck{
		Checked:    true,
		Known:      mr.Found,
		Detections: mr.Detections,
		CheckedAt:  time.Now().UTC(),
	}, nil
}
