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

// Package urlintel orchestrates the per-URL signal lookups — shortener
// expansion, redirect following, certificate validation, domain age,
// reputation, DNS resolution and IP geolocation — and folds them into one
// scored finding. Every lookup can fail independently; a failure becomes an
// error annotation on the finding, never an aborted analysis.
package urlintel

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/models"
	"github.com/bcem/analysis/internal/urlkit"
)

// Certifier validates a host's TLS certificate.
type Certifier interface {
	Check(ctx context.Context, host string) (models.SSLInfo, error)
}

// DomainAger resolves a domain's registration age.
type DomainAger interface {
	Lookup(ctx context.Context, domain string) (models.DomainAgeInfo, error)
}

// ReputationSource resolves a domain's malicious/suspicious vote counts.
type ReputationSource interface {
	Lookup(ctx context.Context, domain string) (models.ReputationInfo, error)
}

// GeoSource resolves geolocation intelligence for one IP.
type GeoSource interface {
	Lookup(ctx context.Context, ip string) (models.GeoRecord, error)
}

// HostResolver resolves a domain's IPv4 addresses.
type HostResolver interface {
	LookupA(ctx context.Context, domain string) ([]string, error)
}

// Analyzer fans out the signal lookups for each URL.
type Analyzer struct {
	httpClient *http.Client // never follows redirects; the chain is walked explicitly
	certs      Certifier
	age        DomainAger
	reputation ReputationSource
	geo        GeoSource
	resolver   HostResolver

	weights       config.Weights
	thresholds    config.Thresholds
	hopLimit      int
	lookupTimeout time.Duration
}

// Options wires the analyzer's collaborators and tuning.
type Options struct {
	HTTPClient    *http.Client
	Certs         Certifier
	Age           DomainAger
	Reputation    ReputationSource
	Geo           GeoSource
	Resolver      HostResolver
	Weights       config.Weights
	Thresholds    config.Thresholds
	HopLimit      int
	LookupTimeout time.Duration
}

// New creates a URL analyzer. The HTTP client is cloned with redirect
// following disabled so hops can be recorded one at a time.
func New(opts Options) *Analyzer {
	client := *opts.HTTPClient
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Analyzer{
		httpClient:    &client,
		certs:         opts.Certs,
		age:           opts.Age,
		reputation:    opts.Reputation,
		geo:           opts.Geo,
		resolver:      opts.Resolver,
		weights:       opts.Weights,
		thresholds:    opts.Thresholds,
		hopLimit:      opts.HopLimit,
		lookupTimeout: opts.LookupTimeout,
	}
}

// Analyze produces a scored finding for one raw URL. A parse failure yields
// an immediate fixed-penalty finding; otherwise the external lookups run
// concurrently, each bounded by the per-call timeout, before the additive
// scoring pass.
func (a *Analyzer) Analyze(ctx context.Context, raw string) models.URLFinding {
	finding := models.URLFinding{RawURL: raw}

	u, err := urlkit.Normalize(raw)
	if err != nil {
		finding.ParseError = err.Error()
		scoreFinding(&finding, "", a.weights, a.thresholds)
		return finding
	}

	host := urlkit.Host(u)
	finding.Domain = host
	finding.IsShortener = urlkit.IsShortener(host)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.expandAndFollow(ctx, u, &finding)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		callCtx, cancel := a.callContext(ctx)
		defer cancel()
		info, err := a.certs.Check(callCtx, host)
		if err != nil {
			info = models.SSLInfo{Valid: false, Error: lookupError(callCtx, err)}
		}
		finding.SSL = &info
	}()

	if !urlkit.IsIPLiteral(host) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := a.callContext(ctx)
			defer cancel()
			info, err := a.age.Lookup(callCtx, host)
			if err != nil {
				info = models.DomainAgeInfo{Error: lookupError(callCtx, err)}
			}
			finding.DomainAge = &info
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := a.callContext(ctx)
			defer cancel()
			info, err := a.reputation.Lookup(callCtx, host)
			if err != nil {
				info = models.ReputationInfo{Error: lookupError(callCtx, err)}
			}
			finding.Reputation = &info
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.resolveAndLocate(ctx, host, &finding)
	}()

	wg.Wait()

	scoreFinding(&finding, u.Path, a.weights, a.thresholds)
	return finding
}

// expandAndFollow records the expanded target for shortened URLs and walks
// the full redirect chain up to the hop limit.
func (a *Analyzer) expandAndFollow(ctx context.Context, u *url.URL, finding *models.URLFinding) {
	callCtx, cancel := a.callContext(ctx)
	defer cancel()

	if finding.IsShortener {
		target, err := a.headLocation(callCtx, u.String())
		if err != nil {
			finding.ExpandError = lookupError(callCtx, err)
		} else if target != "" {
			finding.ExpandedURL = target
		}
	}

	current := u.String()
	for hop := 0; hop < a.hopLimit; hop++ {
		req, err := http.NewRequestWithContext(callCtx, http.MethodHead, current, nil)
		if err != nil {
			return
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return
		}
		resp.Body.Close()

		finding.RedirectChain = append(finding.RedirectChain, models.RedirectHop{
			URL:        current,
			StatusCode: resp.StatusCode,
			Timestamp:  time.Now().UTC(),
		})

		loc := resp.Header.Get("Location")
		if resp.StatusCode < 300 || resp.StatusCode >= 400 || loc == "" {
			return
		}
		next, err := req.URL.Parse(loc)
		if err != nil {
			return
		}
		current = next.String()
	}
}

// headLocation issues one non-following HEAD and returns the Location
// header, if any.
func (a *Analyzer) headLocation(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	return resp.Header.Get("Location"), nil
}

// resolveAndLocate resolves the host's A records and attaches a GeoRecord
// per IP. An IP-literal host skips resolution and geolocates directly.
func (a *Analyzer) resolveAndLocate(ctx context.Context, host string, finding *models.URLFinding) {
	callCtx, cancel := a.callContext(ctx)
	defer cancel()

	var ips []string
	if urlkit.IsIPLiteral(host) {
		ips = []string{host}
	} else {
		var err error
		ips, err = a.resolver.LookupA(callCtx, host)
		if err != nil {
			finding.ResolveError = lookupError(callCtx, err)
			return
		}
	}
	finding.IPs = ips

	for _, ip := range ips {
		rec, err := a.geo.Lookup(callCtx, ip)
		if err != nil {
			rec = models.GeoRecord{IP: ip, Error: lookupError(callCtx, err)}
		}
		finding.Geo = append(finding.Geo, rec)
	}
}

func (a *Analyzer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.lookupTimeout)
}

// lookupError renders a lookup failure for the finding, naming timeouts
// explicitly so operators can tell a slow dependency from a broken one.
func lookupError(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "timeout: " + err.Error()
	}
	return err.Error()
}
