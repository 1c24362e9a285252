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

// Package ipintel resolves domains and classifies IP infrastructure:
// geolocation, ASN/datacenter labels and VPN/proxy verdicts.
package ipintel

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
)

// defaultResolvers are queried in order until one answers.
var defaultResolvers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// Resolver answers A-record queries against explicit public resolvers so
// lookups honor the caller's context deadline instead of the host stub
// resolver's own timeouts.
type Resolver struct {
	client  *dns.Client
	servers []string
}

// NewResolver creates a resolver. With no servers given it uses well-known
// public ones.
func NewResolver(servers ...string) *Resolver {
	if len(servers) == 0 {
		servers = defaultResolvers
	}
	return &Resolver{client: new(dns.Client), servers: servers}
}

// LookupA resolves the domain's IPv4 addresses.
func (r *Resolver) LookupA(ctx context.Context, domain string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil || resp == nil {
			lastErr = err
			continue
		}
		var ips []string
		for _, ans := range resp.Answer {
			if a, ok := ans.(*dns.A); ok {
				ips = append(ips, a.A.String())
			}
		}
		if len(ips) > 0 {
			return ips, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("resolve %s: %w", domain, lastErr)
	}
	return nil, fmt.Errorf("resolve %s: no A records", domain)
}
