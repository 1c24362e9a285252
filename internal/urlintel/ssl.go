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
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/bcem/analysis/internal/models"
)

// CertChecker validates a host's TLS certificate chain and expiry window.
type CertChecker struct {
	// Port defaults to 443.
	Port string
}

// NewCertChecker creates a certificate checker for the standard HTTPS port.
func NewCertChecker() *CertChecker {
	return &CertChecker{Port: "443"}
}

// Check performs a TLS handshake against host and reports chain validity,
// issuer and expiry. A handshake or verification failure is returned as an
// error; the caller records it on the finding as validity=false with reason.
func (c *CertChecker) Check(ctx context.Context, host string) (models.SSLInfo, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    &tls.Config{ServerName: host},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, c.Port))
	if err != nil {
		return models.SSLInfo{}, fmt.Errorf("tls handshake %s: %w", host, err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return models.SSLInfo{}, fmt.Errorf("tls handshake %s: no peer certificate", host)
	}

	leaf := state.PeerCertificates[0]
	now := time.Now()

	return models.SSLInfo{
		Valid:         now.After(leaf.NotBefore) && now.Before(leaf.NotAfter),
		Issuer:        leaf.Issuer.CommonName,
		Expiry:        leaf.NotAfter,
		DaysRemaining: int(time.Until(leaf.NotAfter).Hours() / 24),
	}, nil
}
