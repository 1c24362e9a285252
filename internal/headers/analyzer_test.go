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

package headers

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bcem/analysis/internal/config"
)

func hasAnomaly(anomalies []string, want string) bool {
	for _, a := range anomalies {
		if a == want {
			return true
		}
	}
	return false
}

// TestAnalyze_EmptyHeaders verifies empty input degrades to a zero score
// with the insufficient marker instead of an error.
func TestAnalyze_EmptyHeaders(t *testing.T) {
	a := New(config.DefaultWeights())

	f := a.Analyze("", "")
	if !f.Insufficient {
		t.Error("empty headers should be marked insufficient")
	}
	if f.Score != 0 {
		t.Errorf("insufficient headers should score 0, got %d", f.Score)
	}
}

// TestAnalyze_CleanHeaders verifies a normal message scores zero.
func TestAnalyze_CleanHeaders(t *testing.T) {
	a := New(config.DefaultWeights())

	raw := strings.Join([]string{
		"Received: from mail.example.com (mail.example.com [203.0.113.5]) by mx.corp.com",
		"From: Alice <alice@example.com>",
		"Return-Path: <alice@example.com>",
		"Subject: lunch",
	}, "\n")

	f := a.Analyze(raw, "alice@example.com")
	if f.Score != 0 {
		t.Errorf("clean headers should score 0, got %d (%v)", f.Score, f.Anomalies)
	}
	if len(f.Hops) != 1 {
		t.Fatalf("expected 1 hop, got %d", len(f.Hops))
	}
	if f.Hops[0].IP != "203.0.113.5" {
		t.Errorf("hop IP = %q, want 203.0.113.5", f.Hops[0].IP)
	}
}

// TestAnalyze_ReturnPathMismatch verifies the mismatch penalty and that
// subdomain relationships are tolerated.
func TestAnalyze_ReturnPathMismatch(t *testing.T) {
	w := config.DefaultWeights()
	a := New(w)

	mismatched := "From: <alice@example.com>\nReturn-Path: <bounce@other.net>"
	f := a.Analyze(mismatched, "")
	if !hasAnomaly(f.Anomalies, "return-path mismatch") {
		t.Errorf("expected return-path mismatch, got %v", f.Anomalies)
	}
	if f.Score != w.ReturnPathMismatch {
		t.Errorf("score = %d, want %d", f.Score, w.ReturnPathMismatch)
	}

	subdomain := "From: <alice@example.com>\nReturn-Path: <bounce@mail.example.com>"
	f = a.Analyze(subdomain, "")
	if hasAnomaly(f.Anomalies, "return-path mismatch") {
		t.Error("subdomain return-path should not be a mismatch")
	}
}

// TestAnalyze_ExcessiveHops verifies the relay-chain length penalty.
func TestAnalyze_ExcessiveHops(t *testing.T) {
	w := config.DefaultWeights()
	a := New(w)

	var sb strings.Builder
	for i := 0; i < 16; i++ {
		fmt.Fprintf(&sb, "Received: from relay%d.example.com by mx%d.example.com\n", i, i)
	}
	sb.WriteString("From: <alice@example.com>")

	f := a.Analyze(sb.String(), "")
	if !hasAnomaly(f.Anomalies, "excessive relay hops") {
		t.Errorf("expected excessive relay hops, got %v", f.Anomalies)
	}
	if len(f.Hops) != 16 {
		t.Errorf("expected 16 hops, got %d", len(f.Hops))
	}
}

// TestAnalyze_KnownRelay verifies relay keyword detection fires once even
// with multiple matching hops.
func TestAnalyze_KnownRelay(t *testing.T) {
	w := config.DefaultWeights()
	a := New(w)

	raw := strings.Join([]string{
		"Received: from spam-relay.cheap.example by mx.corp.com",
		"Received: from bulk-mail.cheap.example by spam-relay.cheap.example",
		"From: <alice@example.com>",
	}, "\n")

	f := a.Analyze(raw, "")
	if !hasAnomaly(f.Anomalies, "known relay") {
		t.Errorf("expected known relay, got %v", f.Anomalies)
	}
	if f.Score != w.KnownRelay {
		t.Errorf("relay penalty should apply once, score = %d, want %d", f.Score, w.KnownRelay)
	}
}

// TestAnalyze_SenderHeuristics verifies noreply and keyword sender penalties
// stack, and that the fallback sender is used when no From line exists.
func TestAnalyze_SenderHeuristics(t *testing.T) {
	w := config.DefaultWeights()
	a := New(w)

	f := a.Analyze("Received: from mail.example.com by mx.corp.com", "noreply-security@example-bank.com")
	if !hasAnomaly(f.Anomalies, "noreply sender") {
		t.Errorf("expected noreply sender, got %v", f.Anomalies)
	}
	if !hasAnomaly(f.Anomalies, "sender keyword: security") {
		t.Errorf("expected sender keyword, got %v", f.Anomalies)
	}
	if f.Score != w.NoreplySender+w.SenderKeyword {
		t.Errorf("score = %d, want %d", f.Score, w.NoreplySender+w.SenderKeyword)
	}
}

// TestAnalyze_HopOrder verifies Received lines are reversed into
// origin-first order.
func TestAnalyze_HopOrder(t *testing.T) {
	a := New(config.DefaultWeights())

	raw := strings.Join([]string{
		"Received: from last.example.com by mx.corp.com",
		"Received: from origin.example.com (origin.example.com [198.51.100.7]) by last.example.com",
		"From: <alice@example.com>",
	}, "\n")

	f := a.Analyze(raw, "")
	if len(f.Hops) != 2 {
		t.Fatalf("expected 2 hops, got %d", len(f.Hops))
	}
	if f.Hops[0].From != "origin.example.com" {
		t.Errorf("first hop should be the origin, got %q", f.Hops[0].From)
	}
	if OriginIP(f) != "198.51.100.7" {
		t.Errorf("OriginIP = %q, want 198.51.100.7", OriginIP(f))
	}
}

// TestUnfold verifies RFC 5322 continuation lines join their parent.
func TestUnfold(t *testing.T) {
	raw := "Received: from a.example.com\n\tby b.example.com\nFrom: <x@example.com>"
	lines := unfold(raw)
	if len(lines) != 2 {
		t.Fatalf("expected 2 logical lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "by b.example.com") {
		t.Errorf("continuation not joined: %q", lines[0])
	}
}
