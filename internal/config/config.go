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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bcem/analysis/internal/models"
)

// ServiceConfig holds the endpoint and credentials for one external lookup
// service. ClientID/ClientSecret/TokenURL are only used by services that
// authenticate via OAuth2 client credentials; the rest use APIKey.
type ServiceConfig struct {
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"api_key"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
}

// Weights holds every scoring constant used by the pipeline. The defaults
// mirror the heuristics the product shipped with; keeping them here lets
// operators recalibrate without a code change.
type Weights struct {
	// Header analyzer
	NoreplySender      int `yaml:"noreply_sender"`
	SenderKeyword      int `yaml:"sender_keyword"`
	ReturnPathMismatch int `yaml:"return_path_mismatch"`
	ExcessiveHops      int `yaml:"excessive_hops"`
	KnownRelay         int `yaml:"known_relay"`

	// Content analyzer
	Urgency           int `yaml:"urgency"`
	FinancialTerms    int `yaml:"financial_terms"`
	CredentialRequest int `yaml:"credential_request"`
	Misspelling       int `yaml:"misspelling"`
	SubjectKeyword    int `yaml:"subject_keyword"`

	// URL intelligence
	MalformedURL        int `yaml:"malformed_url"`
	IPLiteralHost       int `yaml:"ip_literal_host"`
	DenylistedTLD       int `yaml:"denylisted_tld"`
	ExcessSubdomains    int `yaml:"excess_subdomains"`
	SensitivePathWord   int `yaml:"sensitive_path_word"`
	ShortenerInUse      int `yaml:"shortener_in_use"`
	BrandLookalike      int `yaml:"brand_lookalike"`
	CrossDomainRedirect int `yaml:"cross_domain_redirect"`
	InvalidSSL          int `yaml:"invalid_ssl"`
	YoungDomain         int `yaml:"young_domain"`
	PerMaliciousVote    int `yaml:"per_malicious_vote"`
	VPNOrProxyHost      int `yaml:"vpn_or_proxy_host"`
	UnknownDomainFloor  int `yaml:"unknown_domain_floor"`

	// Attachment intelligence
	DangerousExtension int `yaml:"dangerous_extension"`
	MIMEMismatch       int `yaml:"mime_mismatch"`
	TamperIndicator    int `yaml:"tamper_indicator"`
	KnownMalware       int `yaml:"known_malware"`

	// Aggregation contribution weights, applied to the max-folded
	// attachment and URL scores.
	AttachmentContribution float64 `yaml:"attachment_contribution"`
	URLContribution        float64 `yaml:"url_contribution"`

	// YoungDomainDays is the registration-age threshold below which a
	// domain is treated as newly registered.
	YoungDomainDays int `yaml:"young_domain_days"`
}

// Thresholds holds the canonical risk table and the flagging level. The table
// is monotonic: total<Medium ⇒ Low, <High ⇒ Medium, <Critical ⇒ High, else
// Critical.
type Thresholds struct {
	Medium    int              `yaml:"medium"`
	High      int              `yaml:"high"`
	Critical  int              `yaml:"critical"`
	FlagLevel models.RiskLevel `yaml:"flag_level"`
}

// Config holds all configuration for the analysis service.
type Config struct {
	// Storage
	DatabaseURL string
	RedisURL    string
	EmailsQueue string

	// External lookup services
	Reputation  ServiceConfig
	Geolocation ServiceConfig
	MalwareHash ServiceConfig
	Whois       ServiceConfig

	// Pipeline tuning
	LookupTimeout    time.Duration
	AnalysisDeadline time.Duration
	CacheTTLDays     int
	FanOutLimit      int
	RedirectHopLimit int
	LookupRate       float64
	LookupBurst      int
	Workers          int

	Weights    Weights
	Thresholds Thresholds
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Emails string `yaml:"emails"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Services struct {
		Reputation  ServiceConfig `yaml:"reputation"`
		Geolocation ServiceConfig `yaml:"geolocation"`
		MalwareHash ServiceConfig `yaml:"malware_hash"`
		Whois       ServiceConfig `yaml:"whois"`
	} `yaml:"services"`
	Pipeline struct {
		LookupTimeout    string  `yaml:"lookup_timeout"`
		AnalysisDeadline string  `yaml:"analysis_deadline"`
		CacheTTLDays     int     `yaml:"cache_ttl_days"`
		FanOutLimit      int     `yaml:"fan_out_limit"`
		RedirectHopLimit int     `yaml:"redirect_hop_limit"`
		LookupRate       float64 `yaml:"lookup_rate"`
		LookupBurst      int     `yaml:"lookup_burst"`
		Workers          int     `yaml:"workers"`
	} `yaml:"pipeline"`
	Weights    Weights    `yaml:"weights"`
	Thresholds Thresholds `yaml:"thresholds"`
}

// DefaultWeights returns the shipped scoring constants.
func DefaultWeights() Weights {
	return Weights{
		NoreplySender:      5,
		SenderKeyword:      10,
		ReturnPathMismatch: 15,
		ExcessiveHops:      10,
		KnownRelay:         20,

		Urgency:           10,
		FinancialTerms:    15,
		CredentialRequest: 20,
		Misspelling:       10,
		SubjectKeyword:    15,

		MalformedURL:        50,
		IPLiteralHost:       25,
		DenylistedTLD:       15,
		ExcessSubdomains:    10,
		SensitivePathWord:   15,
		ShortenerInUse:      20,
		BrandLookalike:      30,
		CrossDomainRedirect: 15,
		InvalidSSL:          25,
		YoungDomain:         20,
		PerMaliciousVote:    5,
		VPNOrProxyHost:      5,
		UnknownDomainFloor:  10,

		DangerousExtension: 25,
		MIMEMismatch:       25,
		TamperIndicator:    35,
		KnownMalware:       100,

		AttachmentContribution: 0.4,
		URLContribution:        0.4,

		YoungDomainDays: 30,
	}
}

// DefaultThresholds returns the canonical four-level risk table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Medium:    30,
		High:      50,
		Critical:  80,
		FlagLevel: models.RiskHigh,
	}
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. It fails when a required
// service endpoint is missing — a pipeline without its lookup services is a
// deployment error, not a runtime condition.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	raw := rawConfig{
		Weights:    DefaultWeights(),
		Thresholds: DefaultThresholds(),
	}
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL: firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		EmailsQueue: firstNonEmpty(raw.Redis.Queues.Emails, envOrDefault("EMAILS_QUEUE", "emails")),

		Reputation:  raw.Services.Reputation,
		Geolocation: raw.Services.Geolocation,
		MalwareHash: raw.Services.MalwareHash,
		Whois:       raw.Services.Whois,

		LookupTimeout:    durationOrDefault(raw.Pipeline.LookupTimeout, envOrDefaultDuration("LOOKUP_TIMEOUT", 5*time.Second)),
		AnalysisDeadline: durationOrDefault(raw.Pipeline.AnalysisDeadline, envOrDefaultDuration("ANALYSIS_DEADLINE", 60*time.Second)),
		CacheTTLDays:     intOrDefault(raw.Pipeline.CacheTTLDays, envOrDefaultInt("CACHE_TTL_DAYS", 30)),
		FanOutLimit:      intOrDefault(raw.Pipeline.FanOutLimit, envOrDefaultInt("FAN_OUT_LIMIT", 8)),
		RedirectHopLimit: intOrDefault(raw.Pipeline.RedirectHopLimit, envOrDefaultInt("REDIRECT_HOP_LIMIT", 5)),
		LookupRate:       floatOrDefault(raw.Pipeline.LookupRate, 10),
		LookupBurst:      intOrDefault(raw.Pipeline.LookupBurst, 20),
		Workers:          intOrDefault(raw.Pipeline.Workers, envOrDefaultInt("WORKERS", 4)),

		Weights:    raw.Weights,
		Thresholds: raw.Thresholds,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required — set database.url or DATABASE_URL")
	}
	for _, svc := range []struct {
		name string
		cfg  ServiceConfig
	}{
		{"reputation", cfg.Reputation},
		{"geolocation", cfg.Geolocation},
		{"malware_hash", cfg.MalwareHash},
		{"whois", cfg.Whois},
	} {
		if strings.TrimSpace(svc.cfg.Endpoint) == "" {
			return nil, fmt.Errorf("services.%s.endpoint is required", svc.name)
		}
	}

	if err := validateThresholds(cfg.Thresholds); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateThresholds(t Thresholds) error {
	if !(t.Medium < t.High && t.High < t.Critical) {
		return fmt.Errorf("risk thresholds must be strictly increasing, got %d/%d/%d",
			t.Medium, t.High, t.Critical)
	}
	switch t.FlagLevel {
	case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical:
		return nil
	default:
		return fmt.Errorf("invalid flag_level %q", t.FlagLevel)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func durationOrDefault(v string, fallback time.Duration) time.Duration {
	if v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func intOrDefault(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func floatOrDefault(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
