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

// Package config loads configuration from config.yaml and environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AnalysisConfig holds credentials for the external analysis service.
type AnalysisConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Config holds all configuration for the pipeline services.
type Config struct {
	// Storage
	DatabaseURL string

	// Redis
	RedisURL    string
	ImportQueue string // import jobs for ingestd
	EnrichQueue string // enrichment tasks for enrichd

	// Company resolution
	FreeMailDomains []string
	SelfDomain      string // the archive owner's domain; marks outgoing mail

	// Threading
	SubjectWindow time.Duration

	// Storage retry policy
	RetryAttempts int
	RetryBase     time.Duration

	// Enrichment worker
	Analysis      AnalysisConfig
	SweepInterval time.Duration
	SweepBatch    int

	// Server (health check only)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Imports    string `yaml:"imports"`
			Enrichment string `yaml:"enrichment"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Company struct {
		SelfDomain      string   `yaml:"self_domain"`
		FreeMailDomains []string `yaml:"free_mail_domains"`
	} `yaml:"company"`
	Analysis struct {
		BaseURL      string   `yaml:"base_url"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		TokenURL     string   `yaml:"token_url"`
		Scopes       []string `yaml:"scopes"`
	} `yaml:"analysis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// Pure environment configuration is fine.
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL:     firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		ImportQueue:     firstNonEmpty(raw.Redis.Queues.Imports, envOrDefault("IMPORT_QUEUE", "imports")),
		EnrichQueue:     firstNonEmpty(raw.Redis.Queues.Enrichment, envOrDefault("ENRICH_QUEUE", "enrichment")),
		FreeMailDomains: raw.Company.FreeMailDomains,
		SelfDomain:      firstNonEmpty(raw.Company.SelfDomain, os.Getenv("SELF_DOMAIN")),
		SubjectWindow:   envOrDefaultDuration("THREAD_SUBJECT_WINDOW", 7*24*time.Hour),
		RetryAttempts:   envOrDefaultInt("STORAGE_RETRY_ATTEMPTS", 3),
		RetryBase:       envOrDefaultDuration("STORAGE_RETRY_BASE", 100*time.Millisecond),
		SweepInterval:   envOrDefaultDuration("SWEEP_INTERVAL", 5*time.Minute),
		SweepBatch:      envOrDefaultInt("SWEEP_BATCH", 50),
		Port:            envOrDefaultInt("PORT", 8080),
		Analysis: AnalysisConfig{
			BaseURL:      firstNonEmpty(raw.Analysis.BaseURL, os.Getenv("ANALYSIS_BASE_URL")),
			ClientID:     firstNonEmpty(raw.Analysis.ClientID, os.Getenv("ANALYSIS_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Analysis.ClientSecret, os.Getenv("ANALYSIS_CLIENT_SECRET")),
			TokenURL:     firstNonEmpty(raw.Analysis.TokenURL, os.Getenv("ANALYSIS_TOKEN_URL")),
			Scopes:       raw.Analysis.Scopes,
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required — set it in config.yaml or the environment")
	}

	return cfg, nil
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
