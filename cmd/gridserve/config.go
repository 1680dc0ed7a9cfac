package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nicolagi/gridserve/resolve"
	"github.com/rogpeppe/rjson"
)

type config struct {
	Listen string `json:"listen"`
	Debug  bool   `json:"debug"`

	Backend string `json:"backend"`

	// Properties for the "gridfs" backend.
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	Bucket   string `json:"bucket"`

	// Properties for the "s3" backend.
	S3Profile string `json:"s3_profile"`
	S3Region  string `json:"s3_region"`
	S3Bucket  string `json:"s3_bucket"`

	// Properties for the "bolt" and "disk" backends.
	BoltFile string `json:"bolt_file"`
	DiskDir  string `json:"disk_dir"`

	Prefix string `json:"prefix"`
	Lookup string `json:"lookup"`

	FallbackRules     string `json:"fallback_rules"`
	FallbackStatus    int    `json:"fallback_status"`
	FallbackCacheSize int    `json:"fallback_cache_size"`
	FallbackCacheTTL  string `json:"fallback_cache_ttl"`

	LookupsPerSecond float64 `json:"lookups_per_second"`
}

func loadConfig(pathname string) (*config, error) {
	f, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	var c *config
	if err := rjson.NewDecoder(f).Decode(&c); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New("empty configuration")
	}
	return c, nil
}

func (c *config) applyDefaultsForMissingProperties() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Backend == "" {
		c.Backend = "gridfs"
	}
	if c.Hostname == "" {
		c.Hostname = "localhost"
	}
	if c.Port == 0 {
		c.Port = 27017
	}
	if c.Bucket == "" {
		c.Bucket = "fs"
	}
	if c.Prefix == "" {
		c.Prefix = "gridfs"
	}
	if c.Lookup == "" {
		c.Lookup = "id"
	}
	if c.FallbackRules == "" {
		c.FallbackRules = "avatar"
	}
	if c.FallbackCacheTTL == "" {
		c.FallbackCacheTTL = "10m"
	}
	if c.BoltFile == "" {
		c.BoltFile = "$HOME/lib/gridserve/files.db"
	}
	if c.DiskDir == "" {
		c.DiskDir = "$HOME/lib/gridserve/data"
	}
}

// settings are the parsed, validated parts of the configuration.
type settings struct {
	mode           resolve.Mode
	ruleset        resolve.Ruleset
	fallbackStatus int
	cacheTTL       time.Duration
}

func (c *config) settings() (s settings, err error) {
	if s.mode, err = resolve.ParseMode(c.Lookup); err != nil {
		return s, err
	}
	if s.ruleset, err = resolve.RulesetByName(c.FallbackRules); err != nil {
		return s, err
	}
	switch c.FallbackStatus {
	case 0:
		s.fallbackStatus = s.ruleset.DefaultStatus
	case http.StatusOK, http.StatusFound:
		s.fallbackStatus = c.FallbackStatus
	default:
		return s, fmt.Errorf("fallback_status must be %d or %d, got %d", http.StatusOK, http.StatusFound, c.FallbackStatus)
	}
	if s.cacheTTL, err = time.ParseDuration(c.FallbackCacheTTL); err != nil {
		return s, fmt.Errorf("fallback_cache_ttl: %w", err)
	}
	switch c.Backend {
	case "gridfs":
		if c.Database == "" {
			return s, errors.New("database is required for the gridfs backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return s, errors.New("s3_bucket is required for the s3 backend")
		}
	case "bolt", "disk":
	default:
		return s, fmt.Errorf("unknown backend %q", c.Backend)
	}
	return s, nil
}
