package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML file named by CONFIG_FILE. It only carries
// non-secret tuning; credentials stay in env.
type FileConfig struct {
	Store struct {
		Backend string `yaml:"backend"`
	} `yaml:"store"`

	Vapi struct {
		BaseURL     string        `yaml:"base_url"`
		HTTPTimeout time.Duration `yaml:"http_timeout"`
	} `yaml:"vapi"`

	Reconcile struct {
		Grace       time.Duration `yaml:"grace"`
		MaxAttempts int           `yaml:"max_attempts"`
		BackoffUnit time.Duration `yaml:"backoff_unit"`
		LeaseTTL    time.Duration `yaml:"lease_ttl"`
	} `yaml:"reconcile"`

	Firestore struct {
		ProjectID string `yaml:"project_id"`
	} `yaml:"firestore"`
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func (fc FileConfig) applyTo(c *Config) {
	c.Store.Backend = fc.Store.Backend
	c.Vapi.BaseURL = fc.Vapi.BaseURL
	c.Vapi.HTTPTimeout = fc.Vapi.HTTPTimeout
	c.Reconcile.Grace = fc.Reconcile.Grace
	c.Reconcile.MaxAttempts = fc.Reconcile.MaxAttempts
	c.Reconcile.BackoffUnit = fc.Reconcile.BackoffUnit
	c.Reconcile.LeaseTTL = fc.Reconcile.LeaseTTL
	c.Firestore.ProjectID = fc.Firestore.ProjectID
}
