package openai

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config holds the configuration for one OpenAI-compatible endpoint.
type Config struct {
	Name        string   `yaml:"name"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	Timeout     string   `yaml:"timeout"`
}

// Defaults fills zero-valued fields with sensible defaults.
func (c *Config) Defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.Name == "" {
		c.Name = c.Model
	}
}

// Validate checks the configuration. Call Defaults first.
func (c *Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("provider.openai: model is required"))
	}
	// Self-hosted compatible servers usually take no key.
	if c.APIKey == "" && c.BaseURL == defaultBaseURL {
		errs = append(errs, errors.New("provider.openai: api_key is required for api.openai.com"))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("provider.openai: base_url %q must be an http or https URL", c.BaseURL))
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("provider.openai: invalid timeout %q: %w", c.Timeout, err))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, errors.New("provider.openai: max_tokens must not be negative"))
	}
	return errors.Join(errs...)
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been validated.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
