package config

import (
	"os"
	"regexp"

	"github.com/flemzord/codeclaw/internal/command"
	"github.com/flemzord/codeclaw/internal/pathguard"
	"github.com/flemzord/codeclaw/internal/provider/openai"
	"github.com/flemzord/codeclaw/internal/tool/builtin"
)

// Environment variables consulted when no provider is configured.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvBaseURL = "OPENAI_API_BASE_URL"
	EnvModel   = "OPENAI_MODEL"

	defaultModel = "gpt-4o-mini"
)

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		EventLog: EventLogConfig{Driver: EventLogMemory},
	}
}

// applyDefaults fills zero-valued fields after decoding.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if len(c.Providers) == 0 {
		model := os.Getenv(EnvModel)
		if model == "" {
			model = defaultModel
		}
		c.Providers = []openai.Config{{
			Name:    "default",
			APIKey:  os.Getenv(EnvAPIKey),
			BaseURL: os.Getenv(EnvBaseURL),
			Model:   model,
		}}
	}
	for i := range c.Providers {
		c.Providers[i].Defaults()
	}

	if c.Tools.Shell == "" {
		c.Tools.Shell = builtin.DefaultShell
	}
	if c.Tools.ShellTimeout <= 0 {
		c.Tools.ShellTimeout = builtin.DefaultShellTimeout
	}
	if c.Tools.MaxOutputBytes <= 0 {
		c.Tools.MaxOutputBytes = builtin.DefaultMaxOutputBytes
	}

	if c.EventLog.Driver == "" {
		c.EventLog.Driver = EventLogMemory
	}
	c.Gateway.Defaults()
}

// PathRules returns the built-in sensitive-file rules extended with the
// configured names and extensions.
func (c *Config) PathRules() pathguard.Rules {
	r := pathguard.DefaultRules()
	r.SensitiveNames = append(r.SensitiveNames, c.Tools.SensitiveNames...)
	r.SensitiveExtensions = append(r.SensitiveExtensions, c.Tools.SensitiveExtensions...)
	return r
}

// CommandRules returns the built-in classifier rules extended with the
// configured patterns. Validate reports patterns that do not compile.
func (c *Config) CommandRules() (command.Rules, error) {
	extra := make([]*regexp.Regexp, 0, len(c.Classifier.Dangerous))
	for _, p := range c.Classifier.Dangerous {
		re, err := regexp.Compile(p)
		if err != nil {
			return command.Rules{}, err
		}
		extra = append(extra, re)
	}
	return command.DefaultRules().With(extra, c.Classifier.ReadOnly), nil
}
