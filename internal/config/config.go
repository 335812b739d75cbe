package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ksred/trading-core/internal/risk"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the value object supplied to the core at construction.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Simulation struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
		Seed     int64         `yaml:"seed"`
	} `yaml:"simulation"`

	Risk struct {
		// FailFast selects the evaluation policy: stop at the first
		// failing rule, or collect every failure.
		FailFast         bool         `yaml:"fail_fast"`
		DefaultMarkPrice float64      `yaml:"default_mark_price"`
		Rules            []RuleConfig `yaml:"rules"`
	} `yaml:"risk"`
}

// RuleConfig is one risk rule as it appears in the YAML file.
type RuleConfig struct {
	ID      string             `yaml:"id"`
	Name    string             `yaml:"name"`
	Kind    string             `yaml:"kind"`
	Params  map[string]float64 `yaml:"params"`
	Enabled bool               `yaml:"enabled"`
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the risk rule set. A missing file yields the
// defaults.
func Load(path string, logger zerolog.Logger) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			logger.Warn().Str("path", path).Msg("config file not found, using defaults")
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	validateRules(cfg, logger)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Auth.JWTSecret = "dev-secret"
	cfg.Database.Path = "trading.db"
	cfg.Simulation.Interval = 500 * time.Millisecond
	cfg.Risk.DefaultMarkPrice = 100.0
	return cfg
}

// RiskConfig converts the loaded rule set into the engine's
// construction-time value object.
func (c *Config) RiskConfig() risk.Config {
	rules := make([]risk.Rule, 0, len(c.Risk.Rules))
	for _, rc := range c.Risk.Rules {
		rules = append(rules, risk.Rule{
			ID:      rc.ID,
			Name:    rc.Name,
			Kind:    risk.RuleKind(rc.Kind),
			Params:  rc.Params,
			Enabled: rc.Enabled,
		})
	}
	return risk.Config{
		FailFast:         c.Risk.FailFast,
		DefaultMarkPrice: c.Risk.DefaultMarkPrice,
		Rules:            rules,
	}
}

// validateRules warns about configurations that would silently disable a
// rule: an unknown kind, or an enabled rule missing its required
// parameter. Both still load (a rule with a missing parameter passes),
// but the misconfiguration is surfaced at startup instead of going
// unnoticed.
func validateRules(cfg *Config, logger zerolog.Logger) {
	for _, rc := range cfg.Risk.Rules {
		kind := risk.RuleKind(rc.Kind)
		if !kind.Valid() {
			logger.Warn().
				Str("rule_id", rc.ID).
				Str("kind", rc.Kind).
				Msg("unknown risk rule kind, rule will always pass")
			continue
		}

		param, needed := risk.RequiredParam(kind)
		if !needed {
			continue
		}
		if _, ok := rc.Params[param]; !ok && rc.Enabled {
			logger.Warn().
				Str("rule_id", rc.ID).
				Str("kind", rc.Kind).
				Str("missing_param", param).
				Msg("enabled risk rule is missing its required parameter and will always pass")
		}
	}
}
