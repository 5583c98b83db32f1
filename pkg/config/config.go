// Package config loads bridge settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/thesyncim/rtcbridge/pkg/engine"
	"github.com/thesyncim/rtcbridge/pkg/pc"
)

// EngineKind selects the engine implementation.
type EngineKind string

const (
	EnginePion   EngineKind = "pion"
	EngineNative EngineKind = "native"
)

// IsValid reports whether k names a known engine.
func (k EngineKind) IsValid() bool {
	return k == EnginePion || k == EngineNative
}

// Config is the top-level settings file.
type Config struct {
	LogLevel    string               `yaml:"log_level,omitempty"`
	Engine      EngineKind           `yaml:"engine,omitempty"`
	StatsLevel  string               `yaml:"stats_level,omitempty"`
	Connection  engine.Configuration `yaml:"connection"`
	Constraints *engine.Constraints  `yaml:"constraints,omitempty"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		Engine:      EnginePion,
		StatsLevel:  "standard",
		Connection:  pc.DefaultConfiguration(),
		Constraints: &engine.Constraints{OfferToReceiveAudio: true, OfferToReceiveVideo: true},
	}
}

// Load reads the YAML configuration file at path and returns a validated Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" {
		if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log_level %q is invalid", cfg.LogLevel))
		}
	}
	if cfg.Engine != "" && !cfg.Engine.IsValid() {
		errs = append(errs, fmt.Errorf("engine %q is invalid; valid values: pion, native", cfg.Engine))
	}
	if _, err := parseStatsLevel(cfg.StatsLevel); err != nil {
		errs = append(errs, err)
	}

	c := cfg.Connection
	for i, s := range c.ICEServers {
		prefix := fmt.Sprintf("connection.ice_servers[%d]", i)
		if len(s.URLs) == 0 {
			errs = append(errs, fmt.Errorf("%s.urls is required", prefix))
		}
		for j, u := range s.URLs {
			scheme, _, _ := strings.Cut(u, ":")
			switch scheme {
			case "stun", "stuns":
			case "turn", "turns":
				if s.Username == "" || s.Credential == "" {
					errs = append(errs, fmt.Errorf("%s.urls[%d] %q needs username and credential", prefix, j, u))
				}
			default:
				errs = append(errs, fmt.Errorf("%s.urls[%d] %q has unknown scheme", prefix, j, u))
			}
		}
	}
	if !oneOf(c.ICETransportPolicy, "", "all", "relay") {
		errs = append(errs, fmt.Errorf("connection.ice_transport_policy %q is invalid; valid values: all, relay", c.ICETransportPolicy))
	}
	if !oneOf(c.BundlePolicy, "", "balanced", "max-compat", "max-bundle") {
		errs = append(errs, fmt.Errorf("connection.bundle_policy %q is invalid; valid values: balanced, max-compat, max-bundle", c.BundlePolicy))
	}
	if !oneOf(c.RTCPMuxPolicy, "", "require", "negotiate") {
		errs = append(errs, fmt.Errorf("connection.rtcp_mux_policy %q is invalid; valid values: require, negotiate", c.RTCPMuxPolicy))
	}
	if c.ICECandidatePoolSize < 0 || c.ICECandidatePoolSize > 255 {
		errs = append(errs, fmt.Errorf("connection.ice_candidate_pool_size %d is out of range [0, 255]", c.ICECandidatePoolSize))
	}

	return errors.Join(errs...)
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// StatsOutputLevel returns the configured stats level, defaulting to standard.
func (c *Config) StatsOutputLevel() engine.StatsOutputLevel {
	lvl, err := parseStatsLevel(c.StatsLevel)
	if err != nil {
		return engine.StatsOutputLevelStandard
	}
	return lvl
}

func parseStatsLevel(s string) (engine.StatsOutputLevel, error) {
	switch s {
	case "", "standard":
		return engine.StatsOutputLevelStandard, nil
	case "debug":
		return engine.StatsOutputLevelDebug, nil
	default:
		return 0, fmt.Errorf("stats_level %q is invalid; valid values: standard, debug", s)
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
