package permit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config is the declarative form of a full policy set plus engine tuning.
type Config struct {
	Version uint16       `json:"version" yaml:"version"`
	Rules   []Tuple      `json:"rules" yaml:"rules"`
	Engine  EngineConfig `json:"engine" yaml:"engine"`
}

type EngineConfig struct {
	DecisionCacheTTL    int64 `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
	EnforceTimeout      int64 `json:"enforce_timeout_ms" yaml:"enforce_timeout_ms"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
	RefreshBackoffMin   int64 `json:"refresh_backoff_min_ms" yaml:"refresh_backoff_min_ms"`
	RefreshBackoffMax   int64 `json:"refresh_backoff_max_ms" yaml:"refresh_backoff_max_ms"`
}

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCSV parses the classic one-rule-per-line format, e.g.
//
//	p, ADMIN, /audit, read
//	g, u1, ADMIN, tenant-1
//	g2, SECURITYADMIN, AUDITOR, conflict
//
// Blank lines and lines starting with '#' are skipped. Quoted fields may
// contain commas (conditions like `a == "x" && b == "y"` stay intact when
// quoted).
func (l *ConfigLoader) LoadCSV(data []byte) (*Config, error) {
	cfg := &Config{Version: 1}
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields, err := splitRuleLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(fields) < 3 || len(fields) > 7 {
			return nil, fmt.Errorf("line %d: expected 3..7 fields, got %d", lineNo, len(fields))
		}
		t := Tuple{Ptype: Ptype(fields[0])}
		cols := []*string{&t.V0, &t.V1, &t.V2, &t.V3, &t.V4, &t.V5}
		for i, f := range fields[1:] {
			*cols[i] = f
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		cfg.Rules = append(cfg.Rules, t.Normalize())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitRuleLine splits on commas outside double quotes and trims each field.
func splitRuleLine(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuote := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ',' && !inQuote:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unbalanced quote")
	}
	fields = append(fields, strings.TrimSpace(cur.String()))
	return fields, nil
}

// ToYAML exports config to YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks every rule for structural correctness and every p rule
// condition for parseability.
func (c *Config) Validate() error {
	for i, t := range c.Rules {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if t.Ptype == PtypePermission && t.V3 != "" {
			if _, err := ParseCondition(t.V3); err != nil {
				return fmt.Errorf("rule %d: %w", i, err)
			}
		}
	}
	return nil
}

// DecisionCacheTTLDuration returns the configured TTL, or zero for default.
func (c EngineConfig) DecisionCacheTTLDuration() time.Duration {
	return time.Duration(c.DecisionCacheTTL) * time.Millisecond
}

// Seed writes every configured rule into the store. Rules are applied in
// g2, g, p order so conflict pairs exist before the assignments they
// constrain; a conflicting assignment in the seed is surfaced as an error.
func (c *Config) Seed(ctx context.Context, engine *Engine) error {
	for _, pass := range []Ptype{PtypeConflict, PtypeGrouping, PtypePermission} {
		for _, t := range c.Rules {
			if t.Ptype != pass {
				continue
			}
			if err := engine.AddPolicy(ctx, t); err != nil {
				return fmt.Errorf("seed rule %s: %w", t.Key(), err)
			}
		}
	}
	return nil
}

// NewGatewayFromConfig builds an engine plus gateway over the store, applies
// engine settings and seeds the configured rules.
func NewGatewayFromConfig(ctx context.Context, cfg *Config, store TupleStore, opts ...GatewayOption) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := NewEngine(store)
	if err != nil {
		return nil, err
	}
	engine.Loader().SetBackoff(
		time.Duration(cfg.Engine.RefreshBackoffMin)*time.Millisecond,
		time.Duration(cfg.Engine.RefreshBackoffMax)*time.Millisecond,
	)
	if err := engine.Start(ctx); err != nil {
		return nil, err
	}
	if err := cfg.Seed(ctx, engine); err != nil {
		return nil, err
	}
	cache, err := NewDecisionCache(cfg.Engine.RistrettoNumCounter, cfg.Engine.RistrettoMaxCost, cfg.Engine.RistrettoBuffer, cfg.Engine.DecisionCacheTTLDuration())
	if err != nil {
		return nil, err
	}
	gwOpts := []GatewayOption{WithDecisionCache(cache)}
	if cfg.Engine.EnforceTimeout > 0 {
		gwOpts = append(gwOpts, WithEnforceTimeout(time.Duration(cfg.Engine.EnforceTimeout)*time.Millisecond))
	}
	gwOpts = append(gwOpts, opts...)
	return NewGateway(engine, gwOpts...)
}
