// Package desk wires the engine together: config, session registry,
// stream clients, decoder, classifier and orchestrators.
package desk

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/adityow/sourcedesk/pkg/configutil"
	"github.com/adityow/sourcedesk/pkg/errorsx"
	"github.com/adityow/sourcedesk/pkg/gateway"
)

type StreamConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectBase time.Duration `mapstructure:"reconnect_base"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Redact   bool   `mapstructure:"redact"`

	Stream  StreamConfig   `mapstructure:"stream"`
	Gateway gateway.Config `mapstructure:"gateway"`

	// Agents is the free-form agent ID settings block; keys are
	// case/underscore insensitive.
	Agents map[string]any `mapstructure:"agents"`

	VendorDBPath string `mapstructure:"vendor_db_path"`

	TimelineDir       string        `mapstructure:"timeline_dir"`
	TimelineRetention time.Duration `mapstructure:"timeline_retention"`

	// MetricsJSONLPath appends every metrics event to a JSONL file when
	// set; empty disables the sink.
	MetricsJSONLPath string `mapstructure:"metrics_jsonl_path"`

	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// agentIDs is the decoded shape of the agents settings block.
type agentIDs struct {
	Turn     string `mapstructure:"turn"`
	RfqDoc   string `mapstructure:"rfq_doc"`
	RfpDoc   string `mapstructure:"rfp_doc"`
	Pricing  string `mapstructure:"pricing"`
	Analysis string `mapstructure:"analysis"`
}

var agentSchema = configutil.Schema{
	Required: []string{"turn"},
	Optional: []string{"rfq_doc", "rfp_doc", "pricing", "analysis"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("redact", false)

	v.SetDefault("stream.url", "ws://localhost:8787/ws/sessions")
	v.SetDefault("stream.max_reconnects", 5)
	v.SetDefault("stream.reconnect_base", "2s")
	v.SetDefault("stream.dial_timeout", "10s")

	v.SetDefault("gateway.base_url", "http://localhost:8787")
	v.SetDefault("gateway.timeout", "60s")
	v.SetDefault("gateway.max_retries", 2)
	v.SetDefault("gateway.retry_backoff", "500ms")
	v.SetDefault("gateway.breaker_threshold", 3)
	v.SetDefault("gateway.breaker_cooldown", "30s")

	v.SetDefault("vendor_db_path", "vendors.db")

	v.SetDefault("timeline_dir", "")
	v.SetDefault("timeline_retention", "168h")
	v.SetDefault("metrics_jsonl_path", "")

	v.SetDefault("drain_timeout", "10s")
}

// LoadConfig reads configuration from path (optional; defaults apply
// when empty) and resolves the agents settings block.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if err := cfg.resolveAgents(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveAgents validates the agents block and folds the IDs into the
// gateway configuration. Absent entries keep the gateway defaults.
func (c *Config) resolveAgents() error {
	if len(c.Agents) == 0 {
		return nil
	}
	if err := configutil.ValidateSettings(c.Agents, agentSchema); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	var ids agentIDs
	if err := configutil.DecodeSettings(c.Agents, &ids); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if ids.Turn != "" {
		c.Gateway.TurnAgentID = ids.Turn
	}
	if ids.RfqDoc != "" {
		c.Gateway.RfqDocAgentID = ids.RfqDoc
	}
	if ids.RfpDoc != "" {
		c.Gateway.RfpDocAgentID = ids.RfpDoc
	}
	if ids.Pricing != "" {
		c.Gateway.PricingAgentID = ids.Pricing
	}
	if ids.Analysis != "" {
		c.Gateway.AnalysisAgentID = ids.Analysis
	}
	return nil
}
