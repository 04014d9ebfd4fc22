package types

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// ServiceConfig drives the connection manager. It is loaded from an optional
// YAML file and then overridden field-by-field from the environment in main.
// PortRangeStart/PortRangeEnd bound the per-vendor port pool; the pool size
// is the concurrent-session cap, so "no free port" and "at capacity" are the
// same condition.
// QRRefreshSeconds is how long an issued pairing code is trusted before the
// session is torn down and re-provisioned to mint a fresh one.
// RetrySweepSeconds is the period of the background pass that moves eligible
// disconnected vendors back to pending.
type ServiceConfig struct {
	HTTPPort       int    `yaml:"http_port"`
	PortRangeStart int    `yaml:"port_range_start"`
	PortRangeEnd   int    `yaml:"port_range_end"`
	DataDir        string `yaml:"data_dir"`

	QRRefreshSeconds  int `yaml:"qr_refresh_seconds"`
	RetrySweepSeconds int `yaml:"retry_sweep_seconds"`

	// EventTopicARN enables best-effort lifecycle event publishing when set.
	// EventFilter is an optional JMESPath expression evaluated against the
	// event payload; events it does not match are dropped before publish.
	EventTopicARN string `yaml:"event_topic_arn"`
	EventFilter   string `yaml:"event_filter"`
}

const (
	DefaultHTTPPort       = 8080
	DefaultPortRangeStart = 4000
	DefaultPortRangeEnd   = 4099
	DefaultDataDir        = "./data"

	DefaultQRRefreshSeconds  = 60
	DefaultRetrySweepSeconds = 300
)

// DefaultServiceConfig returns a config populated with the defaults above.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		HTTPPort:          DefaultHTTPPort,
		PortRangeStart:    DefaultPortRangeStart,
		PortRangeEnd:      DefaultPortRangeEnd,
		DataDir:           DefaultDataDir,
		QRRefreshSeconds:  DefaultQRRefreshSeconds,
		RetrySweepSeconds: DefaultRetrySweepSeconds,
	}
}

// LoadServiceConfig reads a YAML config file over the defaults. A missing
// file is not an error; the defaults are returned as-is.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c ServiceConfig) Validate() error {
	if c.PortRangeStart <= 0 || c.PortRangeEnd < c.PortRangeStart {
		return fmt.Errorf("invalid port range [%d, %d]", c.PortRangeStart, c.PortRangeEnd)
	}
	if c.QRRefreshSeconds <= 0 {
		return fmt.Errorf("qr_refresh_seconds must be positive")
	}
	if c.RetrySweepSeconds <= 0 {
		return fmt.Errorf("retry_sweep_seconds must be positive")
	}
	return nil
}

func (c ServiceConfig) QRRefreshInterval() time.Duration {
	return time.Duration(c.QRRefreshSeconds) * time.Second
}

func (c ServiceConfig) RetrySweepInterval() time.Duration {
	return time.Duration(c.RetrySweepSeconds) * time.Second
}
