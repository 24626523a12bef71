// Package config loads and validates the forwarder configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	LoadConfig() (*ConfigData, error)
}

// ConfigData represents the complete configuration file
type ConfigData struct {
	Debug   bool        `yaml:"debug,omitempty"`
	Log     LogData     `yaml:"log,omitempty"`
	Datadog DatadogData `yaml:"datadog"`
	Archive ArchiveData `yaml:"archive,omitempty"`
	Ingest  IngestData  `yaml:"ingest,omitempty"`
	Health  HealthData  `yaml:"health,omitempty"`
}

// LogData configures an optional rotated log file
type LogData struct {
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// DatadogData is the raw [Datadog] section, as written by the user
type DatadogData struct {
	APIKey        string        `yaml:"api_key,omitempty"`
	AppKey        string        `yaml:"app_key,omitempty"`
	APIHost       string        `yaml:"api_host,omitempty"`
	StationName   string        `yaml:"station_name,omitempty"`
	Binding       StringList    `yaml:"binding,omitempty"`
	Tags          StringList    `yaml:"tags,omitempty"`
	Prefix        *string       `yaml:"prefix,omitempty"`
	TargetUnits   string        `yaml:"target_units,omitempty"`
	Latitude      *float64      `yaml:"latitude,omitempty"`
	Longitude     *float64      `yaml:"longitude,omitempty"`
	Altitude      *float64      `yaml:"altitude,omitempty"`
	StationType   string        `yaml:"station_type,omitempty"`
	SkipUpload    bool          `yaml:"skip_upload,omitempty"`
	PostInterval  *Duration     `yaml:"post_interval,omitempty"`
	Stale         *Duration     `yaml:"stale,omitempty"`
	MaxBacklog    int           `yaml:"max_backlog,omitempty"`
	Timeout       *Duration     `yaml:"timeout,omitempty"`
	MaxTries      int           `yaml:"max_tries,omitempty"`
	RetryWait     *Duration     `yaml:"retry_wait,omitempty"`
	MaxRetryWait  *Duration     `yaml:"max_retry_wait,omitempty"`
	LogSuccess    *bool         `yaml:"log_success,omitempty"`
	LogFailure    *bool         `yaml:"log_failure,omitempty"`
	ValidateKeys  *bool         `yaml:"validate_keys,omitempty"`
	ExtraMappings []MappingData `yaml:"extra_mappings,omitempty"`
}

// MappingData adds or overrides one observation-to-metric mapping
type MappingData struct {
	Field  string `yaml:"field"`
	Metric string `yaml:"metric,omitempty"`
	Group  string `yaml:"group"`
}

// ArchiveData points at the weewx SQLite archive used to complete archive records
type ArchiveData struct {
	Database string `yaml:"database,omitempty"`
	Table    string `yaml:"table,omitempty"`
}

// IngestData configures the surfaces the host framework delivers records through
type IngestData struct {
	HTTP        *HTTPIngestData        `yaml:"http,omitempty"`
	UDP         *UDPIngestData         `yaml:"udp,omitempty"`
	TimescaleDB *TimescaleDBIngestData `yaml:"timescaledb,omitempty"`
}

type HTTPIngestData struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
}

type UDPIngestData struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// TimescaleDBIngestData polls a remoteweather TimescaleDB for the newest reading
type TimescaleDBIngestData struct {
	ConnectionString string   `yaml:"connection_string,omitempty"`
	StationName      string   `yaml:"station_name,omitempty"`
	Interval         Duration `yaml:"interval,omitempty"`
}

type HealthData struct {
	GRPCListenAddr string `yaml:"grpc_listen_addr,omitempty"`
}

// StringList accepts either a YAML sequence or a single comma-separated string
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	var parts []string
	switch value.Kind {
	case yaml.ScalarNode:
		parts = strings.Split(value.Value, ",")
	case yaml.SequenceNode:
		if err := value.Decode(&parts); err != nil {
			return err
		}
	default:
		return fmt.Errorf("line %d: expected a string or a list", value.Line)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	*s = out
	return nil
}

// Duration accepts a bare number of seconds or a Go duration string ("90s", "2m")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration", value.Line)
	}
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(dur)
	return nil
}

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
