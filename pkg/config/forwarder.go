package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chrissnell/wxdatadog/internal/types"
)

// Datadog intake endpoints. Only these two are accepted for api_host.
const (
	APIHostUS = "https://api.datadoghq.com"
	APIHostEU = "https://api.datadoghq.eu"
)

// Defaults for the uploader, following the weewx RESTful service conventions
const (
	DefaultPrefix       = "weewx"
	DefaultPostInterval = 10 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultMaxTries     = 3
	DefaultRetryWait    = 5 * time.Second
	DefaultMaxRetryWait = 30 * time.Second
	DefaultMaxBacklog   = 1000
)

// Environment variables consulted when the keys are absent from the file
const (
	EnvAPIKey = "DD_API_KEY"
	EnvAppKey = "DD_APP_KEY"
)

// ConfigurationError is a missing or invalid option. It is fatal at startup.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Option, e.Reason)
}

// Binding selects which record types are forwarded
type Binding struct {
	Loop    bool
	Archive bool
}

// Accepts reports whether records of type t are forwarded
func (b Binding) Accepts(t types.RecordType) bool {
	switch t {
	case types.LoopPacket:
		return b.Loop
	case types.ArchiveRecord:
		return b.Archive
	}
	return false
}

func (b Binding) String() string {
	var parts []string
	if b.Loop {
		parts = append(parts, string(types.LoopPacket))
	}
	if b.Archive {
		parts = append(parts, string(types.ArchiveRecord))
	}
	return strings.Join(parts, ",")
}

// ForwarderConfig is the validated uploader configuration. It is built once by
// NewForwarderConfig and never modified afterwards.
type ForwarderConfig struct {
	APIKey       string
	AppKey       string
	Binding      Binding
	StationName  string
	APIHost      string
	Prefix       string
	TargetUnits  types.UnitSystem
	SkipUpload   bool
	PostInterval time.Duration // loop packets only; archive records are never throttled
	Stale        time.Duration
	MaxBacklog   int
	Timeout      time.Duration
	MaxTries     int
	RetryWait    time.Duration
	MaxRetryWait time.Duration
	LogSuccess   bool
	LogFailure   bool
	ValidateKeys bool

	tags []string
}

// Tags returns the configured tags followed by the station metadata tags
func (c ForwarderConfig) Tags() []string {
	out := make([]string, len(c.tags))
	copy(out, c.tags)
	return out
}

// NewForwarderConfig applies defaults to the raw section and validates it
func NewForwarderConfig(d DatadogData) (ForwarderConfig, error) {
	c := ForwarderConfig{
		APIKey:       strings.TrimSpace(d.APIKey),
		AppKey:       strings.TrimSpace(d.AppKey),
		StationName:  strings.TrimSpace(d.StationName),
		Prefix:       DefaultPrefix,
		TargetUnits:  types.MetricWX,
		SkipUpload:   d.SkipUpload,
		PostInterval: DefaultPostInterval,
		MaxBacklog:   DefaultMaxBacklog,
		Timeout:      DefaultTimeout,
		MaxTries:     DefaultMaxTries,
		RetryWait:    DefaultRetryWait,
		MaxRetryWait: DefaultMaxRetryWait,
		LogSuccess:   true,
		LogFailure:   true,
		ValidateKeys: true,
	}

	if c.APIKey == "" {
		c.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.AppKey == "" {
		c.AppKey = os.Getenv(EnvAppKey)
	}
	if c.APIKey == "" {
		return ForwarderConfig{}, &ConfigurationError{"api_key", "must be set (or provide " + EnvAPIKey + ")"}
	}
	if c.AppKey == "" {
		return ForwarderConfig{}, &ConfigurationError{"app_key", "must be set (or provide " + EnvAppKey + ")"}
	}

	host, err := resolveAPIHost(d.APIHost)
	if err != nil {
		return ForwarderConfig{}, err
	}
	c.APIHost = host

	c.Binding, err = parseBinding(d.Binding)
	if err != nil {
		return ForwarderConfig{}, err
	}

	if d.Prefix != nil {
		c.Prefix = strings.Trim(strings.TrimSpace(*d.Prefix), ".")
	}

	if d.TargetUnits != "" {
		c.TargetUnits, err = types.ParseUnitSystem(d.TargetUnits)
		if err != nil {
			return ForwarderConfig{}, &ConfigurationError{"target_units", err.Error()}
		}
	}

	for _, tag := range d.Tags {
		if err := validateTag(tag); err != nil {
			return ForwarderConfig{}, err
		}
		c.tags = append(c.tags, tag)
	}
	c.tags = append(c.tags, stationTags(d)...)

	if d.PostInterval != nil {
		c.PostInterval = d.PostInterval.Std()
	}
	if d.Stale != nil {
		c.Stale = d.Stale.Std()
	}
	if d.Timeout != nil {
		c.Timeout = d.Timeout.Std()
	}
	if d.RetryWait != nil {
		c.RetryWait = d.RetryWait.Std()
	}
	if d.MaxRetryWait != nil {
		c.MaxRetryWait = d.MaxRetryWait.Std()
	}
	if d.MaxTries != 0 {
		c.MaxTries = d.MaxTries
	}
	if d.MaxBacklog != 0 {
		c.MaxBacklog = d.MaxBacklog
	}
	if d.LogSuccess != nil {
		c.LogSuccess = *d.LogSuccess
	}
	if d.LogFailure != nil {
		c.LogFailure = *d.LogFailure
	}
	if d.ValidateKeys != nil {
		c.ValidateKeys = *d.ValidateKeys
	}

	switch {
	case c.PostInterval < 0:
		return ForwarderConfig{}, &ConfigurationError{"post_interval", "must not be negative"}
	case c.Stale < 0:
		return ForwarderConfig{}, &ConfigurationError{"stale", "must not be negative"}
	case c.Timeout <= 0:
		return ForwarderConfig{}, &ConfigurationError{"timeout", "must be positive"}
	case c.MaxTries < 1:
		return ForwarderConfig{}, &ConfigurationError{"max_tries", "must be at least 1"}
	case c.RetryWait < 0:
		return ForwarderConfig{}, &ConfigurationError{"retry_wait", "must not be negative"}
	case c.MaxRetryWait < c.RetryWait:
		return ForwarderConfig{}, &ConfigurationError{"max_retry_wait", "must not be less than retry_wait"}
	case c.MaxBacklog < 1:
		return ForwarderConfig{}, &ConfigurationError{"max_backlog", "must be at least 1"}
	}

	return c, nil
}

func resolveAPIHost(h string) (string, error) {
	switch strings.TrimRight(strings.ToLower(strings.TrimSpace(h)), "/") {
	case "", "us", "us1", APIHostUS:
		return APIHostUS, nil
	case "eu", "eu1", APIHostEU:
		return APIHostEU, nil
	default:
		return "", &ConfigurationError{"api_host", fmt.Sprintf("%q is not one of %s, %s", h, APIHostUS, APIHostEU)}
	}
}

func parseBinding(list StringList) (Binding, error) {
	if len(list) == 0 {
		return Binding{Archive: true}, nil
	}

	var b Binding
	for _, item := range list {
		t, err := types.ParseRecordType(item)
		if err != nil {
			return Binding{}, &ConfigurationError{"binding", fmt.Sprintf("%q is not loop or archive", item)}
		}
		switch t {
		case types.LoopPacket:
			b.Loop = true
		case types.ArchiveRecord:
			b.Archive = true
		}
	}
	return b, nil
}

func validateTag(tag string) error {
	key, value, found := strings.Cut(tag, ":")
	if !found || strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
		return &ConfigurationError{"tags", fmt.Sprintf("%q is not a key:value pair", tag)}
	}
	return nil
}

func stationTags(d DatadogData) []string {
	var tags []string
	if d.Latitude != nil {
		tags = append(tags, fmt.Sprintf("latitude:%v", *d.Latitude))
	}
	if d.Longitude != nil {
		tags = append(tags, fmt.Sprintf("longitude:%v", *d.Longitude))
	}
	if d.StationType != "" {
		tags = append(tags, "station_type:"+d.StationType)
	}
	if d.Altitude != nil {
		tags = append(tags, fmt.Sprintf("altitude:%v", *d.Altitude))
	}
	return tags
}
