package config

import "time"

// DefaultPollInterval is used by the TimescaleDB poller when no interval is set
const DefaultPollInterval = 60 * time.Second

// ValidateIngest checks the ingest and archive sections and fills in defaults.
// When no ingest surface is configured the HTTP one is enabled.
func (c *ConfigData) ValidateIngest() error {
	// Without any surface nothing would ever reach the forwarder.
	if c.Ingest.HTTP == nil && c.Ingest.UDP == nil && c.Ingest.TimescaleDB == nil {
		c.Ingest.HTTP = &HTTPIngestData{}
	}
	if c.Ingest.HTTP != nil && c.Ingest.HTTP.ListenAddr == "" {
		c.Ingest.HTTP.ListenAddr = "127.0.0.1:8180"
	}
	if c.Ingest.HTTP != nil && (c.Ingest.HTTP.Cert == "") != (c.Ingest.HTTP.Key == "") {
		return &ConfigurationError{"ingest.http", "cert and key must be set together"}
	}
	if c.Ingest.UDP != nil && c.Ingest.UDP.ListenAddr == "" {
		c.Ingest.UDP.ListenAddr = "127.0.0.1:8181"
	}

	if ts := c.Ingest.TimescaleDB; ts != nil {
		if ts.ConnectionString == "" {
			return &ConfigurationError{"ingest.timescaledb.connection_string", "must be set"}
		}
		if ts.StationName == "" {
			return &ConfigurationError{"ingest.timescaledb.station_name", "must be set"}
		}
		if ts.Interval == 0 {
			ts.Interval = Duration(DefaultPollInterval)
		}
		if ts.Interval < 0 {
			return &ConfigurationError{"ingest.timescaledb.interval", "must be positive"}
		}
	}

	if c.Archive.Database != "" && c.Archive.Table == "" {
		c.Archive.Table = "archive"
	}

	for _, m := range c.Datadog.ExtraMappings {
		if m.Field == "" {
			return &ConfigurationError{"datadog.extra_mappings", "every mapping needs a field"}
		}
		if m.Group == "" {
			return &ConfigurationError{"datadog.extra_mappings", "mapping for " + m.Field + " needs a group"}
		}
	}

	return nil
}
