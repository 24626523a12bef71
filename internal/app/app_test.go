package app

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/chrissnell/wxdatadog/internal/mapping"
	"github.com/chrissnell/wxdatadog/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticProvider struct {
	cfg *config.ConfigData
	err error
}

func (p staticProvider) LoadConfig() (*config.ConfigData, error) {
	return p.cfg, p.err
}

func TestBuildTable(t *testing.T) {
	table, err := BuildTable(nil)
	require.NoError(t, err)
	assert.Equal(t, mapping.Default().Len(), table.Len())

	table, err = BuildTable([]config.MappingData{
		{Field: "lightningEnergy", Group: "count"},
		{Field: "outTemp", Metric: "air.temperature", Group: "temperature"},
	})
	require.NoError(t, err)
	assert.Equal(t, mapping.Default().Len()+1, table.Len())

	m, err := table.Lookup("lightningEnergy")
	require.NoError(t, err)
	assert.Equal(t, "lightning_energy", m.Metric)

	m, err = table.Lookup("outTemp")
	require.NoError(t, err)
	assert.Equal(t, "air.temperature", m.Metric)
}

func TestBuildTableRejectsBadMappings(t *testing.T) {
	_, err := BuildTable([]config.MappingData{{Field: "x", Group: "colour"}})
	var ce *config.ConfigurationError
	assert.True(t, errors.As(err, &ce))

	_, err = BuildTable([]config.MappingData{{Field: "dateTime", Group: "count"}})
	assert.Error(t, err)
}

func TestRunFailsOnConfigurationError(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvAppKey, "")

	a := New(staticProvider{cfg: &config.ConfigData{}}, zap.NewNop().Sugar())
	err := a.Run(context.Background())

	var ce *config.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "api_key", ce.Option)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := &config.ConfigData{
		Datadog: config.DatadogData{
			APIKey:       "api-key",
			AppKey:       "app-key",
			ValidateKeys: new(bool),
		},
		Ingest: config.IngestData{
			HTTP: &config.HTTPIngestData{ListenAddr: "127.0.0.1:0"},
		},
	}
	a := New(staticProvider{cfg: cfg}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunFailsBeforeListeningWhenTimescaleDBIsDown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := &config.ConfigData{
		Datadog: config.DatadogData{
			APIKey:       "api-key",
			AppKey:       "app-key",
			ValidateKeys: new(bool),
		},
		Ingest: config.IngestData{
			HTTP: &config.HTTPIngestData{ListenAddr: addr},
			TimescaleDB: &config.TimescaleDBIngestData{
				ConnectionString: "host=127.0.0.1 port=1 user=weather dbname=weather sslmode=disable connect_timeout=2",
				StationName:      "backyard",
			},
		},
	}
	a := New(staticProvider{cfg: cfg}, zap.NewNop().Sugar())

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return when the database was unreachable")
	}

	l, err = net.Listen("tcp", addr)
	require.NoError(t, err, "the HTTP surface must not have been started")
	l.Close()
}
