package ingest

import (
	"context"
	"time"

	"github.com/chrissnell/wxdatadog/internal/database"
	"github.com/chrissnell/wxdatadog/internal/types"
	"go.uber.org/zap"
)

// ReadingSource returns the newest reading for a station after since
type ReadingSource interface {
	LatestReading(ctx context.Context, station string, since time.Time) (database.BucketReading, bool, error)
}

// Poller turns remoteweather one-minute buckets into archive records
type Poller struct {
	source   ReadingSource
	station  string
	interval time.Duration
	handler  Handler
	logger   *zap.SugaredLogger

	last time.Time
}

// NewPoller creates a poller for one remoteweather station
func NewPoller(source ReadingSource, station string, interval time.Duration, handler Handler, logger *zap.SugaredLogger) *Poller {
	return &Poller{
		source:   source,
		station:  station,
		interval: interval,
		handler:  handler,
		logger:   logger,
	}
}

// Run polls every interval until ctx is cancelled
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Infof("polling TimescaleDB for station %s every %v", p.station, p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.last = time.Now().Add(-p.interval)
	for {
		select {
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.logger.Errorf("error getting readings from TimescaleDB: %v", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	br, ok, err := p.source.LatestReading(ctx, p.station, p.last)
	if err != nil {
		return err
	}
	if !ok {
		p.logger.Debugf("no new reading for station %s since %v", p.station, p.last)
		return nil
	}

	p.last = br.Bucket
	p.handler.HandleArchiveRecord(RecordFromReading(br))
	return nil
}

// RecordFromReading converts a remoteweather bucket to a weewx archive record
// in US units
func RecordFromReading(br database.BucketReading) types.Record {
	fields := map[string]*float32{
		"barometer":          br.Barometer,
		"inTemp":             br.InTemp,
		"extraTemp1":         br.ExtraTemp1,
		"inHumidity":         br.InHumidity,
		"radiation":          br.SolarWatts,
		"maxSolarRad":        br.PotentialSolarWatts,
		"outTemp":            br.OutTemp,
		"outHumidity":        br.OutHumidity,
		"windSpeed":          br.WindSpeed,
		"windGust":           br.MaxWindSpeed,
		"windDir":            br.WindDir,
		"windchill":          br.WindChill,
		"heatindex":          br.HeatIndex,
		"rain":               br.PeriodRain,
		"rainRate":           br.RainRate,
		"consBatteryVoltage": br.ConsBatteryVoltage,
	}

	rec := types.Record{
		Type:      types.ArchiveRecord,
		Timestamp: br.Bucket.Unix(),
		Units:     types.US,
		Fields:    make(map[string]*float64, len(fields)),
	}
	for name, v := range fields {
		if v == nil {
			rec.Fields[name] = nil
			continue
		}
		rec.Fields[name] = types.Float(float64(*v))
	}
	return rec
}
