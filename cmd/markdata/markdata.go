package markdata

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"signalcopier/src/model"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

// MarkData backfills reference candles for the traded symbols so filled
// signals can be marked against real market prices.
type MarkData struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (m *MarkData) Start() error {
	m.Config = GetConfig()

	m.exchange = m.newBinanceInstance()

	if m.Config.AutoMode {
		if err := m.determineStartPoint(); err != nil {
			return err
		}
	}

	return m.aggregateAndSave()
}

func (*MarkData) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (m *MarkData) aggregateAndSave() error {
	series, err := m.fetchOHLCVSeries()
	if err != nil {
		return err
	}

	for i := range series {
		result := series[i]

		record := &model.OHLCVRecord{
			Datetime: time.Unix(result.Timestamp, 0).UTC().Truncate(m.parseDuration()),
			Open:     decimal.NewFromFloat(result.Open),
			High:     decimal.NewFromFloat(result.High),
			Low:      decimal.NewFromFloat(result.Low),
			Close:    decimal.NewFromFloat(result.Close),
			Volume:   decimal.NewFromFloat(result.Vol),
			Symbol:   m.Config.Symbol + m.Config.Quote,
			Interval: m.Config.DurationStr,
		}

		// Upsert: on conflict on (datetime, symbol, interval) do update
		if err := m.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "datetime"}, {Name: "symbol"}, {Name: "interval"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).Create(record).Error; err != nil {
			m.Log.WithError(err).Error("aggregateAndSave, Create, ")
			return err
		}
	}

	m.Log.WithFields(logger.Fields{
		"Symbol":  m.Config.Symbol,
		"Candles": len(series),
	}).Info("candles inserted or updated in database")

	return nil
}

func (m *MarkData) determineStartPoint() error {
	m.Config.StartDt = m.Config.StartDt.Add(-m.parseDuration())
	m.Config.EndDt = time.Now()

	var latestTime *sql.NullTime
	result := m.DB.Model(&model.OHLCVRecord{}).
		Select("MAX(datetime)").
		Where("symbol = ? AND interval = ?", m.Config.Symbol+m.Config.Quote, m.Config.DurationStr).
		Take(&latestTime)

	m.Log.
		WithField("latestTime", latestTime).
		Info("determineStartPoint")

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			m.Log.
				WithError(result.Error).
				WithField("StartDt", m.Config.StartDt.String()).
				WithField("EndDt", m.Config.EndDt.String()).
				Error("no records found, start from the configured StartDt")
		} else {
			m.Log.
				WithError(result.Error).
				Error("Failed to query latest datetime")
			return result.Error
		}
	}

	if latestTime.Valid {
		// Resume one interval before the last recorded candle so the still
		// open one gets refreshed.
		m.Config.StartDt = latestTime.Time.Add(-m.parseDuration())
		m.Log.
			WithField("StartDt", m.Config.StartDt.String()).
			WithField("EndDt", m.Config.EndDt.String()).
			Info("determineStartPoint valid date found")
	}

	return nil
}

func (m *MarkData) fetchOHLCVSeries() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: m.Config.Symbol}, goex.Currency{Symbol: m.Config.Quote})

	const millis = 1000
	klines, err := m.exchange.GetKlineRecords(
		targetSymbol,
		m.parseDurationToGoex(),
		m.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", m.Config.StartDt.Unix()*millis).
			Optional("endTime", m.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}

func (m *MarkData) parseDuration() time.Duration {
	var duration time.Duration
	switch m.Config.DurationStr {
	case Duration1m:
		duration = time.Minute
	case Duration1h:
		duration = time.Hour
	default:
		panic("invalid DURATION env var")
	}
	return duration
}

func (m *MarkData) parseDurationToGoex() goex.KlinePeriod {
	var duration goex.KlinePeriod
	switch m.Config.DurationStr {
	case Duration1m:
		duration = goex.KLINE_PERIOD_1MIN
	case Duration1h:
		duration = goex.KLINE_PERIOD_1H
	default:
		panic("invalid DURATION env var")
	}
	return duration
}
