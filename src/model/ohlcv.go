package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCVRecord is one reference candle used to mark signal levels against
// real market data. Filled by the markdata command, keyed by candle open
// time, symbol and interval.
type OHLCVRecord struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Datetime time.Time       `gorm:"uniqueIndex:idx_candle,priority:1" json:"datetime"`
	Symbol   string          `gorm:"uniqueIndex:idx_candle,priority:2;size:30" json:"symbol"`
	Interval string          `gorm:"uniqueIndex:idx_candle,priority:3;size:5" json:"interval"`
	Open     decimal.Decimal `gorm:"type:decimal(30,10)" json:"open"`
	High     decimal.Decimal `gorm:"type:decimal(30,10)" json:"high"`
	Low      decimal.Decimal `gorm:"type:decimal(30,10)" json:"low"`
	Close    decimal.Decimal `gorm:"type:decimal(30,10)" json:"close"`
	Volume   decimal.Decimal `gorm:"type:decimal(30,10)" json:"volume"`
}

func (OHLCVRecord) TableName() string {
	return "market_candles"
}
