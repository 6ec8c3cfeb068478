package model

import (
	"encoding/json"
	"time"
)

// SeenHashLimit bounds the dedup fingerprint list to the most recent N
// entries. Best-effort dedup window, not exact-forever dedup.
const SeenHashLimit = 500

// State is the full in-memory bot state. It is owned by the TradeStore and
// serialized as a single keyed snapshot once per cycle.
type State struct {
	Trades        map[string]*Trade `json:"open_trades"`
	DailyCounts   map[string]int    `json:"daily_counts"`
	LastMessageID string            `json:"last_message_id,omitempty"`
	SeenHashes    []string          `json:"seen_signal_hashes,omitempty"`
}

// NewState returns an empty, ready-to-use state.
func NewState() *State {
	return &State{
		Trades:      make(map[string]*Trade),
		DailyCounts: make(map[string]int),
	}
}

// UTCDayKey returns the calendar-day key used for the daily trade counter.
func UTCDayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// StateFromJSON deserializes a snapshot payload, initializing any nil maps.
func StateFromJSON(raw string) (*State, error) {
	st := NewState()
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		return nil, err
	}
	if st.Trades == nil {
		st.Trades = make(map[string]*Trade)
	}
	if st.DailyCounts == nil {
		st.DailyCounts = make(map[string]int)
	}
	return st, nil
}

// StateRecord is the gorm row holding one serialized snapshot keyed by name.
type StateRecord struct {
	Key       string    `gorm:"primaryKey;size:60" json:"key"`
	Payload   string    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName controls the exact table name for snapshots.
func (StateRecord) TableName() string {
	return "bot_state"
}

// StateKey is the snapshot row key used by the running bot.
const StateKey = "bot_state"
